package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deploything/agent/pkg/runtime"
)

// Defaults used when neither the config file nor a flag sets a value
const (
	DefaultHostname         = "localhost"
	DefaultPort             = 4040
	DefaultSnapshotInterval = 10 * time.Second
)

// Config is the complete agent configuration
type Config struct {
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Proxy        ProxyConfig        `yaml:"proxy"`

	SnapshotInterval    time.Duration `yaml:"-"`
	SnapshotIntervalRaw string        `yaml:"snapshot_interval"`
}

// ControlPlaneConfig locates the control plane websocket endpoint
type ControlPlaneConfig struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
}

// RuntimeConfig selects the container runtime driver
type RuntimeConfig struct {
	Driver           string `yaml:"driver"`
	ContainerdSocket string `yaml:"containerd_socket"`
	Namespace        string `yaml:"namespace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig holds the metrics endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ProxyConfig holds the reverse proxy listener and its static routes
type ProxyConfig struct {
	Addr   string        `yaml:"addr"`
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig sends requests matching a hostname, a path, or both to a
// service listening on a local port
type RouteConfig struct {
	Hostname string `yaml:"hostname"`
	Path     string `yaml:"path"`
	Service  string `yaml:"service"`
	Port     int    `yaml:"port"`
}

// Default returns the configuration used without a config file
func Default() *Config {
	return &Config{
		ControlPlane: ControlPlaneConfig{
			Hostname: DefaultHostname,
			Port:     DefaultPort,
		},
		Runtime: RuntimeConfig{
			Driver:    runtime.DriverDocker,
			Namespace: runtime.DefaultNamespace,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		SnapshotInterval: DefaultSnapshotInterval,
	}
}

// Load reads a configuration file on top of Default. Environment variables
// written as ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default without validating
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or nothing
// when it is unset
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	if cfg.SnapshotIntervalRaw == "" {
		return nil
	}

	d, err := time.ParseDuration(cfg.SnapshotIntervalRaw)
	if err != nil {
		return fmt.Errorf("parsing snapshot_interval %q: %w", cfg.SnapshotIntervalRaw, err)
	}
	cfg.SnapshotInterval = d
	return nil
}

// Validate returns the first invalid setting found
func (c *Config) Validate() error {
	if c.ControlPlane.Hostname == "" {
		return fmt.Errorf("control_plane.hostname is required")
	}
	if c.ControlPlane.Port < 1 || c.ControlPlane.Port > 65535 {
		return fmt.Errorf("control_plane.port %d is out of range", c.ControlPlane.Port)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot_interval must be positive, got %s", c.SnapshotInterval)
	}

	switch c.Runtime.Driver {
	case "", runtime.DriverDocker, runtime.DriverContainerd:
	default:
		return fmt.Errorf("runtime.driver %q is not supported", c.Runtime.Driver)
	}

	for i, r := range c.Proxy.Routes {
		if r.Service == "" {
			return fmt.Errorf("proxy.routes[%d].service is required", i)
		}
		if r.Port < 1 || r.Port > 65535 {
			return fmt.Errorf("proxy.routes[%d].port %d is out of range", i, r.Port)
		}
		if r.Hostname == "" && r.Path == "" {
			return fmt.Errorf("proxy.routes[%d] needs a hostname or a path", i)
		}
	}
	return nil
}
