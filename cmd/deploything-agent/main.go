package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploything/agent/pkg/agent"
	"github.com/deploything/agent/pkg/config"
	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
	"github.com/deploything/agent/pkg/runtime"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deploything-agent",
	Short: "Node agent for the deploything control plane",
	Long: `deploything-agent connects to a control plane over a websocket,
runs the containers it is told to run on this host, and reports the
state of every container back on a fixed interval.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"deploything-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(newStartCmd())
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Connect to the control plane and start serving commands",
		RunE:  runStart,
	}

	flags := cmd.Flags()
	flags.StringP("hostname", "n", config.DefaultHostname, "Control plane hostname")
	flags.IntP("port", "p", config.DefaultPort, "Control plane port")
	flags.IntP("snapshot-interval", "i", int(config.DefaultSnapshotInterval/time.Second), "Seconds between state snapshots")
	flags.StringP("config", "c", "", "Path to a YAML config file")
	flags.String("runtime", runtime.DriverDocker, "Container runtime (docker or containerd)")
	flags.String("containerd-socket", "", "Containerd socket path (empty = auto-detect)")
	flags.String("metrics-addr", "", "Address for /metrics and health endpoints (empty = disabled)")
	flags.String("proxy-addr", "", "Address for the reverse proxy (empty = disabled)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")

	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSON,
	})
	metrics.SetVersion(Version)

	rt, err := runtime.New(runtime.Options{
		Driver:           cfg.Runtime.Driver,
		ContainerdSocket: cfg.Runtime.ContainerdSocket,
		Namespace:        cfg.Runtime.Namespace,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize container runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Logger.Info().
		Str("version", Version).
		Str("runtime", cfg.Runtime.Driver).
		Dur("snapshot_interval", cfg.SnapshotInterval).
		Msg("Starting agent")

	return agent.New(rt, agent.OptionsFromConfig(cfg)).Run(ctx)
}

// loadConfig starts from the config file, or defaults when none is given,
// and applies every flag the user set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("hostname") {
		cfg.ControlPlane.Hostname, _ = flags.GetString("hostname")
	}
	if flags.Changed("port") {
		cfg.ControlPlane.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("snapshot-interval") {
		secs, _ := flags.GetInt("snapshot-interval")
		cfg.SnapshotInterval = time.Duration(secs) * time.Second
	}
	if flags.Changed("runtime") {
		cfg.Runtime.Driver, _ = flags.GetString("runtime")
	}
	if flags.Changed("containerd-socket") {
		cfg.Runtime.ContainerdSocket, _ = flags.GetString("containerd-socket")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("proxy-addr") {
		cfg.Proxy.Addr, _ = flags.GetString("proxy-addr")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON, _ = flags.GetBool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
