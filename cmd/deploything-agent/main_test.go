package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseStart(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := newStartCmd()
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(parseStart(t))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.ControlPlane.Hostname)
	assert.Equal(t, 4040, cfg.ControlPlane.Port)
	assert.Equal(t, 10*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, "docker", cfg.Runtime.Driver)
}

func TestLoadConfigShortFlags(t *testing.T) {
	cfg, err := loadConfig(parseStart(t, "-n", "cp.internal", "-p", "5000", "-i", "3"))
	require.NoError(t, err)

	assert.Equal(t, "cp.internal", cfg.ControlPlane.Hostname)
	assert.Equal(t, 5000, cfg.ControlPlane.Port)
	assert.Equal(t, 3*time.Second, cfg.SnapshotInterval)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
control_plane:
  hostname: from-file
  port: 6000
metrics:
  addr: ":9090"
`), 0o600))

	cfg, err := loadConfig(parseStart(t, "--config", path, "--port", "7000"))
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.ControlPlane.Hostname)
	assert.Equal(t, 7000, cfg.ControlPlane.Port)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := [][]string{
		{"--snapshot-interval", "0"},
		{"--port", "0"},
		{"--runtime", "podman"},
	}

	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			_, err := loadConfig(parseStart(t, args...))
			assert.Error(t, err)
		})
	}
}
