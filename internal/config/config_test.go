package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.Server.Addr)
	assert.Equal(t, 300, cfg.Broker.DefaultTimeout)
	assert.Equal(t, 60, cfg.Broker.WaitTimeout)
	assert.Equal(t, 60*time.Second, cfg.Broker.WaitTimeoutDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.Broker.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Broker.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Broker.Retention)
	assert.False(t, cfg.Broker.ExpirePending)
	assert.Equal(t, 30*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, int64(65536), cfg.WS.MaxMessageSize)
	assert.Equal(t, int64(50<<20), cfg.Images.MaxUploadBytes)
	assert.Equal(t, ":memory:", cfg.History.DSN)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTUI_SERVER_ADDR", ":9999")
	t.Setenv("AGENTUI_BROKER_DEFAULT_TIMEOUT", "42")
	t.Setenv("AGENTUI_BROKER_POLL_INTERVAL", "250ms")
	t.Setenv("AGENTUI_BROKER_EXPIRE_PENDING", "true")
	t.Setenv("AGENTUI_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 42, cfg.Broker.DefaultTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Broker.PollInterval)
	assert.True(t, cfg.Broker.ExpirePending)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  addr: \":4000\"\nbroker:\n  wait_timeout: 5\n  retention: 10m\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Broker.WaitTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Broker.Retention)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("AGENTUI_BROKER_DEFAULT_TIMEOUT", "0")
	t.Setenv("AGENTUI_LOGGING_LEVEL", "verbose")

	_, err := LoadWithPath(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.default_timeout must be positive")
	assert.Contains(t, err.Error(), "logging.level")
}
