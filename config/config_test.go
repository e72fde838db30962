package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SPANZ_SERVICE", "checkout")
	t.Setenv("SPANZ_LOG_LEVEL", "debug")
	t.Setenv("SPANZ_EXECUTOR_WORKERS", "8")
	t.Setenv("SPANZ_COLLECTOR_BUFFER", "50")
	t.Setenv("SPANZ_METRICS_ENDPOINT", "/internal/metrics")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.Service)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Executor.Workers)
	assert.Equal(t, 50, cfg.Collector.BufferSize)
	assert.Equal(t, "/internal/metrics", cfg.Metrics.Path)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SPANZ_EXECUTOR_QUEUE=12\nSPANZ_DEMO_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SPANZ_EXECUTOR_QUEUE")
		os.Unsetenv("SPANZ_DEMO_ADDR")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Executor.QueueSize)
	assert.Equal(t, ":9999", cfg.Demo.Addr)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SPANZ_EXECUTOR_WORKERS", "0")

	_, err := Load("")
	assert.Error(t, err)

	assert.Equal(t, Default(), LoadOrDefault(""))
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("SPANZ_EXECUTOR_WORKERS", "many")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"collector buffer", func(c *Config) { c.Collector.BufferSize = 0 }},
		{"executor queue", func(c *Config) { c.Executor.QueueSize = -1 }},
		{"error log rate", func(c *Config) { c.ErrorLog.PerSecond = 0 }},
		{"error log burst", func(c *Config) { c.ErrorLog.Burst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	disabled := Default()
	disabled.Collector.Enabled = false
	disabled.Collector.BufferSize = 0
	assert.NoError(t, disabled.Validate())
}

func TestTracerSettings(t *testing.T) {
	cfg := Default()
	cfg.Log.Development = true

	assert.Len(t, cfg.TracerOptions(), 1)
	lc := cfg.LoggerConfig()
	assert.Equal(t, "info", lc.Level)
	assert.True(t, lc.Development)
}
