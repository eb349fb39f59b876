package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"QUASAR_SERVICE",
	"QUASAR_NAME",
	"QUASAR_REDIS_URL",
	"QUASAR_TRANSPORT_REDIS_URL",
	"REDIS_URL",
	"QUASAR_PUBLISH",
	"QUASAR_INTERVAL",
	"QUASAR_GPU_INTERVAL",
	"QUASAR_GPU_BACKEND",
	"QUASAR_GPU_COMMAND",
	"QUASAR_GPU_INDEX",
	"QUASAR_LOG_LEVEL",
	"QUASAR_LOG_FORMAT",
}

// clearEnv unsets every variable the loader reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(NewViper(), "")
		require.NoError(t, err)

		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 2*time.Second, cfg.Interval)
		assert.Equal(t, 5*time.Second, cfg.GPUInterval)
		assert.Equal(t, GPUBackendSMI, cfg.GPU.Backend)
		assert.Equal(t, "nvidia-smi", cfg.GPU.Command)
		assert.Equal(t, -1, cfg.GPU.Index)
		assert.True(t, cfg.Publish)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("from environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("QUASAR_SERVICE", "test-service")
		t.Setenv("QUASAR_NAME", "test-node")
		t.Setenv("QUASAR_TRANSPORT_REDIS_URL", "redis://zenith:6379")
		t.Setenv("QUASAR_INTERVAL", "5")
		t.Setenv("QUASAR_GPU_INTERVAL", "1500ms")
		t.Setenv("QUASAR_GPU_BACKEND", "NVML")
		t.Setenv("QUASAR_GPU_INDEX", "1")
		t.Setenv("QUASAR_PUBLISH", "false")

		cfg, err := Load(NewViper(), "")
		require.NoError(t, err)

		assert.Equal(t, "test-service", cfg.Service)
		assert.Equal(t, "test-node", cfg.Name)
		assert.Equal(t, "redis://zenith:6379", cfg.RedisURL)
		assert.Equal(t, 5*time.Second, cfg.Interval)
		assert.Equal(t, 1500*time.Millisecond, cfg.GPUInterval)
		assert.Equal(t, GPUBackendNVML, cfg.GPU.Backend)
		assert.Equal(t, 1, cfg.GPU.Index)
		assert.False(t, cfg.Publish)
	})

	t.Run("legacy redis variables", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_URL", "redis://common:6379")

		cfg, err := Load(NewViper(), "")
		require.NoError(t, err)
		assert.Equal(t, "redis://common:6379", cfg.RedisURL)

		t.Setenv("QUASAR_REDIS_URL", "redis://shorthand:6379")
		cfg, err = Load(NewViper(), "")
		require.NoError(t, err)
		assert.Equal(t, "redis://shorthand:6379", cfg.RedisURL)
	})

	t.Run("from file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "quasar.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
service: render-farm
interval: 10s
gpu:
  backend: none
log:
  level: debug
  format: json
`), 0o644))

		cfg, err := Load(NewViper(), path)
		require.NoError(t, err)

		assert.Equal(t, "render-farm", cfg.Service)
		assert.Equal(t, 10*time.Second, cfg.Interval)
		assert.Equal(t, GPUBackendNone, cfg.GPU.Backend)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("environment beats file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "quasar.yaml")
		require.NoError(t, os.WriteFile(path, []byte("service: from-file\n"), 0o644))
		t.Setenv("QUASAR_SERVICE", "from-env")

		cfg, err := Load(NewViper(), path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Service)
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad interval", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("QUASAR_INTERVAL", "soon")

		_, err := Load(NewViper(), "")
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "Interval", cfgErr.Field)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Service = "test-service"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing service", func(c *Config) { c.Service = "" }, "Service"},
		{"missing service without publishing", func(c *Config) { c.Service = ""; c.Publish = false }, ""},
		{"missing redis", func(c *Config) { c.RedisURL = "" }, "RedisURL"},
		{"zero interval", func(c *Config) { c.Interval = 0 }, "Interval"},
		{"negative gpu interval", func(c *Config) { c.GPUInterval = -time.Second }, "GPUInterval"},
		{"unknown backend", func(c *Config) { c.GPU.Backend = "rocm" }, "GPU.Backend"},
		{"gpu disabled", func(c *Config) { c.GPU.Backend = GPUBackendNone }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"10", 10 * time.Second, false},
		{" 3 ", 3 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"1m", time.Minute, false},
		{"", 0, true},
		{"fast", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := parseInterval(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}
