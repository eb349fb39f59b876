// Package config handles configuration loading from defaults, an optional
// YAML file, QUASAR_* environment variables and command-line flags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GPU backends
const (
	GPUBackendSMI  = "smi"
	GPUBackendNVML = "nvml"
	GPUBackendNone = "none"
)

// Config holds all configuration for the Quasar sampler
type Config struct {
	// Service identification
	Service string // Required when publishing: service name (e.g., "render-farm")
	Name    string // Optional: custom node name (defaults to hostname)

	// Transport Redis (for sending heartbeats to Zenith)
	RedisURL string
	Publish  bool // When false samples are only logged

	// Sampling cadence. GPU sampling spawns a process and runs on its own ticker.
	Interval    time.Duration
	GPUInterval time.Duration

	GPU GPUConfig
	Log LogConfig
}

// GPUConfig selects and configures the GPU probe
type GPUConfig struct {
	Backend string // "smi", "nvml" or "none"
	Command string // nvidia-smi binary (smi backend)
	Index   int    // GPU index; negative means the first one reported
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// Keys used in the config file and as flag bindings
const (
	KeyService     = "service"
	KeyName        = "name"
	KeyRedisURL    = "redis_url"
	KeyPublish     = "publish"
	KeyInterval    = "interval"
	KeyGPUInterval = "gpu_interval"
	KeyGPUBackend  = "gpu.backend"
	KeyGPUCommand  = "gpu.command"
	KeyGPUIndex    = "gpu.index"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RedisURL:    "redis://localhost:6379",
		Publish:     true,
		Interval:    2 * time.Second,
		GPUInterval: 5 * time.Second,
		GPU: GPUConfig{
			Backend: GPUBackendSMI,
			Command: "nvidia-smi",
			Index:   -1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// NewViper returns a viper instance carrying the defaults and the
// environment bindings. Flags are bound on top of it by the CLI.
func NewViper() *viper.Viper {
	d := DefaultConfig()
	v := viper.New()

	v.SetDefault(KeyRedisURL, d.RedisURL)
	v.SetDefault(KeyPublish, d.Publish)
	v.SetDefault(KeyInterval, d.Interval.String())
	v.SetDefault(KeyGPUInterval, d.GPUInterval.String())
	v.SetDefault(KeyGPUBackend, d.GPU.Backend)
	v.SetDefault(KeyGPUCommand, d.GPU.Command)
	v.SetDefault(KeyGPUIndex, d.GPU.Index)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)

	// QUASAR_GPU_BACKEND -> gpu.backend
	v.SetEnvPrefix("QUASAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Transport URL accepts the legacy shorthand and the common convention
	_ = v.BindEnv(KeyRedisURL, "QUASAR_TRANSPORT_REDIS_URL", "QUASAR_REDIS_URL", "REDIS_URL")

	return v
}

// Load reads the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	interval, err := parseInterval(v.GetString(KeyInterval))
	if err != nil {
		return nil, &ConfigError{Field: "Interval", Message: err.Error()}
	}
	gpuInterval, err := parseInterval(v.GetString(KeyGPUInterval))
	if err != nil {
		return nil, &ConfigError{Field: "GPUInterval", Message: err.Error()}
	}

	return &Config{
		Service:     v.GetString(KeyService),
		Name:        v.GetString(KeyName),
		RedisURL:    v.GetString(KeyRedisURL),
		Publish:     v.GetBool(KeyPublish),
		Interval:    interval,
		GPUInterval: gpuInterval,
		GPU: GPUConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString(KeyGPUBackend))),
			Command: v.GetString(KeyGPUCommand),
			Index:   v.GetInt(KeyGPUIndex),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}, nil
}

// parseInterval accepts a Go duration ("1500ms") or a bare number of seconds ("5").
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Publish {
		if c.Service == "" {
			return &ConfigError{Field: "Service", Message: "service name is required when publishing (set QUASAR_SERVICE)"}
		}
		if c.RedisURL == "" {
			return &ConfigError{Field: "RedisURL", Message: "transport Redis URL is required when publishing"}
		}
	}
	if c.Interval <= 0 {
		return &ConfigError{Field: "Interval", Message: "must be positive"}
	}
	if c.GPUInterval <= 0 {
		return &ConfigError{Field: "GPUInterval", Message: "must be positive"}
	}
	switch c.GPU.Backend {
	case GPUBackendSMI, GPUBackendNVML, GPUBackendNone:
	default:
		return &ConfigError{Field: "GPU.Backend", Message: fmt.Sprintf("unknown backend %q (want smi, nvml or none)", c.GPU.Backend)}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
