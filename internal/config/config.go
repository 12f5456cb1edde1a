// Package config loads the settings of the netinspector demo server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "NETINSPECTOR"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Inspector InspectorConfig `mapstructure:"inspector"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File enables an additional JSON log written to a rotating file
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type InspectorConfig struct {
	Capacity            uint64 `mapstructure:"capacity"`
	MaxBodySize         int64  `mapstructure:"max_body_size"`
	CaptureRequestBody  bool   `mapstructure:"capture_request_body"`
	CaptureResponseBody bool   `mapstructure:"capture_response_body"`
}

type DashboardConfig struct {
	PathPrefix    string `mapstructure:"path_prefix"`
	Style         string `mapstructure:"style"`
	TruncateAfter int    `mapstructure:"truncate_after"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads the configuration from an optional file at path and NETINSPECTOR_* environment variables.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":1095")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 25)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("inspector.capacity", 50)
	v.SetDefault("inspector.max_body_size", 1024*1024)
	v.SetDefault("inspector.capture_request_body", true)
	v.SetDefault("inspector.capture_response_body", true)

	v.SetDefault("dashboard.path_prefix", "/_netinspector")
	v.SetDefault("dashboard.style", "monokai")
	v.SetDefault("dashboard.truncate_after", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Inspector.Capacity == 0 {
		return errors.New("inspector.capacity must be positive")
	}
	if c.Inspector.MaxBodySize <= 0 {
		return errors.New("inspector.max_body_size must be positive")
	}
	if !strings.HasPrefix(c.Dashboard.PathPrefix, "/") || strings.HasSuffix(c.Dashboard.PathPrefix, "/") {
		return fmt.Errorf("dashboard.path_prefix %q must start and not end with a slash", c.Dashboard.PathPrefix)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with a slash", c.Metrics.Path)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
