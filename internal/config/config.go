// Package config loads and validates configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Sampler SamplerConfig `mapstructure:"sampler"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
	Storage StorageConfig `mapstructure:"storage"`
	Debug   bool          `mapstructure:"debug"`
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// MetricsConfig holds metric store parameters.
type MetricsConfig struct {
	// Capacity is the per-series ring buffer size.
	Capacity int `mapstructure:"capacity"`
}

// SamplerConfig holds system sampler parameters.
type SamplerConfig struct {
	Enabled  *bool         `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	DiskPath string        `mapstructure:"disk_path"`
	PerCore  bool          `mapstructure:"per_core"`
}

// IsEnabled returns whether the sampler is enabled (defaults to true).
func (s *SamplerConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// StorageConfig holds optional SQLite persistence parameters.
type StorageConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Load reads configuration from YAML file and environment variables.
// Missing config file falls back to defaults; a malformed file is an error.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.config/vigil")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("VIGIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	applyDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.path", "vigil.log")

	viper.SetDefault("metrics.capacity", 1000)

	viper.SetDefault("sampler.interval", 10*time.Second)
	viper.SetDefault("sampler.disk_path", "/")
	viper.SetDefault("sampler.per_core", false)

	viper.SetDefault("alerts.enabled", true)
	viper.SetDefault("alerts.tick", time.Second)

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.path", "vigil.db")
	viper.SetDefault("storage.retention_days", 7)
}

// Validate validates the configuration values.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}

	if cfg.Metrics.Capacity < 1 {
		return fmt.Errorf("metrics.capacity must be positive, got %d", cfg.Metrics.Capacity)
	}

	if cfg.Sampler.Interval < time.Second {
		return fmt.Errorf("sampler.interval must be at least 1s, got %s", cfg.Sampler.Interval)
	}

	if cfg.Storage.Enabled {
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path cannot be empty when storage is enabled")
		}
		if cfg.Storage.RetentionDays < 1 {
			return fmt.Errorf("storage.retention_days must be positive, got %d", cfg.Storage.RetentionDays)
		}
	}

	if err := validateAlerts(&cfg.Alerts); err != nil {
		return err
	}

	return nil
}
