// Package config loads and validates the sync engine's YAML configuration
// and supports hot reload of the log level while the service runs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig             `yaml:"server"`
	Store   StoreConfig              `yaml:"store"`
	Sync    SyncConfig               `yaml:"sync"`
	Logging telemetry.LoggingConfig  `yaml:"logging"`
	Metrics telemetry.MetricsConfig  `yaml:"metrics"`
	Tracing telemetry.TracingConfig  `yaml:"tracing"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	// Addr is the listen address of the control endpoint.
	Addr string `yaml:"addr" validate:"required"`

	// ReadTimeout bounds how long a request body read may take.
	ReadTimeout Duration `yaml:"read_timeout"`
}

// StoreConfig configures the local SQLite mirror.
type StoreConfig struct {
	// Path is the SQLite file location, relative to the working directory
	// unless absolute. The controller process reads the same file.
	Path string `yaml:"path" validate:"required"`
}

// SyncConfig configures the preload orchestration.
type SyncConfig struct {
	// DefaultRegion is used when a preload request omits one.
	DefaultRegion string `yaml:"default_region" validate:"required"`

	// Concurrency bounds how many per-region workers run at once.
	Concurrency int `yaml:"concurrency" validate:"gt=0"`

	// ImagePageSize bounds one public-image listing call.
	ImagePageSize int64 `yaml:"image_page_size" validate:"gt=0"`

	// InstancePageSize is the instance pagination page size.
	InstancePageSize int64 `yaml:"instance_page_size" validate:"gt=0"`

	// Timeout bounds one full preload run; zero means no deadline.
	Timeout Duration `yaml:"timeout"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8088",
			ReadTimeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			Path: "data/cvm_cache.db",
		},
		Sync: SyncConfig{
			DefaultRegion:    "ap-beijing",
			Concurrency:      10,
			ImagePageSize:    60,
			InstancePageSize: 100,
			Timeout:          Duration(10 * time.Minute),
		},
		Logging: telemetry.LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "cvm_manager.log",
		},
		Metrics: telemetry.MetricsConfig{
			Enabled:   true,
			Namespace: "cvmsync",
		},
	}
}

// Load reads the config file at path, layered over defaults, and
// validates the result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
