package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/fpctl/internal/device"
)

// EnvLogLevel overrides the configured log level
const EnvLogLevel = "FPCTL_LOG_LEVEL"

// SearchConfig bounds one discovery
type SearchConfig struct {
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
	Attempts int           `yaml:"attempts" default:"3"`
	Interval time.Duration `yaml:"interval" default:"2s"`
}

// ConnectConfig bounds link establishment
type ConnectConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"60s"`
}

// LiveConfig controls live streaming
type LiveConfig struct {
	Delay      time.Duration `yaml:"delay" default:"10s"`
	BufferSize uint32        `yaml:"buffer_size" default:"64"`
}

// StoreConfig selects the process log and sample archive backend
type StoreConfig struct {
	Driver string `yaml:"driver" default:"sqlite"`
	Path   string `yaml:"path" default:"database/process.db"`
}

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Search   SearchConfig  `yaml:"search"`
	Connect  ConnectConfig `yaml:"connect"`
	Live     LiveConfig    `yaml:"live"`
	Store    StoreConfig   `yaml:"store"`

	// Devices harvested by sync when no identifiers are given
	Devices []string `yaml:"devices"`
	// Schedule is a cron expression for periodic sync, empty runs once
	Schedule string `yaml:"schedule"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			// zero values written explicitly in the file fall back to defaults
			defaults.SetDefaults(cfg)
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("search.timeout must be positive, got %s", c.Search.Timeout))
	}
	if c.Search.Attempts < 1 {
		errs = append(errs, fmt.Errorf("search.attempts must be at least 1, got %d", c.Search.Attempts))
	}
	if c.Search.Interval < 0 {
		errs = append(errs, fmt.Errorf("search.interval must not be negative, got %s", c.Search.Interval))
	}
	if c.Connect.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("connect.timeout must be positive, got %s", c.Connect.Timeout))
	}
	if c.Live.Delay <= 0 {
		errs = append(errs, fmt.Errorf("live.delay must be positive, got %s", c.Live.Delay))
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	if len(c.Devices) > 0 {
		if _, err := device.ValidateIDs(c.Devices...); err != nil {
			errs = append(errs, fmt.Errorf("devices: %w", err))
		}
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, info when unparsable
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
