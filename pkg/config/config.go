// Package config carries the tunables shared by the CLI and the library
// entry points.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Zero fields are filled from
// the default tags.
type Config struct {
	LogLevel     string `yaml:"log_level" default:"info"`
	OutputFormat string `yaml:"output_format" default:"table"` // table, json, csv

	// ScanTimeout bounds toy discovery, ConnectTimeout bounds dialing
	// plus service discovery, CommandTimeout bounds one command round
	// trip.
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	CommandTimeout time.Duration `yaml:"command_timeout" default:"10s"`

	// KeepAliveInterval is the drive re-assert cadence. The firmware
	// coasts to a stop about two seconds after the last drive command,
	// so the interval must stay well under that.
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval" default:"800ms"`

	// Event delivery: queue capacity and concurrent callback workers.
	EventQueueSize int `yaml:"event_queue_size" default:"64"`
	EventWorkers   int `yaml:"event_workers" default:"4"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// UnmarshalYAML overlays only the keys present in the document, keeping
// defaults for the rest. Durations are written as strings ("800ms").
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogLevel          *string `yaml:"log_level"`
		OutputFormat      *string `yaml:"output_format"`
		ScanTimeout       *string `yaml:"scan_timeout"`
		ConnectTimeout    *string `yaml:"connect_timeout"`
		CommandTimeout    *string `yaml:"command_timeout"`
		KeepAliveInterval *string `yaml:"keep_alive_interval"`
		EventQueueSize    *int    `yaml:"event_queue_size"`
		EventWorkers      *int    `yaml:"event_workers"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.OutputFormat != nil {
		c.OutputFormat = *raw.OutputFormat
	}
	if raw.EventQueueSize != nil {
		c.EventQueueSize = *raw.EventQueueSize
	}
	if raw.EventWorkers != nil {
		c.EventWorkers = *raw.EventWorkers
	}

	for _, f := range []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"scan_timeout", raw.ScanTimeout, &c.ScanTimeout},
		{"connect_timeout", raw.ConnectTimeout, &c.ConnectTimeout},
		{"command_timeout", raw.CommandTimeout, &c.CommandTimeout},
		{"keep_alive_interval", raw.KeepAliveInterval, &c.KeepAliveInterval},
	} {
		if f.src == nil {
			continue
		}
		d, err := time.ParseDuration(*f.src)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// Load reads a YAML file over the defaults and validates the result. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.OutputFormat {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("invalid output_format %q", c.OutputFormat)
	}
	for name, d := range map[string]time.Duration{
		"scan_timeout":        c.ScanTimeout,
		"connect_timeout":     c.ConnectTimeout,
		"command_timeout":     c.CommandTimeout,
		"keep_alive_interval": c.KeepAliveInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, have %v", name, d)
		}
	}
	if c.KeepAliveInterval >= 2*time.Second {
		return fmt.Errorf("keep_alive_interval %v exceeds the firmware coast-to-stop window", c.KeepAliveInterval)
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("event_queue_size must be at least 1, have %d", c.EventQueueSize)
	}
	if c.EventWorkers < 1 {
		return fmt.Errorf("event_workers must be at least 1, have %d", c.EventWorkers)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance.
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
