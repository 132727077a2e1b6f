// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all exporter configuration.
type Config struct {
	Exporter   ExporterConfig   `yaml:"exporter"`
	Collection CollectionConfig `yaml:"collection"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ExporterConfig holds the HTTP exposition and metric naming settings.
type ExporterConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsPath string `yaml:"metrics_path"`

	// MetricPrefix is prepended to every instrument name when set,
	// e.g. "staging" turns airflow_process_mem_rss into
	// staging_airflow_process_mem_rss.
	MetricPrefix string `yaml:"metric_prefix"`

	// StaticLabels are attached to every exported series, e.g. a
	// deployment or host identifier.
	StaticLabels map[string]string `yaml:"static_labels"`
}

// CollectionConfig holds scan cadence and worker-recognition settings.
type CollectionConfig struct {
	Interval Duration `yaml:"interval"`

	// InterpreterPrefix is the expected start of a worker's first
	// command-line token.
	InterpreterPrefix string `yaml:"interpreter_prefix"`

	// RunMarker identifies the command-line argument carrying the task
	// invocation.
	RunMarker string `yaml:"run_marker"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Exporter: ExporterConfig{
			ListenAddr:  ":9118",
			MetricsPath: "/metrics",
		},
		Collection: CollectionConfig{
			Interval:          Duration{15 * time.Second},
			InterpreterPrefix: "/usr/bin/python",
			RunMarker:         "airflow run",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// File doesn't exist — use defaults + env overrides
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	candidates := configSearchPaths()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have the highest precedence.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("APE_LISTEN_ADDR"); addr != "" {
		cfg.Exporter.ListenAddr = addr
	}
	if prefix := os.Getenv("APE_METRIC_PREFIX"); prefix != "" {
		cfg.Exporter.MetricPrefix = prefix
	}
	if level := os.Getenv("APE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// labelKeyPattern is the Prometheus label-name grammar.
var labelKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedLabelKeys are derived per record and cannot be overridden by
// static labels.
var reservedLabelKeys = map[string]bool{
	"name":      true,
	"dag":       true,
	"operator":  true,
	"exec_date": true,
}

// Validate checks that the configuration is usable. Label-key problems are
// caught here so they surface once at startup instead of per scrape.
func (c *Config) Validate() error {
	if c.Exporter.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if !strings.HasPrefix(c.Exporter.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with / (got: %s)", c.Exporter.MetricsPath)
	}
	if c.Collection.Interval.Duration <= 0 {
		return fmt.Errorf("collection interval must be positive (got: %s)", c.Collection.Interval.Duration)
	}
	for key := range c.Exporter.StaticLabels {
		if !labelKeyPattern.MatchString(key) {
			return fmt.Errorf("invalid static label key %q", key)
		}
		if reservedLabelKeys[key] {
			return fmt.Errorf("static label key %q is reserved", key)
		}
	}
	return nil
}
