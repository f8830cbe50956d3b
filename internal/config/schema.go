// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for filebot.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// EnvFile is an optional dotenv file loaded before variable expansion.
	// Relative paths are resolved against the config file directory.
	// Defaults to ".env" next to the config file; a missing default file is ignored.
	EnvFile string `yaml:"env_file,omitempty"`

	// Logging controls the process logger.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry controls metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "bot.filebot").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format"`

	// AddSource includes file:line in every record.
	AddSource bool `yaml:"add_source"`
}

// TelemetryConfig groups metrics and tracing settings.
type TelemetryConfig struct {
	// Metrics enables the Prometheus registry exposed by the gateway on /metrics.
	Metrics *bool `yaml:"metrics"`

	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsEnabled reports whether metrics are enabled (default true).
func (t TelemetryConfig) MetricsEnabled() bool {
	return t.Metrics == nil || *t.Metrics
}

// TracingConfig configures OTLP/HTTP trace export. Tracing is disabled when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}
