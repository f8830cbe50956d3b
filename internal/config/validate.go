package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/flemzord/filebot/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present,
// checks that all referenced module IDs exist in the registry,
// and validates the logging and telemetry sections.
// Module-specific settings are validated by each module's Validate.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: %w", core.UnknownModuleError(id)))
		}
	}

	errs = append(errs, validateLogging(cfg.Logging)...)
	errs = append(errs, validateTracing(cfg.Telemetry.Tracing)...)

	return errors.Join(errs...)
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("config: logging.level: unknown level %q", l.Level))
	}
	switch strings.ToLower(strings.TrimSpace(l.Format)) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format: unknown format %q", l.Format))
	}
	return errs
}

func validateTracing(t TracingConfig) []error {
	var errs []error
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.tracing.sample_ratio must be 0-1, got %g", t.SampleRatio))
	}
	if t.Endpoint != "" && strings.Contains(t.Endpoint, "://") {
		if _, err := url.Parse(t.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("config: telemetry.tracing.endpoint: %w", err))
		}
	}
	return errs
}
