package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/flemzord/filebot/internal/config"
	"github.com/flemzord/filebot/internal/security"
)

// ParseLevel maps a config or flag level name to a slog.Level. Unknown or
// empty names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from the logging section. Every
// record passes through the redactor before reaching w. levelOverride,
// when non-empty, wins over cfg.Level.
func NewLogger(cfg config.LoggingConfig, levelOverride string, w io.Writer, redactor *security.Redactor) *slog.Logger {
	level := cfg.Level
	if levelOverride != "" {
		level = levelOverride
	}
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: cfg.AddSource,
	}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}
