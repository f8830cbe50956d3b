// Package app provides the entry point shared by the filebot commands:
// config loading, the security and telemetry services, module lifecycle
// and the reload loop.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/filebot/internal/config"
	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/reload"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/telemetry"
)

const tracingShutdownTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides logging.level from the config when non-empty.
	LogLevel string
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received. SIGHUP and file-change events trigger a live
// configuration reload for modules that implement core.Reloader.
func Run(params RunParams) error {
	return RunContext(context.Background(), params)
}

// RunContext is Run with a parent context; cancelling ctx shuts the
// application down like SIGTERM.
func RunContext(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()
	logger := NewLogger(cfg.Logging, params.LogLevel, os.Stderr, redactor)
	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   os.Stderr,
		Redactor: redactor,
	})

	logger.Info("starting filebot",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
	)

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		Insecure:    cfg.Telemetry.Tracing.Insecure,
		ServiceName: cfg.Telemetry.Tracing.ServiceName,
		Version:     params.Version,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	root := core.NewAppContext(logger, dataDir)
	root.RegisterService("security.credentials", credStore)
	root.RegisterService("security.redactor", redactor)
	root.RegisterService("security.audit", auditLogger)
	root.RegisterService("config.path", cfgPath)
	if cfg.Telemetry.MetricsEnabled() {
		root.RegisterService("telemetry.metrics", telemetry.NewMetrics())
	}

	application := core.NewApp(root.WithModuleConfigs(cfg.Modules))

	// Visible to modules from Provision on.
	handler := reload.NewHandler(application, root)
	handler.AfterReload = func() { redactor.SyncCredentials(credStore) }
	root.RegisterService("reload.handler", handler)

	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}
	root.RegisterService("app.modules", application.ModuleIDs())

	// Modules register their secrets during Provision; redact them from
	// the first Start log line on.
	redactor.SyncCredentials(credStore)

	if err := application.Start(); err != nil {
		return err
	}
	redactor.SyncCredentials(credStore)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{
		Paths: []string{cfgPath, config.EnvFilePath(cfgPath)},
	})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			application.Stop()
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := reloadConfig(watchCtx, handler, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.Path, "change", string(evt.Type))
			if err := reloadConfig(watchCtx, handler, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// reloadConfig loads and validates the new config before any module sees
// it, so a broken edit leaves the running configuration in place.
func reloadConfig(ctx context.Context, handler *reload.Handler, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return handler.HandleReloadFromConfig(ctx, cfg)
}

// ConfigCandidates lists the config locations searched when no path is
// given, in order.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "filebot", "filebot.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "filebot", "filebot.yaml"))
	}
	return append(candidates, "filebot.yaml")
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/filebot/filebot.yaml, then
// ~/.config/filebot/filebot.yaml, then ./filebot.yaml.
func ResolveConfigPath() (string, error) {
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/filebot if set, otherwise ~/.local/share/filebot.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "filebot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "filebot")
}
