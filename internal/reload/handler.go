package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/filebot/internal/config"
	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/security"
)

// Handler reloads application configuration and notifies modules.
// Reloads are serialised: SIGHUP, the file watcher and the admin API may
// fire at the same time.
type Handler struct {
	app    *core.App
	root   *core.AppContext
	logger *slog.Logger

	// AfterReload runs after every successful reload, e.g. to resync the
	// log redactor with new credentials.
	AfterReload func()

	mu sync.Mutex
}

// NewHandler creates a reload handler. root is the context the app was
// loaded with; its services stay visible to reloading modules.
func NewHandler(app *core.App, root *core.AppContext) *Handler {
	return &Handler{
		app:    app,
		root:   root,
		logger: root.Logger,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg, configPath)
}

// HandleReloadFromConfig reloads modules from a pre-loaded config. The
// caller must have run config.Validate; it is not repeated here.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg, "")
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config, source string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	appCtx := h.root.WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	if h.AfterReload != nil {
		h.AfterReload()
	}
	if audit, ok := core.LookupService[*security.AuditLogger](h.root, "security.audit"); ok {
		detail := "configuration reloaded"
		if source != "" {
			detail += " from " + source
		}
		audit.Log(security.AuditEvent{
			Type:   security.EventConfigChange,
			Module: "reload",
			Detail: detail,
		})
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}
