// Package gateway provides the HTTP server for liveness probes, monitoring,
// administration, and Telegram webhooks. It follows the module system pattern.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/flemzord/filebot/internal/config"
	"github.com/flemzord/filebot/internal/core"
)

// ConfigReloader reloads the running configuration from a file.
// reload.Handler satisfies it.
type ConfigReloader interface {
	HandleReload(ctx context.Context, configPath string) error
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// secretPattern matches YAML keys that likely contain secrets.
var secretPattern = regexp.MustCompile(`(?i)(secret|token|password|key|hash|pass)`)

// configPath returns the path registered by the app runner.
func (g *Gateway) configPath() string {
	if g.appCtx == nil {
		return ""
	}
	path, _ := core.LookupService[string](g.appCtx, "config.path")
	return path
}

// handleGetConfig returns the current config with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}

		generic := map[string]any{
			"version": cfg.Version,
			"logging": cfg.Logging,
		}
		modules := make(map[string]any, len(cfg.Modules))
		for id, node := range cfg.Modules {
			var decoded map[string]any
			if err := node.Decode(&decoded); err != nil {
				http.Error(w, "failed to parse config", http.StatusInternalServerError)
				return
			}
			modules[id] = decoded
		}
		generic["modules"] = modules

		redactSecrets(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// redactSecrets walks a map and replaces values whose keys match the secret pattern.
func redactSecrets(m map[string]any) {
	for k, v := range m {
		if secretPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = "***REDACTED***"
			}
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			redactSecrets(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					redactSecrets(sub)
				}
			}
		}
	}
}

// handleReloadConfig triggers a hot-reload of the configuration.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}
		reloader, ok := core.LookupService[ConfigReloader](g.appCtx, "reload.handler")
		if !ok {
			http.Error(w, "reload not available", http.StatusServiceUnavailable)
			return
		}

		if err := reloader.HandleReload(r.Context(), cfgPath); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		g.logger.Info("configuration reloaded from gateway")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
