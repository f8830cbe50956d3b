package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.countRequests)

	// Public liveness probes.
	r.Get("/", handleAlive(aliveText))
	r.Get("/ping", handleAlive(pongText))
	r.Get("/health", g.handleHealth())

	if g.promHandler != nil {
		r.Handle("/metrics", g.promHandler)
	}

	// Telegram webhooks; each bot checks its own secret token.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// Admin endpoints. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.authLimiter, g.metrics))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/modules", g.handleGetAllModules())
				r.Get("/config", g.handleGetConfig())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		})
	}

	return r
}
