package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/telemetry"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It exposes liveness, health, metrics,
// status, admin, and webhook endpoints. It is a leaf module; bots reach it
// through the services it registers.
type Gateway struct {
	config      Config
	appCtx      *core.AppContext
	logger      *slog.Logger
	server      *http.Server
	metrics     *Metrics
	dispatcher  *WebhookDispatcher
	bots        *Bots
	audit       *security.AuditLogger
	authLimiter *security.RateLimiter
	promHandler http.Handler
	startedAt   time.Time
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = &Metrics{}
	g.bots = NewBots()
	g.dispatcher = NewWebhookDispatcher(g.logger)
	g.dispatcher.metrics = g.metrics
	g.dispatcher.maxBody = g.config.MaxBodyBytes
	g.authLimiter = security.NewRateLimiter(security.RateLimitConfig{
		Limit:  g.config.Auth.RateLimit.Limit,
		Window: g.config.Auth.RateLimit.Window,
	})

	// Register services for cross-module discovery.
	ctx.RegisterService("gateway.metrics", g.metrics)
	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)
	ctx.RegisterService("gateway.bots", g.bots)

	for source, cfg := range g.config.Webhooks {
		if cfg.Secret != "" {
			g.dispatcher.SetSecret(source, cfg.Secret)
			g.logger.Info("webhook source configured", "source", source)
		}
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves optional services from the
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	if m, ok := core.LookupService[*telemetry.Metrics](g.appCtx, "telemetry.metrics"); ok && m != nil {
		g.promHandler = m.Handler()
	}
	if a, ok := core.LookupService[*security.AuditLogger](g.appCtx, "security.audit"); ok {
		g.audit = a
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
