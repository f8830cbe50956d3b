package filebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/cron"
	bot "github.com/flemzord/filebot/internal/filebot"
	"github.com/flemzord/filebot/internal/gateway"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telegram"
	"github.com/flemzord/filebot/internal/telemetry"
)

const (
	moduleID      core.ModuleID = "bot.filebot"
	webhookSource               = "filebot"
	seedTimeout                 = 30 * time.Second
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// DialFunc authenticates against the Bot API and returns the client and
// the bot's username.
type DialFunc func(cfg telegram.Config) (telegram.API, string, error)

// Module is the bot.filebot module.
type Module struct {
	config bot.Config
	appCtx *core.AppContext
	logger *slog.Logger

	registry    store.Registry
	index       store.Index
	cache       store.SearchCache
	metrics     *telemetry.Metrics
	audit       *security.AuditLogger
	credentials *security.CredentialStore

	dial DialFunc

	// Set during Start.
	sender    *telegram.Sender
	bot       *bot.Bot
	intake    *telegram.Intake
	scheduler *cron.Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  moduleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	cfg, err := decodeConfig(node)
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

func decodeConfig(node *yaml.Node) (bot.Config, error) {
	var cfg bot.Config
	if err := node.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("filebot: decode config: %w", err)
	}
	cfg.Defaults()
	return cfg, nil
}

// Provision implements core.Provisioner. Storage comes from the store and
// cache modules when loaded, in-memory otherwise.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	if m.dial == nil {
		m.dial = dialBotAPI
	}

	if r, ok := core.LookupService[store.Registry](ctx, "store.registry"); ok {
		m.registry = r
	} else {
		m.logger.Warn("no store module loaded, registry is kept in memory")
		m.registry = store.NewMemoryRegistry()
	}
	if x, ok := core.LookupService[store.Index](ctx, "store.index"); ok {
		m.index = x
	} else {
		m.index = store.NewMemoryIndex()
	}
	if c, ok := core.LookupService[store.SearchCache](ctx, "cache.search"); ok {
		m.cache = c
	} else {
		m.cache = store.NewMemorySearchCache()
	}

	m.metrics, _ = core.LookupService[*telemetry.Metrics](ctx, "telemetry.metrics")
	m.audit, _ = core.LookupService[*security.AuditLogger](ctx, "security.audit")
	m.credentials, _ = core.LookupService[*security.CredentialStore](ctx, "security.credentials")
	m.registerCredentials()
	return nil
}

// registerCredentials feeds the secrets to the log redactor.
func (m *Module) registerCredentials() {
	if m.credentials == nil {
		return
	}
	m.credentials.Set("filebot.token", m.config.Telegram.Token)
	if m.config.Telegram.WebhookSecret != "" {
		m.credentials.Set("filebot.webhook_secret", m.config.Telegram.WebhookSecret)
	}
	if m.config.Shortener.APIKey != "" {
		m.credentials.Set("filebot.shortener_key", m.config.Shortener.APIKey)
	}
	if m.config.AdminPasswordHash != "" {
		m.credentials.Set("filebot.admin_password", m.config.AdminPasswordHash)
	}
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.Validate()
}

// Start implements core.Starter. It authenticates the token, starts the
// send queue, seeds the configured channels, then starts update delivery
// and the housekeeping jobs.
func (m *Module) Start() error {
	api, username, err := m.dial(m.config.Telegram)
	if err != nil {
		return err
	}
	m.logger.Info("telegram bot authenticated", "username", username)

	m.sender = telegram.NewSender(api, telegram.SenderOptions{
		QueueSize: m.config.Telegram.QueueSize,
		Throttle:  telegram.NewThrottle(m.config.Telegram.Throttle),
		Logger:    m.logger,
		Observe:   m.metrics.APICall,
	})
	m.sender.Start()
	if err := m.metrics.RegisterGauge("send_queue_depth", "Calls waiting in the outbound send queue.", func() float64 {
		return float64(m.sender.Depth())
	}); err != nil {
		m.logger.Warn("send queue gauge not registered", "error", err)
	}

	m.bot, err = bot.New(m.config, bot.Deps{
		Sender:      m.sender,
		Registry:    m.registry,
		Index:       m.index,
		Cache:       m.cache,
		Metrics:     m.metrics,
		Audit:       m.audit,
		Logger:      m.logger,
		BotUsername: username,
	})
	if err != nil {
		m.abort()
		return err
	}

	seedCtx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	err = m.bot.Seed(seedCtx)
	cancel()
	if err != nil {
		m.abort()
		return err
	}

	dispatcher := telegram.NewDispatcher(m.bot, m.config.Telegram.MaxConcurrent, m.logger)
	m.intake, err = telegram.StartIntake(api, m.config.Telegram, dispatcher, webhookSource, m.webhookRegistrar(), m.logger)
	if err != nil {
		m.abort()
		return err
	}

	m.scheduler = cron.NewScheduler(m.logger)
	if err := m.registerJobs(); err != nil {
		m.abort()
		return err
	}
	if err := m.scheduler.Start(); err != nil {
		m.abort()
		return fmt.Errorf("filebot: starting scheduler: %w", err)
	}

	if bots, ok := core.LookupService[*gateway.Bots](m.appCtx, "gateway.bots"); ok {
		bots.Register(string(moduleID), m.bot)
	}
	return nil
}

func (m *Module) registerJobs() error {
	targets := map[string]cron.PruneFunc{
		"state": m.bot.PruneState,
		"quota": m.bot.PruneQuota,
	}
	if p, ok := m.cache.(store.Pruner); ok {
		targets["search_cache"] = p.Prune
	}
	jobs := []cron.Job{
		&cron.StatePruneJob{
			Targets:      targets,
			Logger:       m.logger,
			ScheduleExpr: m.config.PruneSchedule,
		},
		&cron.ChannelCheckJob{
			Checker:      m.bot,
			Logger:       m.logger,
			ScheduleExpr: m.config.ChannelCheckSchedule,
		},
	}
	for _, j := range jobs {
		if err := m.scheduler.RegisterJob(j); err != nil {
			return fmt.Errorf("filebot: %w", err)
		}
	}
	return nil
}

// webhookRegistrar mounts the receiver on the gateway, or returns nil when
// the gateway module is not loaded.
func (m *Module) webhookRegistrar() telegram.WebhookRegistrar {
	d, ok := core.LookupService[*gateway.WebhookDispatcher](m.appCtx, "gateway.webhook_dispatcher")
	if !ok {
		return nil
	}
	return func(source string, r *telegram.WebhookReceiver) (func(), error) {
		d.Register(source, r, "")
		return func() { d.Unregister(source) }, nil
	}
}

// abort releases what a failed Start already acquired.
func (m *Module) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.Stop(ctx)
}

// Stop implements core.Stopper. Intake stops first so no handler runs
// against a closed send queue.
func (m *Module) Stop(ctx context.Context) error {
	if bots, ok := core.LookupService[*gateway.Bots](m.appCtx, "gateway.bots"); ok {
		bots.Unregister(string(moduleID))
	}

	var errs []error
	if m.intake != nil {
		errs = append(errs, m.intake.Stop(ctx))
		m.intake = nil
	}
	if m.scheduler != nil {
		errs = append(errs, m.scheduler.Stop(ctx))
		m.scheduler = nil
	}
	if m.sender != nil {
		errs = append(errs, m.sender.Stop(ctx))
		m.sender = nil
	}
	return errors.Join(errs...)
}

// Reload implements core.Reloader. Limits, quotas, templates and the admin
// list apply immediately; token, mode and storage need a restart.
func (m *Module) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(moduleID)
	if !ok {
		return nil
	}
	cfg, err := decodeConfig(node)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Telegram.Token != m.config.Telegram.Token || cfg.Telegram.Mode != m.config.Telegram.Mode {
		m.logger.Warn("token or mode changed, restart required to apply")
		cfg.Telegram.Token = m.config.Telegram.Token
		cfg.Telegram.Mode = m.config.Telegram.Mode
	}
	if m.bot != nil {
		if err := m.bot.Reconfigure(cfg); err != nil {
			return err
		}
	}
	m.config = cfg
	m.registerCredentials()
	m.audit.Log(security.AuditEvent{
		Type:   security.EventConfigChange,
		Module: string(moduleID),
		Detail: "configuration reloaded",
	})
	return nil
}
