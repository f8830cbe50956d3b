// Package linkmap registers the bot.linkmap module, a second Telegram bot
// that answers file names from a static table of URLs.
//
// Configuration example:
//
//	modules:
//	  bot.linkmap:
//	    token: ${LINK_BOT_TOKEN}
//	    links:
//	      "Physics Notes": https://example.com/physics.pdf
package linkmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/gateway"
	"github.com/flemzord/filebot/internal/linkmap"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/telegram"
	"github.com/flemzord/filebot/internal/telemetry"
)

const (
	moduleID      core.ModuleID = "bot.linkmap"
	webhookSource               = "linkmap"
)

func init() {
	core.RegisterModule(&Module{})
}

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

// Module is the bot.linkmap module.
type Module struct {
	config      linkmap.Config
	appCtx      *core.AppContext
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	credentials *security.CredentialStore

	dial DialFunc

	sender *telegram.Sender
	bot    *linkmap.Bot
	intake *telegram.Intake
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

func decodeConfig(node *yaml.Node) (linkmap.Config, error) {
	var cfg linkmap.Config
	if err := node.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("linkmap: decode config: %w", err)
	}
	cfg.Defaults()
	return cfg, nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	if m.dial == nil {
		m.dial = func(cfg telegram.Config) (telegram.API, string, error) {
			api, err := telegram.Dial(cfg)
			if err != nil {
				return nil, "", err
			}
			return api, api.Self.UserName, nil
		}
	}
	m.metrics, _ = core.LookupService[*telemetry.Metrics](ctx, "telemetry.metrics")
	m.credentials, _ = core.LookupService[*security.CredentialStore](ctx, "security.credentials")
	if m.credentials != nil {
		m.credentials.Set("linkmap.token", m.config.Telegram.Token)
		if m.config.Telegram.WebhookSecret != "" {
			m.credentials.Set("linkmap.webhook_secret", m.config.Telegram.WebhookSecret)
		}
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.Validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	api, username, err := m.dial(m.config.Telegram)
	if err != nil {
		return err
	}
	m.logger.Info("link bot authenticated", "username", username, "links", len(m.config.Links))

	m.sender = telegram.NewSender(api, telegram.SenderOptions{
		QueueSize: m.config.Telegram.QueueSize,
		Throttle:  telegram.NewThrottle(m.config.Telegram.Throttle),
		Logger:    m.logger,
		Observe:   m.metrics.APICall,
	})
	m.sender.Start()

	m.bot = linkmap.New(m.config.Links, m.sender, m.metrics, m.logger)
	m.bot.SetUsername(username)

	var register telegram.WebhookRegistrar
	if d, ok := core.LookupService[*gateway.WebhookDispatcher](m.appCtx, "gateway.webhook_dispatcher"); ok {
		register = func(source string, r *telegram.WebhookReceiver) (func(), error) {
			d.Register(source, r, "")
			return func() { d.Unregister(source) }, nil
		}
	}
	dispatcher := telegram.NewDispatcher(m.bot, m.config.Telegram.MaxConcurrent, m.logger)
	m.intake, err = telegram.StartIntake(api, m.config.Telegram, dispatcher, webhookSource, register, m.logger)
	if err != nil {
		_ = m.sender.Stop(context.Background())
		m.sender = nil
		return err
	}

	if bots, ok := core.LookupService[*gateway.Bots](m.appCtx, "gateway.bots"); ok {
		bots.Register(string(moduleID), reporter{Bot: m.bot, sender: m.sender})
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if bots, ok := core.LookupService[*gateway.Bots](m.appCtx, "gateway.bots"); ok {
		bots.Unregister(string(moduleID))
	}
	var errs []error
	if m.intake != nil {
		errs = append(errs, m.intake.Stop(ctx))
		m.intake = nil
	}
	if m.sender != nil {
		errs = append(errs, m.sender.Stop(ctx))
		m.sender = nil
	}
	return errors.Join(errs...)
}

// Reload implements core.Reloader. The link table and send limits apply
// immediately; token and mode need a restart.
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
	if m.sender != nil {
		if err := m.sender.SetLimits(cfg.Telegram.Throttle); err != nil {
			return fmt.Errorf("linkmap: %w", err)
		}
	}
	if m.bot != nil {
		m.bot.SetLinks(cfg.Links)
	}
	m.config = cfg
	m.logger.Info("link table reloaded", "links", len(cfg.Links))
	return nil
}

// reporter adds the send queue depth to the bot for the gateway.
type reporter struct {
	*linkmap.Bot
	sender *telegram.Sender
}

func (r reporter) QueueDepth() int { return r.sender.Depth() }
