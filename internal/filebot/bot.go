// Package filebot implements the file request bot: keyword search over
// indexed channel documents, forced channel subscription, shortened
// download links and the password-gated admin workflow.
package filebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/shortener"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telegram"
	"github.com/flemzord/filebot/internal/telemetry"
)

const msgGenericError = "⚠️ Something went wrong, please try again."

// Deps are the collaborators of a Bot. Sender, Registry, Index and Cache
// are required.
type Deps struct {
	Sender    *telegram.Sender
	Registry  store.Registry
	Index     store.Index
	Cache     store.SearchCache
	Shortener *shortener.Client
	Metrics   *telemetry.Metrics
	Audit     *security.AuditLogger
	Logger    *slog.Logger

	// BotUsername is used in deep links and caption templates.
	BotUsername string

	// Now overrides time.Now in tests.
	Now func() time.Time
}

// Bot handles Telegram updates for the file request bot.
type Bot struct {
	sender    *telegram.Sender
	registry  store.Registry
	index     store.Index
	cache     store.SearchCache
	shortener *shortener.Client
	metrics   *telemetry.Metrics
	audit     *security.AuditLogger
	logger    *slog.Logger
	username  string
	now       func() time.Time

	state *State

	mu      sync.RWMutex
	config  Config
	quota   *security.RateLimiter
	caption *template.Template
}

var _ telegram.UpdateHandler = (*Bot)(nil)

// New creates a Bot. cfg must already carry defaults.
func New(cfg Config, deps Deps) (*Bot, error) {
	if deps.Sender == nil || deps.Registry == nil || deps.Index == nil || deps.Cache == nil {
		return nil, errors.New("filebot: sender, registry, index and cache are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Shortener == nil {
		deps.Shortener = shortener.New(cfg.Shortener, nil, deps.Logger)
	}
	tmpl, err := parseCaptionTemplate(cfg.CaptionTemplate)
	if err != nil {
		return nil, err
	}
	state := NewState(cfg.PendingTTL)
	state.now = deps.Now

	quota := security.NewRateLimiter(cfg.QuotaConfig())
	quota.SetClock(deps.Now)

	return &Bot{
		sender:    deps.Sender,
		registry:  deps.Registry,
		index:     deps.Index,
		cache:     deps.Cache,
		shortener: deps.Shortener,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		logger:    deps.Logger,
		username:  deps.BotUsername,
		now:       deps.Now,
		state:     state,
		config:    cfg,
		quota:     quota,
		caption:   tmpl,
	}, nil
}

// Username returns the bot's Telegram username.
func (b *Bot) Username() string { return b.username }

// QueueDepth returns the number of calls waiting in the send queue.
func (b *Bot) QueueDepth() int { return b.sender.Depth() }

// State exposes the bot's process memory.
func (b *Bot) State() *State { return b.state }

// Config returns the active configuration.
func (b *Bot) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// Reconfigure applies the settings that can change without a restart:
// search limits, quotas, caption template, admin list and send limits.
// Token, mode and storage settings are left untouched.
func (b *Bot) Reconfigure(cfg Config) error {
	tmpl, err := parseCaptionTemplate(cfg.CaptionTemplate)
	if err != nil {
		return err
	}
	if err := b.sender.SetLimits(cfg.Telegram.Throttle); err != nil {
		return fmt.Errorf("filebot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	cfg.Telegram.Token = b.config.Telegram.Token
	cfg.Telegram.Mode = b.config.Telegram.Mode
	if cfg.QuotaConfig() != b.config.QuotaConfig() {
		b.quota = security.NewRateLimiter(cfg.QuotaConfig())
		b.quota.SetClock(b.now)
	}
	b.config = cfg
	b.caption = tmpl
	return nil
}

// Seed registers the channels listed in the configuration.
func (b *Bot) Seed(ctx context.Context) error {
	cfg := b.Config()
	seed := func(ids []int64, kind store.ChannelKind) error {
		existing, err := b.registry.Channels(ctx, kind)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if slices.ContainsFunc(existing, func(c store.Channel) bool { return c.ID == id }) {
				continue
			}
			if err := b.registry.AddChannel(ctx, store.Channel{ID: id, Kind: kind, AddedAt: b.now()}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := seed(cfg.DBChannels, store.KindDB); err != nil {
		return fmt.Errorf("filebot: seeding db channels: %w", err)
	}
	if err := seed(cfg.SubChannels, store.KindSub); err != nil {
		return fmt.Errorf("filebot: seeding sub channels: %w", err)
	}
	return nil
}

// PruneQuota drops idle search quota buckets.
func (b *Bot) PruneQuota(time.Time) int {
	b.mu.RLock()
	q := b.quota
	b.mu.RUnlock()
	return q.Prune()
}

// PruneState drops expired pending actions, sessions and verifications.
func (b *Bot) PruneState(now time.Time) int {
	return b.state.Prune(now, b.Config().VerificationDuration)
}

// HandleUpdate implements telegram.UpdateHandler.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChannelPost != nil:
		b.metrics.Update("filebot", "channel_post")
		b.handleChannelPost(ctx, update.ChannelPost)
	case update.EditedChannelPost != nil:
		b.metrics.Update("filebot", "edited_channel_post")
		b.handleChannelPost(ctx, update.EditedChannelPost)
	case update.CallbackQuery != nil:
		b.metrics.Update("filebot", "callback_query")
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.metrics.Update("filebot", "message")
		b.handleMessage(ctx, update.Message)
	default:
		b.metrics.Update("filebot", "other")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() || msg.From == nil || msg.From.IsBot {
		return
	}
	userID := msg.From.ID

	if msg.IsCommand() {
		// A command abandons an unanswered password prompt.
		if p, ok := b.state.Pending(userID); ok && p.Kind == ActionPassword {
			b.state.ClearPending(userID)
		}
		b.handleCommand(ctx, msg)
		return
	}

	admin := b.isAdmin(ctx, userID)
	pending, hasPending := b.state.Pending(userID)

	switch {
	case hasPending && pending.Kind == ActionPassword:
		b.handlePassword(ctx, msg, pending)
	case admin && hasPending && pending.Kind == ActionBroadcast:
		b.state.ClearPending(userID)
		b.broadcast(ctx, msg)
	case msg.ForwardFromChat != nil || msg.ForwardFrom != nil || msg.ForwardDate != 0:
		if admin {
			b.handleForward(ctx, msg, pending, hasPending)
			return
		}
		b.handleText(ctx, msg)
	case len(msg.Photo) > 0 && admin && (msg.Caption != "" || (hasPending && pending.Kind == ActionSetCover)):
		b.handleCover(ctx, msg)
	case admin && hasFile(msg) && b.state.HasDraft(userID):
		b.collectBatchFile(ctx, msg)
	default:
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	b.search(ctx, msg)
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	cfg := b.Config()
	if userID == cfg.AdminID || slices.Contains(cfg.Admins, userID) {
		return true
	}
	admins, err := b.registry.Admins(ctx)
	if err != nil {
		b.logger.Error("filebot: loading admins", "error", err)
		return false
	}
	return slices.Contains(admins, userID)
}

func (b *Bot) isOwner(userID int64) bool {
	return userID == b.Config().AdminID
}

// reply sends text to chatID. markup may be nil.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup any) tgbotapi.Message {
	m := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		m.ReplyMarkup = markup
	}
	sent, err := b.sender.Send(ctx, m)
	if err != nil {
		b.logger.Warn("filebot: send failed", "chat_id", chatID, "error", err)
	}
	return sent
}

// answer stops the client spinner on a callback, optionally with an alert.
func (b *Bot) answer(ctx context.Context, cq *tgbotapi.CallbackQuery, alert string) {
	c := tgbotapi.NewCallback(cq.ID, "")
	if alert != "" {
		c = tgbotapi.NewCallbackWithAlert(cq.ID, alert)
	}
	if err := b.sender.Request(ctx, c); err != nil {
		b.logger.Warn("filebot: answering callback failed", "error", err)
	}
}

// edit replaces the text of a message, falling back to a new message when
// the original cannot be edited.
func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	e := tgbotapi.NewEditMessageText(chatID, messageID, text)
	e.ReplyMarkup = markup
	err := b.sender.Request(ctx, e)
	if err == nil || telegram.IsNotModified(err) {
		return
	}
	b.logger.Warn("filebot: edit failed, sending new message", "chat_id", chatID, "error", err)
	if markup != nil {
		b.reply(ctx, chatID, text, *markup)
		return
	}
	b.reply(ctx, chatID, text, nil)
}

func (b *Bot) fail(ctx context.Context, chatID int64, op string, err error) {
	b.logger.Error("filebot: "+op, "chat_id", chatID, "error", err)
	b.reply(ctx, chatID, msgGenericError, nil)
}

func hasFile(msg *tgbotapi.Message) bool {
	return msg.Document != nil || msg.Video != nil || msg.Audio != nil
}
