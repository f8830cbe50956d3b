// Package linkmap implements the static link bot: a fixed table of file
// names mapped to download URLs, answered on lookup.
package linkmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/telegram"
	"github.com/flemzord/filebot/internal/telemetry"
)

const (
	msgNotFound  = "File not found."
	msgEmptyList = "No files available."
	openButton   = "Open"
)

// Config holds the bot.linkmap module settings.
type Config struct {
	Telegram telegram.Config `yaml:",inline"`

	// Links maps a file name to its URL. Lookups ignore case and
	// surrounding whitespace.
	Links map[string]string `yaml:"links"`

	// Policy restricts which hosts the links may point to.
	Policy security.LinkPolicyConfig `yaml:"link_policy"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Telegram.AllowedUpdates == nil {
		c.Telegram.AllowedUpdates = []string{"message"}
	}
	c.Telegram.Defaults()
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Telegram.Validate(); err != nil {
		errs = append(errs, err)
	}
	policy := security.NewLinkPolicy(c.Policy)
	seen := make(map[string]string, len(c.Links))
	for name, link := range c.Links {
		key := normalize(name)
		if key == "" {
			errs = append(errs, errors.New("linkmap: empty file name"))
			continue
		}
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("linkmap: %q and %q collide", prev, name))
		}
		seen[key] = name
		if err := policy.Check(link); err != nil {
			errs = append(errs, fmt.Errorf("linkmap: %q: invalid URL %q: %w", name, link, err))
		}
	}
	return errors.Join(errs...)
}

// Sender is the subset of telegram.Sender the bot uses.
type Sender interface {
	Send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type entry struct {
	name string
	url  string
}

// Bot answers file name lookups from a static table.
type Bot struct {
	sender  Sender
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	links   map[string]entry
	names   []string
	account string
}

// New creates a Bot serving links.
func New(links map[string]string, sender Sender, metrics *telemetry.Metrics, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{sender: sender, metrics: metrics, logger: logger}
	b.SetLinks(links)
	return b
}

// SetLinks replaces the table.
func (b *Bot) SetLinks(links map[string]string) {
	table := make(map[string]entry, len(links))
	names := make([]string, 0, len(links))
	for name, link := range links {
		name = strings.TrimSpace(name)
		table[normalize(name)] = entry{name: name, url: link}
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	b.mu.Lock()
	b.links = table
	b.names = names
	b.mu.Unlock()
}

// SetUsername records the bot account name reported on /health.
func (b *Bot) SetUsername(name string) {
	b.mu.Lock()
	b.account = name
	b.mu.Unlock()
}

// Username implements gateway.BotReporter.
func (b *Bot) Username() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.account
}

// Lookup returns the entry for name, ignoring case and surrounding spaces.
func (b *Bot) Lookup(name string) (string, string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.links[normalize(name)]
	return e.name, e.url, ok
}

// Names returns the file names in alphabetical order.
func (b *Bot) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.names)
}

// Stats reports the table size.
func (b *Bot) Stats(context.Context) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]int{"links": len(b.links)}, nil
}

// HandleUpdate implements telegram.UpdateHandler.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	b.metrics.Update("linkmap", "message")

	switch msg.Command() {
	case "start":
		b.reply(ctx, msg.Chat.ID, b.greeting(msg.From), nil)
		return
	case "list":
		b.reply(ctx, msg.Chat.ID, b.list(), nil)
		return
	case "":
	default:
		return
	}

	name, link, ok := b.Lookup(msg.Text)
	if !ok {
		b.reply(ctx, msg.Chat.ID, msgNotFound, nil)
		return
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL(openButton, link),
	))
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("%s\n%s", name, link), markup)
}

func (b *Bot) greeting(from *tgbotapi.User) string {
	who := "there"
	if from != nil && from.FirstName != "" {
		who = from.FirstName
	}
	b.mu.RLock()
	n := len(b.links)
	b.mu.RUnlock()
	return fmt.Sprintf("Hi %s! I know %d files. Send me a file name to get its link, or /list to see them all.", who, n)
}

func (b *Bot) list() string {
	names := b.Names()
	if len(names) == 0 {
		return msgEmptyList
	}
	var sb strings.Builder
	sb.WriteString("Available files:\n")
	for _, n := range names {
		sb.WriteString("• ")
		sb.WriteString(n)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup any) {
	m := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		m.ReplyMarkup = markup
	}
	if _, err := b.sender.Send(ctx, m); err != nil {
		b.logger.Warn("linkmap: send failed", "chat_id", chatID, "error", err)
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
