package filebot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/security/securitytest"
	"github.com/flemzord/filebot/internal/shortener"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telegram"
	"github.com/flemzord/filebot/internal/telegram/telegramtest"
)

const (
	ownerID  int64 = 1
	userID   int64 = 42
	dbChanA  int64 = -1001111111111
	dbChanB  int64 = -1002222222222
	subChan  int64 = -1003333333333
	batchCh  int64 = -1004444444444
	logChan  int64 = -1005555555555
	botName        = "file_request_bot"
	testPass       = "correct horse"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingIndex records how often Search is called.
type countingIndex struct {
	store.Index
	searches atomic.Int32
	failFor  int64
}

func (x *countingIndex) Search(ctx context.Context, channelID int64, query string, limit int) ([]store.Document, error) {
	x.searches.Add(1)
	if x.failFor != 0 && channelID == x.failFor {
		return nil, io.ErrUnexpectedEOF
	}
	return x.Index.Search(ctx, channelID, query, limit)
}

type harness struct {
	t        *testing.T
	bot      *Bot
	api      *telegramtest.FakeAPI
	registry *store.MemoryRegistry
	index    *countingIndex
	cache    *store.MemorySearchCache
	clock    *fakeClock
	events   func() []security.AuditEvent
}

type harnessOption func(*Config, *Deps)

func withPassword(t *testing.T) harnessOption {
	hash, err := security.HashPassword(testPass)
	if err != nil {
		t.Fatal(err)
	}
	return func(c *Config, _ *Deps) { c.AdminPasswordHash = hash }
}

func withShortener(s *shortener.Client) harnessOption {
	return func(_ *Config, d *Deps) { d.Shortener = s }
}

func withConfig(fn func(*Config)) harnessOption {
	return func(c *Config, _ *Deps) { fn(c) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	api := telegramtest.NewFakeAPI()
	throttle := telegram.NewThrottle(telegram.ThrottleConfig{})
	if err := throttle.SetConfig(telegram.ThrottleConfig{MaxPerWindow: 1000, Window: time.Second}); err != nil {
		t.Fatal(err)
	}
	sender := telegram.NewSender(api, telegram.SenderOptions{Throttle: throttle, Logger: discardLogger()})
	sender.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sender.Stop(ctx)
	})

	registry := store.NewMemoryRegistry()
	index := &countingIndex{Index: store.NewMemoryIndex()}
	cache := store.NewMemorySearchCache()
	clock := newFakeClock()
	audit, events := securitytest.NewTestAuditLogger()

	cfg := Config{
		Telegram:     telegram.Config{Token: "123456:test-token"},
		AdminID:      ownerID,
		BatchChannel: batchCh,
	}
	deps := Deps{
		Sender:      sender,
		Registry:    registry,
		Index:       index,
		Cache:       cache,
		Shortener:   shortener.New(shortener.Config{}, nil, discardLogger()),
		Audit:       audit,
		Logger:      discardLogger(),
		BotUsername: botName,
		Now:         clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	cfg.Defaults()

	bot, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{
		t: t, bot: bot, api: api, registry: registry,
		index: index, cache: cache, clock: clock, events: events,
	}
}

func (h *harness) addChannel(id int64, kind store.ChannelKind, username string) {
	h.t.Helper()
	err := h.registry.AddChannel(context.Background(), store.Channel{
		ID: id, Kind: kind, Username: username, AddedAt: h.clock.Now(),
	})
	if err != nil {
		h.t.Fatal(err)
	}
	h.clock.Advance(time.Second)
}

func (h *harness) addDoc(channelID int64, messageID int, name string, size int64) {
	h.t.Helper()
	err := h.index.Add(context.Background(), store.Document{
		ChannelID: channelID, MessageID: messageID, FileID: "f" + name,
		FileName: name, FileSize: size, IndexedAt: h.clock.Now(),
	})
	if err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) send(u tgbotapi.Update) {
	h.bot.HandleUpdate(context.Background(), u)
}

func (h *harness) texts(chatID int64) []string {
	return h.api.Texts(chatID)
}

func (h *harness) lastText(chatID int64) string {
	texts := h.api.Texts(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (h *harness) callbacks() []tgbotapi.CallbackConfig {
	return telegramtest.Requests[tgbotapi.CallbackConfig](h.api)
}

func privateMessage(from int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: from, FirstName: "Test", UserName: "tester"},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}}
}

func command(from int64, text string) tgbotapi.Update {
	u := privateMessage(from, text)
	name, _, _ := strings.Cut(text, " ")
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return u
}

func callback(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-" + data,
		From: &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{
			MessageID: 99,
			Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		},
		Data: data,
	}}
}

func channelPost(chatID int64, messageID int, doc *tgbotapi.Document) tgbotapi.Update {
	return tgbotapi.Update{ChannelPost: &tgbotapi.Message{
		MessageID: messageID,
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "channel"},
		Document:  doc,
	}}
}

func keyboard(t *testing.T, m tgbotapi.MessageConfig) tgbotapi.InlineKeyboardMarkup {
	t.Helper()
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("message %q has no inline keyboard (%T)", m.Text, m.ReplyMarkup)
	}
	return kb
}

func editsTo(h *harness, chatID int64) []tgbotapi.EditMessageTextConfig {
	var out []tgbotapi.EditMessageTextConfig
	for _, e := range telegramtest.Requests[tgbotapi.EditMessageTextConfig](h.api) {
		if e.ChatID == chatID {
			out = append(out, e)
		}
	}
	return out
}
