package linkmap

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/gateway"
	"github.com/flemzord/filebot/internal/telegram"
	"github.com/flemzord/filebot/internal/telegram/telegramtest"
)

const baseConfig = `
token: "456:def"
links:
  "Physics Notes": https://example.com/physics.pdf
`

func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	return node.Content[0]
}

func newModule(t *testing.T, api *telegramtest.FakeAPI) (*Module, *core.AppContext) {
	t.Helper()
	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), t.TempDir())
	appCtx.RegisterService("gateway.bots", gateway.NewBots())

	m := &Module{dial: func(telegram.Config) (telegram.API, string, error) {
		return api, "links_bot", nil
	}}
	if err := m.Configure(mustYAMLNode(t, baseConfig)); err != nil {
		t.Fatal(err)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	return m, appCtx
}

func waitTexts(api *telegramtest.FakeAPI, chatID int64, n int) []string {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := api.Texts(chatID); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return api.Texts(chatID)
}

func TestModule_AnswersLookups(t *testing.T) {
	t.Parallel()

	api := telegramtest.NewFakeAPI()
	api.Updates = [][]tgbotapi.Update{{{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 9},
			Chat:      &tgbotapi.Chat{ID: 9, Type: "private"},
			Text:      "physics notes",
		},
	}}}
	m, appCtx := newModule(t, api)

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	texts := waitTexts(api, 9, 1)
	if len(texts) != 1 || !strings.Contains(texts[0], "physics.pdf") {
		t.Errorf("texts = %v", texts)
	}

	bots, _ := core.LookupService[*gateway.Bots](appCtx, "gateway.bots")
	r, ok := bots.Get("bot.linkmap")
	if !ok {
		t.Fatal("bot not registered")
	}
	if r.Username() != "links_bot" || r.QueueDepth() != 0 {
		t.Errorf("reporter = %s/%d", r.Username(), r.QueueDepth())
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := bots.Get("bot.linkmap"); ok {
		t.Error("bot still registered after Stop")
	}
}

func TestModule_ReloadReplacesLinks(t *testing.T) {
	t.Parallel()

	m, appCtx := newModule(t, telegramtest.NewFakeAPI())
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Stop(context.Background()) }()

	var modules map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(`
bot.linkmap:
  token: "456:def"
  links:
    Algebra: https://example.com/algebra.pdf
`), &modules); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(appCtx.WithModuleConfigs(modules)); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, _, ok := m.bot.Lookup("physics notes"); ok {
		t.Error("old link still served")
	}
	if _, link, ok := m.bot.Lookup("ALGEBRA"); !ok || link != "https://example.com/algebra.pdf" {
		t.Errorf("Lookup = %q, %v", link, ok)
	}
}

func TestModule_ValidateRejectsBadLink(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(mustYAMLNode(t, "token: \"456:def\"\nlinks:\n  a: not-a-url\n")); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err == nil {
		t.Error("expected validation error")
	}
}
