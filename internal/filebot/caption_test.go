package filebot

import (
	"strings"
	"testing"
)

func TestRenderCaption(t *testing.T) {
	t.Parallel()

	data := CaptionData{FileName: "a.zip", SizeMB: "1.5", Caption: "orig", BotUsername: "bot"}
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"empty keeps original", "", "orig"},
		{"renders", "{{.FileName}} {{.SizeMB}}MB @{{.BotUsername}}", "a.zip 1.5MB @bot"},
		{"exec error falls back", "{{.FileName.Missing}}", "orig"},
		{"trims", "  {{.FileName}}\n", "a.zip"},
	}
	for _, tt := range tests {
		h := newHarness(t, withConfig(func(c *Config) { c.CaptionTemplate = tt.template }))
		if got := h.bot.renderCaption(data, data.Caption); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRenderCaption_Truncates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withConfig(func(c *Config) { c.CaptionTemplate = "{{.Caption}}" }))
	got := h.bot.renderCaption(CaptionData{Caption: strings.Repeat("é", 2000)}, "")
	if n := len([]rune(got)); n != maxCaptionLength {
		t.Errorf("caption runes = %d, want %d", n, maxCaptionLength)
	}
}

func TestReconfigure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cfg := h.bot.Config()
	cfg.CaptionTemplate = "new {{.FileName}}"
	cfg.SearchQuota = 1
	cfg.Telegram.Token = "999:other"
	if err := h.bot.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if got := h.bot.renderCaption(CaptionData{FileName: "x"}, ""); got != "new x" {
		t.Errorf("caption = %q", got)
	}
	if h.bot.Config().Telegram.Token == "999:other" {
		t.Error("token must not change on reload")
	}

	cfg.CaptionTemplate = "{{"
	if err := h.bot.Reconfigure(cfg); err == nil {
		t.Error("expected template error")
	}
}
