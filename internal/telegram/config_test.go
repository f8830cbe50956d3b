package telegram

import (
	"strings"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid polling", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Token = "" }, wantErr: "token is required"},
		{name: "bad token", mutate: func(c *Config) { c.Token = "nope" }, wantErr: "token format"},
		{name: "bad mode", mutate: func(c *Config) { c.Mode = "push" }, wantErr: "invalid mode"},
		{name: "webhook without url", mutate: func(c *Config) { c.Mode = ModeWebhook }, wantErr: "webhook_url is required"},
		{name: "webhook over http", mutate: func(c *Config) {
			c.Mode = ModeWebhook
			c.WebhookURL = "http://bot.example/webhooks/telegram"
		}, wantErr: "https"},
		{name: "valid webhook", mutate: func(c *Config) {
			c.Mode = ModeWebhook
			c.WebhookURL = "https://bot.example/webhooks/telegram"
		}},
		{name: "polling timeout", mutate: func(c *Config) { c.PollingTimeout = 99 }, wantErr: "polling_timeout"},
		{name: "bad api url", mutate: func(c *Config) { c.APIURL = "ftp://x" }, wantErr: "api_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Token: "123456:ABC-def_ghi"}
			cfg.Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Endpoint(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.Defaults()
	if got := cfg.Endpoint(); got != "https://api.telegram.org/bot%s/%s" {
		t.Errorf("Endpoint = %q", got)
	}
}
