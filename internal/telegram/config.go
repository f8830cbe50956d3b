package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config holds the Bot API connection settings shared by every bot module.
type Config struct {
	Token          string         `yaml:"token"`
	Mode           string         `yaml:"mode"`
	PollingTimeout int            `yaml:"polling_timeout"`
	WebhookURL     string         `yaml:"webhook_url"`
	WebhookSecret  string         `yaml:"webhook_secret"`
	AllowedUpdates []string       `yaml:"allowed_updates"`
	APIURL         string         `yaml:"api_url"`
	RequestTimeout time.Duration  `yaml:"request_timeout"`
	QueueSize      int            `yaml:"queue_size"`
	MaxConcurrent  int            `yaml:"max_concurrent_updates"`
	Throttle       ThrottleConfig `yaml:"throttle"`
}

// Defaults applies default values to unset fields.
func (c *Config) Defaults() {
	if c.Mode == "" {
		c.Mode = ModePolling
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "callback_query", "channel_post"}
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 16
	}
	c.Throttle.defaults()
}

// Validate checks configuration field constraints. Call Defaults first.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("telegram: token is required")
	}
	if !tokenPattern.MatchString(c.Token) {
		return errors.New("telegram: token format invalid (expected <bot_id>:<hash>)")
	}

	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			return errors.New("telegram: webhook_url is required when mode is \"webhook\"")
		}
		u, err := url.Parse(c.WebhookURL)
		if err != nil || u.Scheme != "https" {
			return fmt.Errorf("telegram: webhook_url must be an https URL, got %q", c.WebhookURL)
		}
	default:
		return fmt.Errorf("telegram: invalid mode %q (must be \"polling\" or \"webhook\")", c.Mode)
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL)
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		return fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout)
	}
	if c.MaxConcurrent > 1024 {
		return fmt.Errorf("telegram: max_concurrent_updates must be 1-1024, got %d", c.MaxConcurrent)
	}
	return c.Throttle.Validate()
}

// Endpoint returns the tgbotapi endpoint format string for APIURL.
func (c *Config) Endpoint() string {
	return c.APIURL + "/bot%s/%s"
}
