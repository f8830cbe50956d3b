package filebot

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/flemzord/filebot/internal/cron"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/shortener"
	"github.com/flemzord/filebot/internal/telegram"
)

// Delivery modes for a requested file.
const (
	DeliveryLink = "link"
	DeliveryCopy = "copy"
)

// Config holds the bot.filebot module settings.
type Config struct {
	Telegram telegram.Config `yaml:",inline"`

	// AdminID is the owner. The owner is always an admin and is the only one
	// allowed to manage the admin list.
	AdminID           int64   `yaml:"admin_id"`
	Admins            []int64 `yaml:"admins"`
	AdminPasswordHash string  `yaml:"admin_password_hash"`

	HelpURL      string `yaml:"help_url"`
	LogChannel   int64  `yaml:"log_channel"`
	BatchChannel int64  `yaml:"batch_channel"`

	// Seed channels, registered on start when missing.
	DBChannels  []int64 `yaml:"db_channels"`
	SubChannels []int64 `yaml:"sub_channels"`

	MinQueryLength    int           `yaml:"min_query_length"`
	SearchLimit       int           `yaml:"search_limit"`
	PageSize          int           `yaml:"page_size"`
	SearchConcurrency int           `yaml:"search_concurrency"`
	SearchQuota       int           `yaml:"search_quota"`
	SearchQuotaWindow time.Duration `yaml:"search_quota_window"`
	SearchCacheTTL    time.Duration `yaml:"search_cache_ttl"`

	VerificationDuration time.Duration `yaml:"verification_duration"`
	AdminSessionTTL      time.Duration `yaml:"admin_session_ttl"`
	PendingTTL           time.Duration `yaml:"pending_ttl"`

	Delivery        string           `yaml:"delivery"`
	CaptionTemplate string           `yaml:"caption_template"`
	Shortener       shortener.Config `yaml:"shortener"`

	PruneSchedule        string `yaml:"prune_schedule"`
	ChannelCheckSchedule string `yaml:"channel_check_schedule"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	c.Telegram.Defaults()
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = security.DefaultMinQueryRunes
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 50
	}
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
	if c.SearchConcurrency <= 0 {
		c.SearchConcurrency = 8
	}
	if c.SearchQuota <= 0 {
		c.SearchQuota = 10
	}
	if c.SearchQuotaWindow <= 0 {
		c.SearchQuotaWindow = time.Hour
	}
	if c.SearchCacheTTL <= 0 {
		c.SearchCacheTTL = 10 * time.Minute
	}
	if c.VerificationDuration <= 0 {
		c.VerificationDuration = time.Hour
	}
	if c.AdminSessionTTL <= 0 {
		c.AdminSessionTTL = 30 * time.Minute
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 15 * time.Minute
	}
	if c.Delivery == "" {
		c.Delivery = DeliveryLink
	}
	c.Shortener.Defaults()
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Telegram.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.AdminID == 0 {
		errs = append(errs, errors.New("filebot: admin_id is required"))
	}
	if c.AdminPasswordHash != "" && !security.IsPasswordHash(c.AdminPasswordHash) {
		errs = append(errs, errors.New("filebot: admin_password_hash must be a pbkdf2 hash (see `filebot hash-password`)"))
	}
	if c.PageSize > 50 {
		errs = append(errs, fmt.Errorf("filebot: page_size must be at most 50, got %d", c.PageSize))
	}
	if c.SearchLimit > 500 {
		errs = append(errs, fmt.Errorf("filebot: search_limit must be at most 500, got %d", c.SearchLimit))
	}
	switch c.Delivery {
	case DeliveryLink, DeliveryCopy:
	default:
		errs = append(errs, fmt.Errorf("filebot: delivery must be %q or %q, got %q", DeliveryLink, DeliveryCopy, c.Delivery))
	}
	if _, err := parseCaptionTemplate(c.CaptionTemplate); err != nil {
		errs = append(errs, err)
	}
	for _, id := range c.DBChannels {
		if id >= 0 {
			errs = append(errs, fmt.Errorf("filebot: db_channels: %d is not a channel id", id))
		}
	}
	for _, id := range c.SubChannels {
		if id >= 0 {
			errs = append(errs, fmt.Errorf("filebot: sub_channels: %d is not a channel id", id))
		}
	}
	if strings.TrimSpace(c.HelpURL) != "" && !strings.HasPrefix(c.HelpURL, "https://") {
		errs = append(errs, fmt.Errorf("filebot: help_url must use https, got %q", c.HelpURL))
	}
	if err := c.Shortener.Validate(); err != nil {
		errs = append(errs, err)
	}
	for key, expr := range map[string]string{
		"prune_schedule":         c.PruneSchedule,
		"channel_check_schedule": c.ChannelCheckSchedule,
	} {
		if expr == "" {
			continue
		}
		if err := cron.ValidateSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("filebot: %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// QuotaConfig returns the per-user search quota settings.
func (c *Config) QuotaConfig() security.RateLimitConfig {
	return security.RateLimitConfig{Limit: c.SearchQuota, Window: c.SearchQuotaWindow}
}

func parseCaptionTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	tmpl, err := template.New("caption").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("filebot: caption_template: %w", err)
	}
	return tmpl, nil
}
