// Package shortener rewrites links through a GPLinks-compatible shortening
// API. Shortening never fails from the caller's point of view: any problem
// yields the original URL.
package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize caps how much of a shortener response is read.
const maxResponseSize = 64 * 1024

// Response formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config configures the shortener client.
type Config struct {
	APIURL  string        `yaml:"api_url"`
	APIKey  string        `yaml:"api_key"`
	Format  string        `yaml:"format"`
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.gplinks.in/api"
	}
	if c.Format == "" {
		c.Format = FormatText
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Validate checks the configuration. An empty APIKey is valid and
// disables shortening.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("shortener: api_url must be a valid http/https URL, got %q", c.APIURL)
	}
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("shortener: format must be %q or %q, got %q", FormatText, FormatJSON, c.Format)
	}
	return nil
}

// Client calls the shortening API.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client. A nil httpClient gets one with Config.Timeout.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg.Defaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: cfg, http: httpClient, logger: logger}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.config.APIKey != ""
}

// Shorten returns the short form of longURL, or longURL itself when
// shortening is disabled or fails for any reason.
func (c *Client) Shorten(ctx context.Context, longURL string) string {
	if !c.Enabled() {
		return longURL
	}
	short, err := c.shorten(ctx, longURL)
	if err != nil {
		c.logger.Warn("link shortening failed, using original URL", "error", err)
		return longURL
	}
	return short
}

type jsonResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      any    `json:"message"`
}

func (c *Client) shorten(ctx context.Context, longURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u, err := url.Parse(c.config.APIURL)
	if err != nil {
		return "", fmt.Errorf("shortener: parse api_url: %w", err)
	}
	q := u.Query()
	q.Set("api", c.config.APIKey)
	q.Set("url", longURL)
	q.Set("format", c.config.Format)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("shortener: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("shortener: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("shortener: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shortener: unexpected status %d", resp.StatusCode)
	}

	var short string
	if c.config.Format == FormatJSON {
		var jr jsonResponse
		if err := json.Unmarshal(body, &jr); err != nil {
			return "", fmt.Errorf("shortener: decode response: %w", err)
		}
		if jr.Status != "success" {
			return "", fmt.Errorf("shortener: status %q: %v", jr.Status, jr.Message)
		}
		short = strings.TrimSpace(jr.ShortenedURL)
	} else {
		short = strings.TrimSpace(string(body))
	}

	if short == "" {
		return "", errors.New("shortener: empty response")
	}
	if p, err := url.Parse(short); err != nil || p.Scheme == "" || p.Host == "" {
		return "", fmt.Errorf("shortener: response is not a URL: %q", truncate(short, 80))
	}
	return short, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
