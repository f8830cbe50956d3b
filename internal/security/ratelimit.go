package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key exceeds its quota.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds a per-key quota.
type RateLimitConfig struct {
	// Limit is the number of events a key may record per Window.
	Limit int `yaml:"limit"`

	// Window is the sliding window length.
	Window time.Duration `yaml:"window"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		Limit:  10,
		Window: time.Hour,
	}
}

// RateLimiter implements a keyed sliding-window quota. Each key (a user ID
// for searches, a remote address for the gateway) owns its own bucket of
// event timestamps.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  RateLimitConfig
	now     func() time.Time
}

type bucket struct {
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	return &RateLimiter{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow records one event for key. It returns ErrRateLimited without
// recording anything when the key already used its quota.
func (rl *RateLimiter) Allow(key string) error {
	return rl.AllowN(key, 1)
}

// AllowN records n events for key at once.
func (rl *RateLimiter) AllowN(key string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{}
		rl.buckets[key] = b
	}
	b.evict(now, rl.config.Window)

	if len(b.events)+n > rl.config.Limit {
		return ErrRateLimited
	}
	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// Remaining returns how many events key may still record in the current window.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return rl.config.Limit
	}
	b.evict(rl.now(), rl.config.Window)
	return max(rl.config.Limit-len(b.events), 0)
}

// RetryAfter returns how long key must wait before its next event is
// allowed. Zero means an event is allowed now.
func (rl *RateLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return 0
	}
	now := rl.now()
	b.evict(now, rl.config.Window)
	if len(b.events) < rl.config.Limit {
		return 0
	}
	oldest := b.events[len(b.events)-rl.config.Limit]
	return oldest.Add(rl.config.Window).Sub(now)
}

// Prune drops buckets with no events left in the window and returns how
// many were removed. The state_prune cron job calls it.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		b.evict(now, rl.config.Window)
		if len(b.events) == 0 {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// SetClock replaces time.Now. Call it before the limiter is shared.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Config returns the active quota.
func (rl *RateLimiter) Config() RateLimitConfig {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.config
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && !b.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
