package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig bounds outbound Bot API calls.
type ThrottleConfig struct {
	// MaxPerWindow is the maximum number of calls in any Window.
	MaxPerWindow int `yaml:"max_per_window"`

	// Window is the sliding window length.
	Window time.Duration `yaml:"window"`

	// MinDelay is the minimum spacing between two consecutive calls.
	MinDelay time.Duration `yaml:"min_delay"`
}

func (c *ThrottleConfig) defaults() {
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = 20
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.MinDelay == 0 {
		c.MinDelay = 50 * time.Millisecond
	}
}

// Validate checks the throttle bounds.
func (c ThrottleConfig) Validate() error {
	if c.MaxPerWindow < 1 || c.MaxPerWindow > 1000 {
		return fmt.Errorf("telegram: throttle.max_per_window must be 1-1000, got %d", c.MaxPerWindow)
	}
	if c.Window < 10*time.Millisecond || c.Window > time.Hour {
		return fmt.Errorf("telegram: throttle.window must be 10ms-1h, got %s", c.Window)
	}
	if c.MinDelay < 0 || c.MinDelay > c.Window {
		return fmt.Errorf("telegram: throttle.min_delay must be 0-%s, got %s", c.Window, c.MinDelay)
	}
	return nil
}

// Throttle admits at most MaxPerWindow calls in any sliding Window and
// keeps at least MinDelay between two admitted calls.
type Throttle struct {
	mu      sync.Mutex
	cfg     ThrottleConfig
	spacing *rate.Limiter
	sent    []time.Time // admitted calls still inside the window, oldest first

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewThrottle creates a Throttle. Zero fields in cfg get defaults.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	cfg.defaults()
	return &Throttle{
		cfg:     cfg,
		spacing: rate.NewLimiter(spacingLimit(cfg.MinDelay), 1),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func spacingLimit(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Wait blocks until a call may be made and records it. It returns the
// context error if ctx ends first.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		wait := t.tryAdmit()
		if wait <= 0 {
			return nil
		}
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAdmit records a call and returns zero, or returns how long to wait
// before trying again.
func (t *Throttle) tryAdmit() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evict(now)

	if len(t.sent) >= t.cfg.MaxPerWindow {
		return t.sent[0].Add(t.cfg.Window).Sub(now)
	}

	r := t.spacing.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	t.sent = append(t.sent, now)
	return 0
}

func (t *Throttle) evict(now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	i := 0
	for i < len(t.sent) && !t.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.sent = t.sent[i:]
	}
}

// Config returns the active bounds.
func (t *Throttle) Config() ThrottleConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// SetConfig replaces the bounds at runtime. Unlike the YAML defaults, a
// zero MinDelay here disables spacing. Calls already admitted keep
// counting against the new window.
func (t *Throttle) SetConfig(cfg ThrottleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	t.spacing.SetLimitAt(t.now(), spacingLimit(cfg.MinDelay))
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
