package gateway

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// BotReporter exposes a running bot's live state on /health and /status.
type BotReporter interface {
	Username() string
	QueueDepth() int
	Stats(ctx context.Context) (map[string]int, error)
}

// Bots is the set of running bots known to the gateway. Bot modules
// register themselves at Start and unregister at Stop.
type Bots struct {
	mu      sync.RWMutex
	entries map[string]BotReporter
}

// NewBots creates an empty set.
func NewBots() *Bots {
	return &Bots{entries: make(map[string]BotReporter)}
}

// Register adds or replaces the reporter for a module ID.
func (b *Bots) Register(id string, r BotReporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[id] = r
}

// Unregister removes a module's reporter.
func (b *Bots) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
}

// Get returns the reporter registered for a module ID.
func (b *Bots) Get(id string) (BotReporter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.entries[id]
	return r, ok
}

type namedReporter struct {
	id string
	BotReporter
}

// list returns the reporters sorted by module ID.
func (b *Bots) list() []namedReporter {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	out := make([]namedReporter, 0, len(b.entries))
	for id, r := range b.entries {
		out = append(out, namedReporter{id: id, BotReporter: r})
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(x, y namedReporter) int {
		return strings.Compare(x.id, y.id)
	})
	return out
}
