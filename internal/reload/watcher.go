// Package reload applies configuration changes to running modules, either
// on SIGHUP or when the config file or its dotenv file changes on disk.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files to watch, typically filebot.yaml and its .env.
	// A path that does not exist yet is watched for creation.
	Paths []string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified means the file content changed.
	EventModified EventType = "modified"
	// EventCreated means a previously missing file appeared.
	EventCreated EventType = "created"
)

// Event reports one changed file.
type Event struct {
	Type EventType
	Path string
}

// fingerprint identifies a file version. Size catches rewrites within the
// modtime granularity of the filesystem.
type fingerprint struct {
	mod  time.Time
	size int64
	ok   bool
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{mod: info.ModTime(), size: info.Size(), ok: true}
}

// Watcher polls a set of files. Changes found in the same tick collapse
// into a single pending event; a reload reads every file anyway.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of file change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and waits for the poll loop to exit. Safe to call
// multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := make([]fingerprint, len(w.cfg.Paths))
	for i, p := range w.cfg.Paths {
		last[i] = stat(p)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			for i, p := range w.cfg.Paths {
				cur := stat(p)
				prev := last[i]
				// A deleted file keeps its previous fingerprint so that
				// an editor's delete-and-rename save reads as one change.
				if !cur.ok || cur == prev {
					continue
				}
				last[i] = cur
				evt := Event{Type: EventModified, Path: p}
				if !prev.ok {
					evt.Type = EventCreated
				}
				select {
				case w.events <- evt:
				default:
				}
			}
		}
	}
}
