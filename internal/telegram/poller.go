package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
	pollingErrorBackoff         = time.Second
)

// Poller receives updates with getUpdates long polling.
type Poller struct {
	api        API
	dispatcher *Dispatcher
	logger     *slog.Logger
	config     Config
	offset     int
	stopCh     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	pause   time.Duration
	backoff time.Duration
}

// NewPoller creates a new Poller.
func NewPoller(api API, dispatcher *Dispatcher, logger *slog.Logger, config Config) *Poller {
	return &Poller{
		api:        api,
		dispatcher: dispatcher,
		logger:     logger,
		config:     config,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		pause:      errorPauseDuration,
		backoff:    pollingErrorBackoff,
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop signals the polling loop to stop and waits for it until ctx ends.
// An in-flight getUpdates call cannot be interrupted, so the wait can last
// up to one polling timeout. It is safe to call Stop multiple times.
func (p *Poller) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) loop() {
	defer close(p.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.stopCh
		cancel()
	}()

	var consecutiveErrors int
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		updates, err := p.api.GetUpdates(tgbotapi.UpdateConfig{
			Offset:         p.offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			delay := p.backoff
			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors", "pause", p.pause)
				delay = p.pause
				consecutiveErrors = 0
			}
			if wait := RetryAfter(err); wait > delay {
				delay = wait
			}
			if sleepContext(ctx, delay) != nil {
				return
			}
			continue
		}
		consecutiveErrors = 0

		for _, update := range updates {
			p.offset = update.UpdateID + 1
			if err := p.dispatcher.Dispatch(ctx, update); err != nil {
				return
			}
		}
	}
}
