package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"
)

// UpdateHandler processes a single update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// UpdateHandlerFunc adapts a function to UpdateHandler.
type UpdateHandlerFunc func(ctx context.Context, update tgbotapi.Update)

// HandleUpdate implements UpdateHandler.
func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	f(ctx, update)
}

// Dispatcher runs handlers on their own goroutines, at most limit at a
// time. A panicking handler is logged and does not take the process down.
type Dispatcher struct {
	handler UpdateHandler
	sem     *semaphore.Weighted
	logger  *slog.Logger
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher. The handler contexts derive from a
// context that Wait cancels on timeout.
func NewDispatcher(handler UpdateHandler, limit int, logger *slog.Logger) *Dispatcher {
	if limit <= 0 {
		limit = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		sem:     semaphore.NewWeighted(int64(limit)),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch starts handling update. It blocks while limit handlers are
// already running, or until ctx ends.
func (d *Dispatcher) Dispatch(ctx context.Context, update tgbotapi.Update) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("update handler panicked",
					"update_id", update.UpdateID,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		d.handler.HandleUpdate(d.ctx, update)
	}()
	return nil
}

// Wait blocks until running handlers return. If ctx ends first, their
// context is cancelled and ctx's error is returned.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
