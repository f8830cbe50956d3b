package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SendObserver is notified after every queued call. wait is the time the
// call spent queued and throttled.
type SendObserver func(method string, wait time.Duration, err error)

// SenderOptions configures a Sender.
type SenderOptions struct {
	QueueSize int
	Throttle  *Throttle
	Logger    *slog.Logger
	Observe   SendObserver
}

type sendJob struct {
	ctx      context.Context
	method   string
	call     func() error
	queuedAt time.Time
	done     chan error
}

// Sender serializes outbound calls through a single worker so they reach
// Telegram in submission order and within the throttle bounds. A flood
// wait answer is honoured once: the worker sleeps for retry_after and
// retries the call.
type Sender struct {
	api      API
	throttle *Throttle
	logger   *slog.Logger
	observe  SendObserver
	queue    chan *sendJob

	mu       sync.RWMutex
	closed   bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewSender creates a Sender. Call Start before submitting work.
func NewSender(api API, opts SenderOptions) *Sender {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Throttle == nil {
		opts.Throttle = NewThrottle(ThrottleConfig{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sender{
		api:      api,
		throttle: opts.Throttle,
		logger:   opts.Logger,
		observe:  opts.Observe,
		queue:    make(chan *sendJob, opts.QueueSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Start launches the worker goroutine.
func (s *Sender) Start() {
	go s.loop()
}

// Stop rejects new work, lets the worker drain what is queued, and waits
// for it until ctx ends. It is safe to call Stop multiple times.
func (s *Sender) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.abort()
		return ctx.Err()
	}
}

func (s *Sender) abort() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Throttle returns the throttle pacing this sender.
func (s *Sender) Throttle() *Throttle { return s.throttle }

// SetLimits changes the pacing of calls not yet admitted.
func (s *Sender) SetLimits(cfg ThrottleConfig) error {
	return s.throttle.SetConfig(cfg)
}

// Depth returns the number of calls waiting in the queue.
func (s *Sender) Depth() int { return len(s.queue) }

// API returns the underlying client for calls that bypass the queue.
func (s *Sender) API() API { return s.api }

// Send queues c and returns the sent message.
func (s *Sender) Send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	err := s.submit(ctx, methodName(c), func() error {
		var err error
		msg, err = s.api.Send(c)
		return err
	})
	return msg, err
}

// Request queues c for methods that answer with a bare result, such as
// answerCallbackQuery or deleteMessage.
func (s *Sender) Request(ctx context.Context, c tgbotapi.Chattable) error {
	return s.submit(ctx, methodName(c), func() error {
		_, err := s.api.Request(c)
		return err
	})
}

// Copy queues a copyMessage call and returns the new message ID.
func (s *Sender) Copy(ctx context.Context, c tgbotapi.CopyMessageConfig) (int, error) {
	var id tgbotapi.MessageID
	err := s.submit(ctx, "copyMessage", func() error {
		var err error
		id, err = s.api.CopyMessage(c)
		return err
	})
	return id.MessageID, err
}

func (s *Sender) submit(ctx context.Context, method string, call func() error) error {
	job := &sendJob{
		ctx:      ctx,
		method:   method,
		call:     call,
		queuedAt: s.now(),
		done:     make(chan error, 1),
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case s.queue <- job:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sender) loop() {
	defer close(s.done)
	for job := range s.queue {
		err := s.run(job)
		if s.observe != nil {
			s.observe(job.method, s.now().Sub(job.queuedAt), err)
		}
		job.done <- err
	}
}

// run executes one job. The job context bounds throttling and flood waits;
// the stop channel aborts them during a forced shutdown.
func (s *Sender) run(job *sendJob) error {
	ctx, cancel := context.WithCancel(job.ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.throttle.Wait(ctx); err != nil {
		return err
	}

	err := job.call()
	wait := RetryAfter(err)
	if wait <= 0 {
		return err
	}

	s.logger.Warn("flood wait, retrying once", "method", job.method, "retry_after", wait)
	if err := s.sleep(ctx, wait); err != nil {
		return errors.Join(fmt.Errorf("telegram: %s: flood wait interrupted", job.method), err)
	}
	if err := s.throttle.Wait(ctx); err != nil {
		return err
	}
	return job.call()
}

// methodName labels a call for logs and metrics.
func methodName(c tgbotapi.Chattable) string {
	switch c.(type) {
	case tgbotapi.MessageConfig:
		return "sendMessage"
	case tgbotapi.EditMessageTextConfig:
		return "editMessageText"
	case tgbotapi.EditMessageReplyMarkupConfig:
		return "editMessageReplyMarkup"
	case tgbotapi.PhotoConfig:
		return "sendPhoto"
	case tgbotapi.DocumentConfig:
		return "sendDocument"
	case tgbotapi.CopyMessageConfig:
		return "copyMessage"
	case tgbotapi.CallbackConfig:
		return "answerCallbackQuery"
	case tgbotapi.DeleteMessageConfig:
		return "deleteMessage"
	default:
		return "other"
	}
}
