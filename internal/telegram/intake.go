package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// WebhookRegistrar mounts a webhook receiver on the HTTP gateway under
// source. It returns a function that unmounts it.
type WebhookRegistrar func(source string, receiver *WebhookReceiver) (unregister func(), err error)

// Intake owns a bot's update delivery: a long-poll loop in polling mode,
// or a gateway-mounted webhook receiver in webhook mode.
type Intake struct {
	api        API
	config     Config
	dispatcher *Dispatcher
	logger     *slog.Logger

	poller     *Poller
	unregister func()
}

// StartIntake starts update delivery in the configured mode. In webhook
// mode the receiver is mounted before setWebhook so no update is lost; in
// polling mode any stale webhook is removed first, since Telegram refuses
// getUpdates while one is set.
func StartIntake(api API, cfg Config, dispatcher *Dispatcher, source string, register WebhookRegistrar, logger *slog.Logger) (*Intake, error) {
	in := &Intake{
		api:        api,
		config:     cfg,
		dispatcher: dispatcher,
		logger:     logger,
	}

	switch cfg.Mode {
	case ModeWebhook:
		if register == nil {
			return nil, errors.New("telegram: webhook mode requires the gateway.http module")
		}
		if cfg.WebhookSecret == "" {
			logger.Warn("telegram webhook running without webhook_secret")
		}
		unregister, err := register(source, NewWebhookReceiver(dispatcher, cfg.WebhookSecret))
		if err != nil {
			return nil, err
		}
		if err := SetWebhook(api, cfg.WebhookURL, cfg.WebhookSecret, cfg.AllowedUpdates); err != nil {
			unregister()
			return nil, err
		}
		in.unregister = unregister
		logger.Info("telegram webhook configured", "url", cfg.WebhookURL)

	case ModePolling:
		if err := DeleteWebhook(api); err != nil {
			return nil, err
		}
		in.poller = NewPoller(api, dispatcher, logger, cfg)
		in.poller.Start()
		logger.Info("telegram polling started", "timeout", cfg.PollingTimeout)

	default:
		return nil, fmt.Errorf("telegram: invalid mode %q", cfg.Mode)
	}
	return in, nil
}

// Stop ends update delivery and waits for in-flight handlers until ctx
// ends. The webhook itself stays registered with Telegram so updates
// queue up across restarts.
func (in *Intake) Stop(ctx context.Context) error {
	var errs []error
	if in.poller != nil {
		if err := in.poller.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telegram: stopping poller: %w", err))
		}
	}
	if in.unregister != nil {
		in.unregister()
	}
	if err := in.dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telegram: waiting for handlers: %w", err))
	}
	return errors.Join(errs...)
}
