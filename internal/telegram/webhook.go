package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
)

// SecretHeader carries the webhook secret token set with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// ErrInvalidSecret is returned when the webhook secret header does not match.
var ErrInvalidSecret = errors.New("telegram: invalid webhook secret token")

// WebhookReceiver turns webhook payloads into dispatched updates.
// It implements gateway.WebhookHandler.
type WebhookReceiver struct {
	dispatcher *Dispatcher
	secret     string
	maxBody    int
}

// NewWebhookReceiver creates a new WebhookReceiver.
func NewWebhookReceiver(dispatcher *Dispatcher, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		dispatcher: dispatcher,
		secret:     secret,
		maxBody:    security.DefaultMaxMessageSize,
	}
}

// HandleWebhook validates the secret token header and the payload shape,
// then hands the update to the dispatcher. The gateway answers Telegram
// as soon as the update is queued.
func (w *WebhookReceiver) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return ErrInvalidSecret
		}
	}

	if err := security.ValidateMessageSize(body, w.maxBody); err != nil {
		return fmt.Errorf("telegram: webhook payload: %w", err)
	}
	if err := security.ValidateJSONDepth(body, 0); err != nil {
		return fmt.Errorf("telegram: webhook payload: %w", err)
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("telegram: invalid update JSON: %w", err)
	}
	return w.dispatcher.Dispatch(ctx, update)
}
