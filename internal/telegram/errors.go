package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrQueueClosed is returned by Sender methods after Stop.
var ErrQueueClosed = errors.New("telegram: send queue closed")

// APIError extracts the Bot API error carried by err, if any.
func APIError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

// RetryAfter returns the flood-wait duration requested by the server, or
// zero when err is not a 429 response.
func RetryAfter(err error) time.Duration {
	apiErr, ok := APIError(err)
	if !ok || apiErr.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(apiErr.RetryAfter) * time.Second
}

// IsForbidden reports whether the bot is not allowed to write to the chat,
// typically because the user blocked the bot.
func IsForbidden(err error) bool {
	apiErr, ok := APIError(err)
	return ok && apiErr.Code == http.StatusForbidden
}

// IsChatGone reports whether the chat no longer exists or the bot lost
// access to it.
func IsChatGone(err error) bool {
	apiErr, ok := APIError(err)
	if !ok {
		return false
	}
	if apiErr.Code == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return apiErr.Code == http.StatusBadRequest && strings.Contains(msg, "chat not found")
}

// IsNotModified reports the harmless "message is not modified" edit error.
func IsNotModified(err error) bool {
	apiErr, ok := APIError(err)
	return ok && apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "message is not modified")
}
