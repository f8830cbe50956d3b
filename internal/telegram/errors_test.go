package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	flood := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 4}}
	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	notFound := &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	notModified := tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}

	if got := RetryAfter(fmt.Errorf("wrapped: %w", flood)); got != 4*time.Second {
		t.Errorf("RetryAfter = %v, want 4s", got)
	}
	if RetryAfter(errors.New("plain")) != 0 {
		t.Error("RetryAfter should be zero for non-API errors")
	}
	if !IsForbidden(blocked) || IsForbidden(notFound) {
		t.Error("IsForbidden misclassified")
	}
	if !IsChatGone(notFound) || !IsChatGone(blocked) || IsChatGone(flood) {
		t.Error("IsChatGone misclassified")
	}
	if !IsNotModified(notModified) {
		t.Error("IsNotModified should match a value error")
	}
}
