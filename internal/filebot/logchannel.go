package filebot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// logEvent posts text to the log channel, if one is configured. Failures
// are only logged.
func (b *Bot) logEvent(ctx context.Context, text string) {
	id := b.Config().LogChannel
	if id == 0 {
		return
	}
	m := tgbotapi.NewMessage(id, text)
	m.DisableWebPagePreview = true
	if _, err := b.sender.Send(ctx, m); err != nil {
		b.logger.Warn("filebot: posting to log channel", "channel_id", id, "error", err)
	}
}
