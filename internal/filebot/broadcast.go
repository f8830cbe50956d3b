package filebot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/telegram"
)

// broadcastProgressEvery is how many users pass between progress edits.
const broadcastProgressEvery = 25

// broadcast copies msg to every registered user. Users who blocked the bot
// are removed from the registry.
func (b *Bot) broadcast(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	users, err := b.registry.Users(ctx)
	if err != nil {
		b.fail(ctx, chatID, "loading users", err)
		return
	}

	status := b.reply(ctx, chatID, fmt.Sprintf("📢 Broadcasting to %d users...", len(users)), nil)
	var sent, failed, removed int
	for i, u := range users {
		if ctx.Err() != nil {
			break
		}
		_, err := b.sender.Copy(ctx, tgbotapi.NewCopyMessage(u.ID, chatID, msg.MessageID))
		switch {
		case err == nil:
			sent++
			b.metrics.Broadcast("sent")
		case telegram.IsForbidden(err):
			if rmErr := b.registry.RemoveUser(ctx, u.ID); rmErr != nil {
				b.logger.Warn("filebot: removing blocked user", "user_id", u.ID, "error", rmErr)
			}
			removed++
			b.metrics.Broadcast("removed")
		default:
			failed++
			b.metrics.Broadcast("failed")
			b.logger.Warn("filebot: broadcast delivery failed", "user_id", u.ID, "error", err)
		}
		if done := i + 1; done%broadcastProgressEvery == 0 && done < len(users) && status.MessageID != 0 {
			b.edit(ctx, chatID, status.MessageID,
				fmt.Sprintf("📢 Broadcasting... %d/%d", done, len(users)), nil)
		}
	}

	summary := fmt.Sprintf("📢 Broadcast finished: sent %d, failed %d, removed %d.", sent, failed, removed)
	b.audit.Log(security.AuditEvent{
		Type: security.EventBroadcast, Module: "bot.filebot",
		ChatID: chatID, UserID: msg.From.ID, Detail: summary,
	})
	b.reply(ctx, chatID, summary, nil)
	b.logEvent(ctx, summary)
}
