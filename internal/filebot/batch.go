package filebot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/store"
)

const (
	msgBatchNoChannel = "❌ batch_channel is not configured."
	msgBatchUsage     = "Usage: /batch <keyword>"
	msgBatchEmpty     = "Batch discarded: no files were added."
	msgNoBatch        = "No batch in progress. Start one with /batch <keyword>."
	msgBatchNotFound  = "❌ Batch not found."
)

func (b *Bot) startBatch(ctx context.Context, chatID, userID int64, keyword string) {
	if b.Config().BatchChannel == 0 {
		b.reply(ctx, chatID, msgBatchNoChannel, nil)
		return
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		b.reply(ctx, chatID, msgBatchUsage, nil)
		return
	}
	b.state.StartDraft(userID, keyword)
	b.reply(ctx, chatID, fmt.Sprintf("📦 Batch started for %q. Send the files, then /done.", keyword), nil)
}

// collectBatchFile copies an admin's file into the batch channel and
// records the copy in the draft.
func (b *Bot) collectBatchFile(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	c := tgbotapi.NewCopyMessage(b.Config().BatchChannel, chatID, msg.MessageID)
	id, err := b.sender.Copy(ctx, c)
	if err != nil {
		b.fail(ctx, chatID, "copying file to batch channel", err)
		return
	}
	n, ok := b.state.AppendDraft(msg.From.ID, id)
	if !ok {
		b.reply(ctx, chatID, msgNoBatch, nil)
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("✅ Added (%d)", n), nil)
}

func (b *Bot) finishBatch(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	draft, ok := b.state.TakeDraft(userID)
	if !ok {
		b.reply(ctx, chatID, msgNoBatch, nil)
		return
	}
	if len(draft.MessageIDs) == 0 {
		b.reply(ctx, chatID, msgBatchEmpty, nil)
		return
	}

	batch := store.Batch{
		ID:         strings.ReplaceAll(uuid.NewString(), "-", ""),
		Keyword:    draft.Keyword,
		ChannelID:  b.Config().BatchChannel,
		MessageIDs: draft.MessageIDs,
		CreatedBy:  userID,
		CreatedAt:  b.now(),
	}
	if err := b.registry.SaveBatch(ctx, batch); err != nil {
		b.fail(ctx, chatID, "saving batch", err)
		return
	}
	b.audit.Log(security.AuditEvent{
		Type: security.EventBatchCreate, Module: "bot.filebot",
		ChatID: chatID, UserID: userID, Target: batch.ID,
		Metadata: map[string]string{"keyword": batch.Keyword, "files": fmt.Sprint(len(batch.MessageIDs))},
	})
	link := b.batchLink(batch.ID)
	b.reply(ctx, chatID, fmt.Sprintf("✅ Batch saved with %d file(s).\n%s", len(batch.MessageIDs), link), nil)
	b.logEvent(ctx, fmt.Sprintf("📦 Batch %q created by %d (%d files)", batch.Keyword, userID, len(batch.MessageIDs)))
}

// deliverBatch copies every message of a batch to chatID through the send
// queue, which spaces them out.
func (b *Bot) deliverBatch(ctx context.Context, chatID int64, id string) {
	batch, err := b.registry.Batch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		b.reply(ctx, chatID, msgBatchNotFound, nil)
		return
	}
	if err != nil {
		b.fail(ctx, chatID, "loading batch", err)
		return
	}

	caption := b.renderCaption(CaptionData{Keyword: batch.Keyword, BotUsername: b.username}, "")
	for _, msgID := range batch.MessageIDs {
		c := tgbotapi.NewCopyMessage(chatID, batch.ChannelID, msgID)
		c.Caption = caption
		if _, err := b.sender.Copy(ctx, c); err != nil {
			b.logger.Warn("filebot: delivering batch file",
				"batch", batch.ID, "message_id", msgID, "error", err)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (b *Bot) batchLink(id string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%s", b.username, batchStartParam, id)
}
