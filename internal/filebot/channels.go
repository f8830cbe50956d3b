package filebot

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telegram"
)

// handleChannelPost indexes files posted in a registered DB channel.
func (b *Bot) handleChannelPost(ctx context.Context, post *tgbotapi.Message) {
	if post.Chat == nil || !hasFile(post) {
		return
	}
	registered, err := b.isDBChannel(ctx, post.Chat.ID)
	if err != nil {
		b.logger.Error("filebot: loading db channels", "error", err)
		return
	}
	if !registered {
		return
	}
	if doc, ok := documentFrom(post, post.Chat.ID, post.MessageID, b.now()); ok {
		b.indexDocument(ctx, doc)
	}
}

// isDBChannel reports whether id is in the DB channel set.
func (b *Bot) isDBChannel(ctx context.Context, id int64) (bool, error) {
	dbs, err := b.registry.Channels(ctx, store.KindDB)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(dbs, func(c store.Channel) bool { return c.ID == id }), nil
}

func (b *Bot) indexDocument(ctx context.Context, doc store.Document) {
	if err := b.index.Add(ctx, doc); err != nil {
		b.logger.Error("filebot: indexing document",
			"channel_id", doc.ChannelID, "message_id", doc.MessageID, "error", err)
		return
	}
	b.metrics.Indexed()
	b.logger.Debug("filebot: document indexed",
		"channel_id", doc.ChannelID, "message_id", doc.MessageID, "file", doc.FileName)
}

// documentFrom extracts the file of msg, addressed as channelID/messageID.
func documentFrom(msg *tgbotapi.Message, channelID int64, messageID int, now time.Time) (store.Document, bool) {
	doc := store.Document{
		ChannelID: channelID,
		MessageID: messageID,
		Caption:   msg.Caption,
		IndexedAt: now,
	}
	switch {
	case msg.Document != nil:
		f := msg.Document
		doc.FileID, doc.FileUniqueID = f.FileID, f.FileUniqueID
		doc.FileName, doc.MIMEType, doc.FileSize = f.FileName, f.MimeType, int64(f.FileSize)
	case msg.Video != nil:
		f := msg.Video
		doc.FileID, doc.FileUniqueID = f.FileID, f.FileUniqueID
		doc.FileName, doc.MIMEType, doc.FileSize = f.FileName, f.MimeType, int64(f.FileSize)
	case msg.Audio != nil:
		f := msg.Audio
		doc.FileID, doc.FileUniqueID = f.FileID, f.FileUniqueID
		doc.FileName, doc.MIMEType, doc.FileSize = f.FileName, f.MimeType, int64(f.FileSize)
		if doc.FileName == "" {
			doc.FileName = f.Title
		}
	default:
		return store.Document{}, false
	}
	if doc.FileName == "" {
		doc.FileName = firstLine(msg.Caption)
	}
	if doc.FileName == "" || messageID == 0 {
		return store.Document{}, false
	}
	return doc, true
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// CheckChannels asks Telegram about every registered channel and drops the
// ones the bot can no longer reach. It implements cron.ChannelChecker.
func (b *Bot) CheckChannels(ctx context.Context) (int, error) {
	all, err := b.registry.Channels(ctx, "")
	if err != nil {
		return 0, err
	}
	api := b.sender.API()
	removed := 0
	var errs []error
	// A channel in both sets is asked about once.
	seen := make(map[int64]error, len(all))
	for _, ch := range all {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		err, ok := seen[ch.ID]
		if !ok {
			_, err = api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: ch.ID}})
			seen[ch.ID] = err
		}
		if err == nil {
			continue
		}
		if !telegram.IsChatGone(err) {
			if !ok {
				errs = append(errs, err)
			}
			continue
		}
		b.logger.Warn("filebot: channel unreachable, removing", "channel_id", ch.ID, "kind", ch.Kind, "error", err)
		if err := b.registry.RemoveChannel(ctx, ch.ID, ch.Kind); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if ch.Kind == store.KindDB {
			if _, err := b.index.DeleteChannel(ctx, ch.ID); err != nil {
				errs = append(errs, err)
			}
		}
		b.audit.Log(security.AuditEvent{
			Type: security.EventChannelRemove, Module: "bot.filebot",
			Target: strconv.FormatInt(ch.ID, 10), Detail: "unreachable",
			Metadata: map[string]string{"kind": string(ch.Kind)},
		})
		b.logEvent(ctx, "⚠️ Channel "+channelLabel(ch)+" is no longer reachable and was removed.")
		removed++
	}
	return removed, errors.Join(errs...)
}
