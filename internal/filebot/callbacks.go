package filebot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/store"
)

const (
	msgLinkShortened = "🔗 Link generated with shortening:"
	msgLinkDirect    = "📥 Direct download link:"
	msgNoChannels    = "No channels registered."
	msgSelectRemove  = "Select channel to remove:"
	msgBadRequest    = "Invalid request."
)

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	// Inline-mode callbacks carry no message and are not used by this bot.
	if cq.Message == nil || cq.Message.Chat == nil {
		b.answer(ctx, cq, "")
		return
	}
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	data := cq.Data

	switch {
	case data == callbackJoined:
		b.checkSubscription(ctx, cq)
		return
	case strings.HasPrefix(data, "get_"):
		b.answer(ctx, cq, "")
		if b.gate(ctx, chatID, userID) {
			b.deliverFile(ctx, chatID, userID, data)
		}
		return
	case strings.HasPrefix(data, "page_"):
		b.answer(ctx, cq, "")
		n, err := strconv.Atoi(strings.TrimPrefix(data, "page_"))
		if err != nil {
			return
		}
		if b.gate(ctx, chatID, userID) {
			b.showPage(ctx, chatID, cq.Message.MessageID, n)
		}
		return
	}

	if !b.isAdmin(ctx, userID) {
		b.answer(ctx, cq, msgAdminsOnly)
		return
	}
	b.answer(ctx, cq, "")

	switch {
	case data == ActionAddDB:
		b.state.SetPending(userID, ActionAddDB, "")
		b.reply(ctx, chatID, "Forward a message from the DB channel you want to add.", nil)
	case data == ActionAddSub:
		b.state.SetPending(userID, ActionAddSub, "")
		b.reply(ctx, chatID, "Forward a message from the subscription channel you want to add.", nil)
	case data == ActionSetCover:
		b.state.SetPending(userID, ActionSetCover, "")
		b.reply(ctx, chatID, msgSetCoverAsk, nil)
	case data == ActionBroadcast:
		b.requireAuth(ctx, chatID, userID, "broadcast", "")
	case data == "stats":
		b.sendStats(ctx, chatID)
	case data == "remove_channel":
		markup, n, err := b.removeChannelKeyboard(ctx)
		if err != nil {
			b.fail(ctx, chatID, "listing channels", err)
			return
		}
		if n == 0 {
			b.reply(ctx, chatID, msgNoChannels, nil)
			return
		}
		b.reply(ctx, chatID, msgSelectRemove, markup)
	case strings.HasPrefix(data, "rm_db_"):
		b.removeChannel(ctx, chatID, userID, store.KindDB, strings.TrimPrefix(data, "rm_db_"))
	case strings.HasPrefix(data, "rm_sub_"):
		b.removeChannel(ctx, chatID, userID, store.KindSub, strings.TrimPrefix(data, "rm_sub_"))
	default:
		b.logger.Debug("filebot: unknown callback", "data", data)
	}
}

func (b *Bot) checkSubscription(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	ok, _ := b.subscribed(ctx, cq.From.ID)
	if !ok {
		b.answer(ctx, cq, msgJoinAlert)
		return
	}
	b.state.MarkVerified(cq.From.ID)
	b.answer(ctx, cq, "")
	b.edit(ctx, cq.Message.Chat.ID, cq.Message.MessageID, msgSubVerified, nil)
}

// parseGetData splits get_<channel>_<message>_<dyn>.
func parseGetData(data string) (channelID int64, messageID int, err error) {
	parts := strings.SplitN(data, "_", 4)
	if len(parts) != 4 || parts[0] != "get" {
		return 0, 0, fmt.Errorf("filebot: malformed callback %q", data)
	}
	channelID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("filebot: malformed channel in callback %q: %w", data, err)
	}
	messageID, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("filebot: malformed message in callback %q: %w", data, err)
	}
	return channelID, messageID, nil
}

// deliverFile hands out a requested file: as a link, shortened once the
// user's verification has lapsed, or as a copy of the channel message.
func (b *Bot) deliverFile(ctx context.Context, chatID, userID int64, data string) {
	channelID, messageID, err := parseGetData(data)
	if err != nil {
		b.logger.Warn("filebot: bad file callback", "error", err)
		b.reply(ctx, chatID, msgBadRequest, nil)
		return
	}
	cfg := b.Config()
	doc, known := b.cachedDocument(ctx, chatID, channelID, messageID)
	if !known {
		registered, err := b.isDBChannel(ctx, channelID)
		if err != nil {
			b.fail(ctx, chatID, "checking channel", err)
			return
		}
		if !registered {
			b.logger.Warn("filebot: file callback for unregistered channel",
				"user_id", userID, "channel_id", channelID, "message_id", messageID)
			b.reply(ctx, chatID, msgBadRequest, nil)
			return
		}
	}

	if known {
		if coverID, err := b.registry.Cover(ctx, doc.FileName); err == nil {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(coverID))
			photo.Caption = doc.FileName
			if _, err := b.sender.Send(ctx, photo); err != nil {
				b.logger.Warn("filebot: sending cover", "chat_id", chatID, "error", err)
			}
		}
	}

	if cfg.Delivery == DeliveryCopy {
		c := tgbotapi.NewCopyMessage(chatID, channelID, messageID)
		if known {
			c.Caption = b.renderCaption(CaptionData{
				FileName:    doc.FileName,
				Size:        doc.FileSize,
				SizeMB:      formatSizeMB(doc),
				Caption:     doc.Caption,
				BotUsername: b.username,
			}, doc.Caption)
		}
		if _, err := b.sender.Copy(ctx, c); err != nil {
			b.fail(ctx, chatID, "copying file", err)
		}
		return
	}

	link := messageURL(channelID, messageID)
	text := msgLinkDirect
	shortened := false
	verifiedAt, ok := b.state.VerifiedAt(userID)
	if !ok || b.now().Sub(verifiedAt) > cfg.VerificationDuration {
		link = b.shortener.Shorten(ctx, link)
		text = msgLinkShortened
		shortened = b.shortener.Enabled()
	}
	b.metrics.Link(shortened)
	b.reply(ctx, chatID, text, tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("Download", link),
	)))
}

// cachedDocument looks up a document among the chat's cached results.
func (b *Bot) cachedDocument(ctx context.Context, chatID, channelID int64, messageID int) (store.Document, bool) {
	docs, err := b.cache.Get(ctx, chatID)
	if err != nil {
		return store.Document{}, false
	}
	for _, d := range docs {
		if d.ChannelID == channelID && d.MessageID == messageID {
			return d, true
		}
	}
	return store.Document{}, false
}
