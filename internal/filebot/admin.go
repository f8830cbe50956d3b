package filebot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telegram"
)

const (
	msgPasswordPrompt = "🔐 Enter the admin password:"
	msgWrongPassword  = "❌ Wrong password."
	msgInvalidForward = "❌ Invalid forwarded message."
	msgNoPendingAdd   = "❌ Please use Add DB Channel or Add Sub Channel first."
	msgNeedCaption    = "❌ Please provide the exact file name in the caption."
	msgBroadcastAsk   = "📢 Send the message to broadcast."
	msgSetCoverAsk    = "Send the image to set as cover with the exact file name as caption."
)

// requireAuth runs a sensitive command now when no password is configured
// or the user holds a live session. Otherwise it parks the command behind
// the password prompt.
func (b *Bot) requireAuth(ctx context.Context, chatID, userID int64, action, args string) {
	cfg := b.Config()
	if cfg.AdminPasswordHash == "" || b.state.HasSession(userID) {
		b.runSensitive(ctx, chatID, userID, action, args)
		return
	}
	b.state.SetPending(userID, ActionPassword, strings.TrimSpace(action+" "+args))
	b.reply(ctx, chatID, msgPasswordPrompt, nil)
}

// handlePassword verifies the reply to the password prompt. A mismatch
// clears the pending action; a match opens a session and resumes it.
func (b *Bot) handlePassword(ctx context.Context, msg *tgbotapi.Message, pending PendingAction) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	b.state.ClearPending(userID)

	// The password should not linger in the chat history.
	if err := b.sender.Request(ctx, tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		b.logger.Debug("filebot: deleting password message", "error", err)
	}

	cfg := b.Config()
	if err := security.CheckPassword(cfg.AdminPasswordHash, msg.Text); err != nil {
		b.audit.Log(security.AuditEvent{
			Type: security.EventAuthFailure, Module: "bot.filebot",
			ChatID: chatID, UserID: userID, Target: pending.Arg,
		})
		b.reply(ctx, chatID, msgWrongPassword, nil)
		return
	}

	b.audit.Log(security.AuditEvent{
		Type: security.EventAuthSuccess, Module: "bot.filebot",
		ChatID: chatID, UserID: userID, Target: pending.Arg,
	})
	b.state.OpenSession(userID, cfg.AdminSessionTTL)
	action, args, _ := strings.Cut(pending.Arg, " ")
	b.runSensitive(ctx, chatID, userID, action, strings.TrimSpace(args))
}

func (b *Bot) runSensitive(ctx context.Context, chatID, userID int64, action, args string) {
	switch action {
	case "broadcast":
		b.state.SetPending(userID, ActionBroadcast, "")
		b.reply(ctx, chatID, msgBroadcastAsk, nil)
	case "batch":
		b.startBatch(ctx, chatID, userID, args)
	case "addadmin":
		b.addAdmin(ctx, chatID, userID, args)
	case "rmadmin":
		b.removeAdmin(ctx, chatID, userID, args)
	case "setlimit":
		b.setLimit(ctx, chatID, userID, args)
	default:
		b.logger.Warn("filebot: unknown sensitive action", "action", action)
	}
}

func (b *Bot) addAdmin(ctx context.Context, chatID, actor int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		b.reply(ctx, chatID, "Usage: /addadmin <user_id>", nil)
		return
	}
	if err := b.registry.AddAdmin(ctx, id); err != nil {
		b.fail(ctx, chatID, "adding admin", err)
		return
	}
	b.audit.Log(security.AuditEvent{
		Type: security.EventAdminAdd, Module: "bot.filebot",
		ChatID: chatID, UserID: actor, Target: strconv.FormatInt(id, 10),
	})
	b.reply(ctx, chatID, fmt.Sprintf("✅ Admin %d added.", id), nil)
	b.logEvent(ctx, fmt.Sprintf("👑 Admin %d added by %d", id, actor))
}

func (b *Bot) removeAdmin(ctx context.Context, chatID, actor int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		b.reply(ctx, chatID, "Usage: /rmadmin <user_id>", nil)
		return
	}
	if id == b.Config().AdminID {
		b.reply(ctx, chatID, "❌ The owner cannot be removed.", nil)
		return
	}
	err = b.registry.RemoveAdmin(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.reply(ctx, chatID, fmt.Sprintf("❌ %d is not an admin.", id), nil)
		return
	case err != nil:
		b.fail(ctx, chatID, "removing admin", err)
		return
	}
	b.audit.Log(security.AuditEvent{
		Type: security.EventAdminRemove, Module: "bot.filebot",
		ChatID: chatID, UserID: actor, Target: strconv.FormatInt(id, 10),
	})
	b.reply(ctx, chatID, fmt.Sprintf("✅ Admin %d removed.", id), nil)
	b.logEvent(ctx, fmt.Sprintf("👑 Admin %d removed by %d", id, actor))
}

func (b *Bot) setLimit(ctx context.Context, chatID, actor int64, args string) {
	const usage = "Usage: /setlimit <max_per_window> <window> <min_delay>\nExample: /setlimit 20 1s 50ms"
	fields := strings.Fields(args)
	if len(fields) != 3 {
		b.reply(ctx, chatID, usage, nil)
		return
	}
	maxPer, err1 := strconv.Atoi(fields[0])
	window, err2 := time.ParseDuration(fields[1])
	minDelay, err3 := time.ParseDuration(fields[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		b.reply(ctx, chatID, usage, nil)
		return
	}
	cfg := telegram.ThrottleConfig{MaxPerWindow: maxPer, Window: window, MinDelay: minDelay}
	if err := b.sender.SetLimits(cfg); err != nil {
		b.reply(ctx, chatID, "❌ "+err.Error(), nil)
		return
	}
	detail := fmt.Sprintf("%d per %s, min delay %s", maxPer, window, minDelay)
	b.audit.Log(security.AuditEvent{
		Type: security.EventThrottleChange, Module: "bot.filebot",
		ChatID: chatID, UserID: actor, Detail: detail,
	})
	b.reply(ctx, chatID, "✅ Send limits: "+detail+".", nil)
}

// handleForward registers the origin channel of a forwarded message when
// the admin asked to add one.
func (b *Bot) handleForward(ctx context.Context, msg *tgbotapi.Message, pending PendingAction, hasPending bool) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !hasPending || (pending.Kind != ActionAddDB && pending.Kind != ActionAddSub) {
		b.reply(ctx, chatID, msgNoPendingAdd, nil)
		return
	}
	b.state.ClearPending(userID)

	origin := msg.ForwardFromChat
	if origin == nil || origin.Type != "channel" {
		b.reply(ctx, chatID, msgInvalidForward, nil)
		return
	}

	kind := store.KindDB
	if pending.Kind == ActionAddSub {
		kind = store.KindSub
	}
	ch := store.Channel{
		ID:       origin.ID,
		Kind:     kind,
		Title:    origin.Title,
		Username: origin.UserName,
		AddedAt:  b.now(),
	}
	if err := b.registry.AddChannel(ctx, ch); err != nil {
		b.fail(ctx, chatID, "adding channel", err)
		return
	}
	b.audit.Log(security.AuditEvent{
		Type: security.EventChannelAdd, Module: "bot.filebot",
		ChatID: chatID, UserID: userID, Target: strconv.FormatInt(ch.ID, 10),
		Metadata: map[string]string{"kind": string(kind), "title": ch.Title},
	})

	if kind == store.KindDB {
		if doc, ok := documentFrom(msg, origin.ID, msg.ForwardFromMessageID, b.now()); ok {
			b.indexDocument(ctx, doc)
		}
	}

	name := origin.Title
	if name == "" {
		name = strconv.FormatInt(origin.ID, 10)
	}
	text := fmt.Sprintf("✅ DB channel %s added.", name)
	if kind == store.KindSub {
		text = fmt.Sprintf("✅ Subscription channel %s added.", name)
	}
	b.reply(ctx, chatID, text, nil)
	b.logEvent(ctx, text)
}

// handleCover stores the largest size of an admin photo as the cover of
// the file named in its caption.
func (b *Bot) handleCover(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	b.state.ClearPending(userID)

	name := strings.TrimSpace(msg.Caption)
	if name == "" {
		b.reply(ctx, chatID, msgNeedCaption, nil)
		return
	}
	photo := msg.Photo[len(msg.Photo)-1]
	if err := b.registry.SetCover(ctx, name, photo.FileID); err != nil {
		b.fail(ctx, chatID, "setting cover", err)
		return
	}
	b.audit.Log(security.AuditEvent{
		Type: security.EventCoverSet, Module: "bot.filebot",
		ChatID: chatID, UserID: userID, Target: name,
	})
	b.reply(ctx, chatID, fmt.Sprintf("✅ Cover photo set for %s.", name), nil)
}

func (b *Bot) removeChannel(ctx context.Context, chatID, actor int64, kind store.ChannelKind, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.reply(ctx, chatID, msgInvalidForward, nil)
		return
	}
	err = b.registry.RemoveChannel(ctx, id, kind)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.reply(ctx, chatID, fmt.Sprintf("❌ Channel %d is not registered.", id), nil)
		return
	case err != nil:
		b.fail(ctx, chatID, "removing channel", err)
		return
	}
	purged := 0
	if kind == store.KindDB {
		purged, err = b.index.DeleteChannel(ctx, id)
		if err != nil {
			b.logger.Error("filebot: purging channel index", "channel_id", id, "error", err)
		}
	}
	b.audit.Log(security.AuditEvent{
		Type: security.EventChannelRemove, Module: "bot.filebot",
		ChatID: chatID, UserID: actor, Target: rawID,
		Metadata: map[string]string{"kind": string(kind), "purged": strconv.Itoa(purged)},
	})
	text := fmt.Sprintf("✅ DB channel %d removed.", id)
	if kind == store.KindSub {
		text = fmt.Sprintf("✅ Subscription channel %d removed.", id)
	}
	b.reply(ctx, chatID, text, nil)
	b.logEvent(ctx, text)
}

func (b *Bot) removeChannelKeyboard(ctx context.Context) (tgbotapi.InlineKeyboardMarkup, int, error) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, kind := range []store.ChannelKind{store.KindDB, store.KindSub} {
		chs, err := b.registry.Channels(ctx, kind)
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, 0, err
		}
		for _, ch := range chs {
			label := fmt.Sprintf("%s: %s", kindLabel(kind), channelLabel(ch))
			data := fmt.Sprintf("rm_%s_%d", kind, ch.ID)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), len(rows), nil
}
