package filebot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/store"
)

const (
	msgWelcome      = "Welcome! Search for files by typing a keyword.\nClick below for download instructions:"
	msgHello        = "Hi! Send a keyword to search for files."
	msgAdminPanel   = "Admin Panel"
	msgAdminsOnly   = "Admins only."
	msgOwnerOnly    = "Only the owner can manage admins."
	msgCancelled    = "Cancelled."
	msgUnknownCmd   = "Unknown command. Send a keyword to search for files."
	batchStartParam = "batch_"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())
	args := strings.TrimSpace(msg.CommandArguments())
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch cmd {
	case "start":
		b.start(ctx, msg, args)
		return
	case "help":
		b.reply(ctx, chatID, msgHello, nil)
		return
	case "cancel":
		b.state.ClearPending(userID)
		b.state.TakeDraft(userID)
		b.reply(ctx, chatID, msgCancelled, nil)
		return
	}

	if !b.isAdmin(ctx, userID) {
		b.reply(ctx, chatID, msgUnknownCmd, nil)
		return
	}

	switch cmd {
	case "admin":
		b.reply(ctx, chatID, msgAdminPanel, adminKeyboard())
	case "stats":
		b.sendStats(ctx, chatID)
	case "channels":
		b.listChannels(ctx, chatID)
	case "admins":
		b.listAdmins(ctx, chatID)
	case "done":
		b.finishBatch(ctx, msg)
	case "addadmin", "rmadmin":
		if !b.isOwner(userID) {
			b.reply(ctx, chatID, msgOwnerOnly, nil)
			return
		}
		b.requireAuth(ctx, chatID, userID, cmd, args)
	case "broadcast", "batch", "setlimit":
		b.requireAuth(ctx, chatID, userID, cmd, args)
	default:
		b.reply(ctx, chatID, msgUnknownCmd, nil)
	}
}

func (b *Bot) start(ctx context.Context, msg *tgbotapi.Message, payload string) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	created, err := b.registry.UpsertUser(ctx, store.User{
		ID:        userID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		FirstSeen: b.now(),
	})
	if err != nil {
		b.logger.Error("filebot: recording user", "user_id", userID, "error", err)
	}
	if created {
		b.logEvent(ctx, fmt.Sprintf("👤 New user: %s (%d)", displayName(msg.From), userID))
	}

	if !b.gate(ctx, chatID, userID) {
		return
	}

	if id, ok := strings.CutPrefix(payload, batchStartParam); ok && id != "" {
		b.deliverBatch(ctx, chatID, id)
		return
	}

	if created {
		var markup any
		if url := b.Config().HelpURL; url != "" {
			markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("How to Download", url),
			))
		}
		b.reply(ctx, chatID, msgWelcome, markup)
	}

	if b.isAdmin(ctx, userID) {
		b.reply(ctx, chatID, msgAdminPanel, adminKeyboard())
		return
	}
	b.reply(ctx, chatID, msgHello, nil)
}

func adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Add DB Channel", ActionAddDB),
			tgbotapi.NewInlineKeyboardButtonData("➕ Add Sub Channel", ActionAddSub),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Stats", "stats"),
			tgbotapi.NewInlineKeyboardButtonData("📢 Broadcast", ActionBroadcast),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🖼️ Set Cover", ActionSetCover),
			tgbotapi.NewInlineKeyboardButtonData("🗑️ Remove Channel", "remove_channel"),
		),
	)
}

// Stats counts users, channels, covers, batches and indexed files.
// It also backs the gateway's /status report.
func (b *Bot) Stats(ctx context.Context) (map[string]int, error) {
	var errs []error
	count := func(n int, err error) int {
		errs = append(errs, err)
		return n
	}
	lenOf := func(chs []store.Channel, err error) int {
		errs = append(errs, err)
		return len(chs)
	}

	stats := map[string]int{
		"users":        count(b.registry.CountUsers(ctx)),
		"db_channels":  lenOf(b.registry.Channels(ctx, store.KindDB)),
		"sub_channels": lenOf(b.registry.Channels(ctx, store.KindSub)),
		"covers":       count(b.registry.CountCovers(ctx)),
		"batches":      count(b.registry.CountBatches(ctx)),
		"documents":    count(b.index.Count(ctx)),
		"send_queue":   b.sender.Depth(),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("filebot: collecting stats: %w", err)
	}
	return stats, nil
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	st, err := b.Stats(ctx)
	if err != nil {
		b.fail(ctx, chatID, "collecting stats", err)
		return
	}
	text := fmt.Sprintf("📊 Bot Statistics:\nUsers: %d\nDB Channels: %d\nSub Channels: %d\nCovers Set: %d\nBatches: %d\nIndexed Files: %d\nSend Queue: %d",
		st["users"], st["db_channels"], st["sub_channels"], st["covers"], st["batches"], st["documents"], st["send_queue"])
	b.reply(ctx, chatID, text, nil)
}

func (b *Bot) listChannels(ctx context.Context, chatID int64) {
	var sb strings.Builder
	for _, kind := range []store.ChannelKind{store.KindDB, store.KindSub} {
		chs, err := b.registry.Channels(ctx, kind)
		if err != nil {
			b.fail(ctx, chatID, "listing channels", err)
			return
		}
		fmt.Fprintf(&sb, "%s channels (%d):\n", kindLabel(kind), len(chs))
		for _, ch := range chs {
			fmt.Fprintf(&sb, "• %s\n", channelLabel(ch))
		}
	}
	b.reply(ctx, chatID, strings.TrimSpace(sb.String()), nil)
}

func (b *Bot) listAdmins(ctx context.Context, chatID int64) {
	cfg := b.Config()
	admins, err := b.registry.Admins(ctx)
	if err != nil {
		b.fail(ctx, chatID, "listing admins", err)
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "👑 Owner: %d\n", cfg.AdminID)
	for _, id := range cfg.Admins {
		fmt.Fprintf(&sb, "• %d (config)\n", id)
	}
	for _, id := range admins {
		fmt.Fprintf(&sb, "• %d\n", id)
	}
	b.reply(ctx, chatID, strings.TrimSpace(sb.String()), nil)
}

func kindLabel(k store.ChannelKind) string {
	if k == store.KindSub {
		return "Subscription"
	}
	return "DB"
}

func channelLabel(ch store.Channel) string {
	switch {
	case ch.Title != "":
		return fmt.Sprintf("%s (%d)", ch.Title, ch.ID)
	case ch.Username != "":
		return fmt.Sprintf("@%s (%d)", ch.Username, ch.ID)
	default:
		return fmt.Sprintf("%d", ch.ID)
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
