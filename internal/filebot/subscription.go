package filebot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/store"
)

const (
	msgJoinPrompt   = "Please join the required channels to use this bot:"
	msgJoinAlert    = "Please join all required channels."
	msgSubVerified  = "✅ Subscription verified! You can now search for files."
	callbackJoined  = "check_sub"
	buttonJoined    = "✅ I've Joined"
	buttonJoinLabel = "Join Channel"
)

var memberStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// subscribed reports whether userID is a member of every sub channel. The
// returned channels are the full sub channel list, for the join prompt.
// Any lookup error counts as not subscribed.
func (b *Bot) subscribed(ctx context.Context, userID int64) (bool, []store.Channel) {
	subs, err := b.registry.Channels(ctx, store.KindSub)
	if err != nil {
		b.logger.Error("filebot: loading sub channels", "error", err)
		return false, nil
	}
	if len(subs) == 0 {
		return true, nil
	}
	api := b.sender.API()
	for _, ch := range subs {
		member, err := api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: ch.ID, UserID: userID},
		})
		if err != nil {
			b.logger.Warn("filebot: subscription check failed",
				"channel_id", ch.ID, "user_id", userID, "error", err)
			return false, subs
		}
		if !memberStatuses[member.Status] {
			return false, subs
		}
	}
	return true, subs
}

// gate runs the forced subscription check and sends the join prompt to
// chatID when it fails. It reports whether the caller may proceed.
func (b *Bot) gate(ctx context.Context, chatID, userID int64) bool {
	ok, subs := b.subscribed(ctx, userID)
	if ok {
		return true
	}
	b.reply(ctx, chatID, msgJoinPrompt, joinKeyboard(subs))
	return false
}

func joinKeyboard(subs []store.Channel) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(subs)+1)
	for _, ch := range subs {
		label := buttonJoinLabel
		if ch.Title != "" {
			label = "Join " + ch.Title
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(label, channelURL(ch)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(buttonJoined, callbackJoined),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// channelURL links to a public channel by username, or to a private one
// by its internal id.
func channelURL(ch store.Channel) string {
	if ch.Username != "" {
		return "https://t.me/" + strings.TrimPrefix(ch.Username, "@")
	}
	return "https://t.me/c/" + internalID(ch.ID)
}

// internalID strips the -100 prefix Bot API adds to channel ids.
func internalID(id int64) string {
	s := strconv.FormatInt(id, 10)
	if rest, ok := strings.CutPrefix(s, "-100"); ok {
		return rest
	}
	return strings.TrimPrefix(s, "-")
}

// messageURL is the t.me deep link to a message in a private channel.
func messageURL(channelID int64, messageID int) string {
	return "https://t.me/c/" + internalID(channelID) + "/" + strconv.Itoa(messageID)
}
