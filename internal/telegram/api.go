// Package telegram wraps the Bot API client with the plumbing every bot in
// this repository shares: a paced outbound queue, long polling, webhook
// intake, and bounded update dispatch.
package telegram

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the subset of *tgbotapi.BotAPI the bots use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	CopyMessage(c tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	GetChatMember(c tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetChat(c tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetUpdates(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Dial authenticates against the Bot API with getMe and returns the
// client. The HTTP timeout leaves room for a full long-poll cycle.
func Dial(cfg Config) (*tgbotapi.BotAPI, error) {
	client := &http.Client{
		Timeout: cfg.RequestTimeout + time.Duration(cfg.PollingTimeout)*time.Second,
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint(), client)
	if err != nil {
		return nil, fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	return bot, nil
}

// SetWebhook registers url with Telegram, including the secret token
// Telegram echoes in X-Telegram-Bot-Api-Secret-Token.
func SetWebhook(api API, url, secret string, allowedUpdates []string) error {
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("telegram: encode allowed_updates: %w", err)
	}
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram: setWebhook failed: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook so polling can be used again.
func DeleteWebhook(api API) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram: deleteWebhook failed: %w", err)
	}
	return nil
}
