// Package telegramtest provides an in-memory Bot API double.
package telegramtest

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Call is one recorded API call.
type Call struct {
	Method string
	Value  any
}

// FakeAPI implements telegram.API in memory. Every call is recorded. Hooks
// let tests shape answers; unset hooks succeed with zero values.
type FakeAPI struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	// SendErr, if set, is consulted before every Send/Request/CopyMessage.
	SendErr func(method string, c any) error

	// Members maps "chatID:userID" to a member status.
	Members map[string]string
	// MemberErr, if set, answers getChatMember instead of Members.
	MemberErr error

	// Chats answers getChat. A missing chat is reported as not found.
	Chats map[int64]tgbotapi.Chat

	// Updates is drained by GetUpdates, one batch per call.
	Updates [][]tgbotapi.Update
}

// NewFakeAPI creates an empty FakeAPI.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Members: make(map[string]string),
		Chats:   make(map[int64]tgbotapi.Chat),
		nextID:  1000,
	}
}

func (f *FakeAPI) record(method string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Value: v})
}

func (f *FakeAPI) sendErr(method string, c any) error {
	if f.SendErr == nil {
		return nil
	}
	return f.SendErr(method, c)
}

// Send implements telegram.API.
func (f *FakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.record("send", c)
	if err := f.sendErr("send", c); err != nil {
		return tgbotapi.Message{}, err
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	msg := tgbotapi.Message{MessageID: id}
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		msg.Chat = &tgbotapi.Chat{ID: v.ChatID}
		msg.Text = v.Text
	case tgbotapi.PhotoConfig:
		msg.Chat = &tgbotapi.Chat{ID: v.ChatID}
		msg.Caption = v.Caption
	}
	return msg, nil
}

// Request implements telegram.API.
func (f *FakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.record("request", c)
	if err := f.sendErr("request", c); err != nil {
		return nil, err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// CopyMessage implements telegram.API.
func (f *FakeAPI) CopyMessage(c tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	f.record("copy", c)
	if err := f.sendErr("copy", c); err != nil {
		return tgbotapi.MessageID{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return tgbotapi.MessageID{MessageID: f.nextID}, nil
}

// GetChatMember implements telegram.API.
func (f *FakeAPI) GetChatMember(c tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.record("getChatMember", c)
	if f.MemberErr != nil {
		return tgbotapi.ChatMember{}, f.MemberErr
	}
	f.mu.Lock()
	status, ok := f.Members[MemberKey(c.ChatID, c.UserID)]
	f.mu.Unlock()
	if !ok {
		status = "left"
	}
	return tgbotapi.ChatMember{Status: status}, nil
}

// GetChat implements telegram.API.
func (f *FakeAPI) GetChat(c tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	f.record("getChat", c)
	f.mu.Lock()
	chat, ok := f.Chats[c.ChatID]
	f.mu.Unlock()
	if !ok {
		return tgbotapi.Chat{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}
	return chat, nil
}

// GetUpdates implements telegram.API.
func (f *FakeAPI) GetUpdates(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.record("getUpdates", c)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Updates) == 0 {
		// Stand in for an empty long-poll cycle.
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		f.mu.Lock()
		return nil, nil
	}
	batch := f.Updates[0]
	f.Updates = f.Updates[1:]
	return batch, nil
}

// MakeRequest implements telegram.API.
func (f *FakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.record(endpoint, params)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// Calls returns a snapshot of the recorded calls.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Reset forgets recorded calls.
func (f *FakeAPI) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Messages returns every MessageConfig sent to chatID.
func (f *FakeAPI) Messages(chatID int64) []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, c := range f.Calls() {
		if m, ok := c.Value.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Texts returns the text of every message sent to chatID.
func (f *FakeAPI) Texts(chatID int64) []string {
	var out []string
	for _, m := range f.Messages(chatID) {
		out = append(out, m.Text)
	}
	return out
}

// Copies returns every copyMessage call.
func (f *FakeAPI) Copies() []tgbotapi.CopyMessageConfig {
	var out []tgbotapi.CopyMessageConfig
	for _, c := range f.Calls() {
		if m, ok := c.Value.(tgbotapi.CopyMessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

// Requests returns every Request call whose value has type T.
func Requests[T any](f *FakeAPI) []T {
	var out []T
	for _, c := range f.Calls() {
		if v, ok := c.Value.(T); ok && c.Method == "request" {
			out = append(out, v)
		}
	}
	return out
}

// Sent returns every Send call whose value has type T.
func Sent[T any](f *FakeAPI) []T {
	var out []T
	for _, c := range f.Calls() {
		if v, ok := c.Value.(T); ok && c.Method == "send" {
			out = append(out, v)
		}
	}
	return out
}

// SetMember records the status of userID in chatID.
func (f *FakeAPI) SetMember(chatID, userID int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Members[MemberKey(chatID, userID)] = status
}

// MemberKey builds a Members key.
func MemberKey(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

// Forbidden returns the error Telegram sends when a user blocked the bot.
func Forbidden() error {
	return &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
}

// FloodWait returns a 429 error asking to retry after seconds.
func FloodWait(seconds int) error {
	return &tgbotapi.Error{
		Code:               429,
		Message:            fmt.Sprintf("Too Many Requests: retry after %d", seconds),
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: seconds},
	}
}
