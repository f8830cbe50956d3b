package filebot

import (
	"errors"
	"fmt"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/telegram/telegramtest"
)

func gatedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.addChannel(subChan, store.KindSub, "mychannel")
	h.addChannel(-1006666666666, store.KindSub, "")
	h.addChannel(dbChanA, store.KindDB, "")
	h.addDoc(dbChanA, 1, "secret.pdf", 1024)
	// Member of the first sub channel only.
	h.api.SetMember(subChan, userID, "member")
	return h
}

func TestGate_BlocksEveryEntryPoint(t *testing.T) {
	t.Parallel()

	entries := map[string]tgbotapi.Update{
		"start":  command(userID, "/start"),
		"search": privateMessage(userID, "secret"),
		"get":    callback(userID, fmt.Sprintf("get_%d_1_abcdefghij", dbChanA)),
		"page":   callback(userID, "page_0"),
	}
	for name, u := range entries {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := gatedHarness(t)
			h.send(u)

			msgs := h.api.Messages(userID)
			if len(msgs) != 1 {
				t.Fatalf("replies = %q, want only the join prompt", h.texts(userID))
			}
			if msgs[0].Text != msgJoinPrompt {
				t.Fatalf("reply = %q, want %q", msgs[0].Text, msgJoinPrompt)
			}
			kb := keyboard(t, msgs[0])
			if len(kb.InlineKeyboard) != 3 {
				t.Fatalf("rows = %d, want 2 join buttons + check button", len(kb.InlineKeyboard))
			}
			if url := kb.InlineKeyboard[0][0].URL; url == nil || *url != "https://t.me/mychannel" {
				t.Errorf("first join url = %v", url)
			}
			if url := kb.InlineKeyboard[1][0].URL; url == nil || *url != "https://t.me/c/6666666666" {
				t.Errorf("second join url = %v", url)
			}
			if data := kb.InlineKeyboard[2][0].CallbackData; data == nil || *data != callbackJoined {
				t.Errorf("check button = %v", data)
			}
			if n := h.index.searches.Load(); n != 0 {
				t.Errorf("index searched %d times behind the gate", n)
			}
			if len(h.api.Copies()) != 0 {
				t.Error("no file may be delivered behind the gate")
			}
		})
	}
}

func TestGate_AllowsMembers(t *testing.T) {
	t.Parallel()

	h := gatedHarness(t)
	h.api.SetMember(-1006666666666, userID, "administrator")
	h.send(privateMessage(userID, "secret"))

	if got := h.lastText(userID); got != msgSelectFile {
		t.Errorf("last reply = %q, want results", got)
	}
}

func TestGate_LookupErrorCountsAsNotSubscribed(t *testing.T) {
	t.Parallel()

	h := gatedHarness(t)
	h.api.MemberErr = errors.New("PEER_ID_INVALID")
	h.send(privateMessage(userID, "secret"))

	if got := h.lastText(userID); got != msgJoinPrompt {
		t.Errorf("reply = %q, want join prompt", got)
	}
}

func TestGate_LeftOrKickedStatuses(t *testing.T) {
	t.Parallel()

	for _, status := range []string{"left", "kicked", "restricted"} {
		h := gatedHarness(t)
		h.api.SetMember(-1006666666666, userID, status)
		h.send(privateMessage(userID, "secret"))
		if got := h.lastText(userID); got != msgJoinPrompt {
			t.Errorf("status %s: reply = %q, want join prompt", status, got)
		}
	}
}

func TestCheckSub(t *testing.T) {
	t.Parallel()

	h := gatedHarness(t)
	h.send(callback(userID, callbackJoined))
	cbs := h.callbacks()
	if len(cbs) != 1 || !cbs[0].ShowAlert || cbs[0].Text != msgJoinAlert {
		t.Fatalf("callbacks = %+v, want join alert", cbs)
	}
	if _, ok := h.bot.State().VerifiedAt(userID); ok {
		t.Fatal("user must not be verified yet")
	}

	h.api.SetMember(-1006666666666, userID, "member")
	h.send(callback(userID, callbackJoined))
	if _, ok := h.bot.State().VerifiedAt(userID); !ok {
		t.Fatal("user should be verified")
	}
	edits := telegramtest.Requests[tgbotapi.EditMessageTextConfig](h.api)
	if len(edits) != 1 || edits[0].Text != msgSubVerified || edits[0].MessageID != 99 {
		t.Errorf("edits = %+v", edits)
	}
}

func TestGate_NoSubChannels(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ok, subs := h.bot.subscribed(t.Context(), userID)
	if !ok || subs != nil {
		t.Errorf("subscribed = %v, %v; want true with no channels", ok, subs)
	}
	for _, c := range h.api.Calls() {
		if c.Method == "getChatMember" {
			t.Fatal("getChatMember must not be called without sub channels")
		}
	}
}
