package filebot

import (
	"context"
	"slices"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func fileMessage(from int64, messageID int, name string) tgbotapi.Update {
	u := privateMessage(from, "")
	u.Message.MessageID = messageID
	u.Message.Document = &tgbotapi.Document{FileID: "id-" + name, FileName: name, FileSize: 10}
	return u
}

func TestBatch_CreateAndDeliver(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withConfig(func(c *Config) { c.CaptionTemplate = "{{.Keyword}} | @{{.BotUsername}}" }))
	h.send(command(ownerID, "/batch Season One"))
	if got := h.lastText(ownerID); got != `📦 Batch started for "Season One". Send the files, then /done.` {
		t.Fatalf("reply = %q", got)
	}

	h.send(fileMessage(ownerID, 11, "e01.mkv"))
	h.send(fileMessage(ownerID, 12, "e02.mkv"))
	if got := h.lastText(ownerID); got != "✅ Added (2)" {
		t.Fatalf("reply = %q", got)
	}
	copies := h.api.Copies()
	if len(copies) != 2 || copies[0].ChatID != batchCh || copies[0].MessageID != 11 {
		t.Fatalf("copies to batch channel = %+v", copies)
	}

	h.send(command(ownerID, "/done"))
	reply := h.lastText(ownerID)
	prefix := "https://t.me/" + botName + "?start=batch_"
	i := strings.Index(reply, prefix)
	if i < 0 {
		t.Fatalf("reply %q has no deep link", reply)
	}
	id := reply[i+len(prefix):]
	if len(id) != 32 || strings.Contains(id, "-") {
		t.Errorf("batch id = %q, want 32 hex chars", id)
	}

	saved, err := h.registry.Batch(context.Background(), id)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if saved.Keyword != "Season One" || len(saved.MessageIDs) != 2 || saved.ChannelID != batchCh {
		t.Errorf("saved = %+v", saved)
	}

	h.api.Reset()
	h.send(command(userID, "/start batch_"+id))
	delivered := h.api.Copies()
	if len(delivered) != 2 {
		t.Fatalf("delivered = %d, want 2", len(delivered))
	}
	var got []int
	for _, c := range delivered {
		if c.ChatID != userID || c.FromChatID != batchCh {
			t.Errorf("copy = %+v", c)
		}
		if c.Caption != "Season One | @"+botName {
			t.Errorf("caption = %q", c.Caption)
		}
		got = append(got, c.MessageID)
	}
	if !slices.Equal(got, saved.MessageIDs) {
		t.Errorf("delivered ids = %v, want %v", got, saved.MessageIDs)
	}
	if len(h.texts(userID)) != 0 {
		t.Errorf("batch delivery should not send the greeting: %q", h.texts(userID))
	}
}

func TestBatch_EmptyAndCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(command(ownerID, "/batch x"))
	h.send(command(ownerID, "/done"))
	if got := h.lastText(ownerID); got != msgBatchEmpty {
		t.Errorf("reply = %q", got)
	}
	if n, _ := h.registry.CountBatches(context.Background()); n != 0 {
		t.Errorf("batches = %d, want 0", n)
	}

	h.send(command(ownerID, "/batch y"))
	h.send(command(ownerID, "/cancel"))
	h.send(command(ownerID, "/done"))
	if got := h.lastText(ownerID); got != msgNoBatch {
		t.Errorf("reply after cancel = %q", got)
	}
}

func TestBatch_Misconfigured(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withConfig(func(c *Config) { c.BatchChannel = 0 }))
	h.send(command(ownerID, "/batch x"))
	if got := h.lastText(ownerID); got != msgBatchNoChannel {
		t.Errorf("reply = %q", got)
	}
	h2 := newHarness(t)
	h2.send(command(ownerID, "/batch"))
	if got := h2.lastText(ownerID); got != msgBatchUsage {
		t.Errorf("reply = %q", got)
	}
}

func TestBatch_UnknownID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(command(userID, "/start batch_deadbeef"))
	if got := h.lastText(userID); got != msgBatchNotFound {
		t.Errorf("reply = %q", got)
	}
}
