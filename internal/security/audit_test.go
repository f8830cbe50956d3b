package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixedTime },
	})

	logger.Log(AuditEvent{
		Type:   EventChannelAdd,
		Module: "bot.filebot",
		UserID: 42,
		Target: "-1001234567890",
		Detail: "db channel",
	})

	var got AuditEvent
	if err := json.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("failed to decode JSONL: %v", err)
	}

	if got.Type != EventChannelAdd {
		t.Errorf("type = %q, want %q", got.Type, EventChannelAdd)
	}
	if got.UserID != 42 {
		t.Errorf("user_id = %d, want 42", got.UserID)
	}
	if got.Target != "-1001234567890" {
		t.Errorf("target = %q", got.Target)
	}
	if !got.Timestamp.Equal(fixedTime) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, fixedTime)
	}
}

func TestAuditLogger_RedactsDetailAndMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor()
	r.AddLiteral("hunter2")

	meta := map[string]string{"input": "typed hunter2"}
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: r})
	logger.Log(AuditEvent{
		Type:     EventAuthFailure,
		Detail:   "password hunter2 rejected",
		Metadata: meta,
	})

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("secret leaked into audit log: %s", buf.String())
	}
	if meta["input"] != "typed hunter2" {
		t.Error("caller metadata map was mutated")
	}
}

func TestAuditLogger_OnEventCallback(t *testing.T) {
	t.Parallel()

	var events []AuditEvent
	logger := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(e AuditEvent) { events = append(events, e) },
	})

	logger.Log(AuditEvent{Type: EventAdminAdd, Target: "7"})
	logger.Log(AuditEvent{Type: EventAdminRemove, Target: "7"})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Type != EventAdminRemove {
		t.Errorf("events[1].Type = %q", events[1].Type)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventBroadcast})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
}

func TestAuditLogger_NilLogger(t *testing.T) {
	t.Parallel()

	var logger *AuditLogger
	logger.Log(AuditEvent{Type: EventBroadcast})
}

type errWriter struct{}

func (errWriter) Write(_ []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestAuditLogger_WriteErrors(t *testing.T) {
	t.Parallel()

	failing := NewAuditLogger(AuditLoggerConfig{Writer: errWriter{}})
	failing.Log(AuditEvent{Type: EventCoverSet})
	failing.Log(AuditEvent{Type: EventCoverSet})
	if got := failing.WriteErrors(); got != 2 {
		t.Errorf("WriteErrors() = %d, want 2", got)
	}

	ok := NewAuditLogger(AuditLoggerConfig{Writer: io.Discard})
	ok.Log(AuditEvent{Type: EventCoverSet})
	if got := ok.WriteErrors(); got != 0 {
		t.Errorf("WriteErrors() = %d, want 0", got)
	}
}
