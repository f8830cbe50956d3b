package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Update("filebot", "message")
	m.Search("ok", 3, 20*time.Millisecond)
	m.APICall("sendMessage", 10*time.Millisecond, nil)
	m.APICall("copyMessage", 0, errors.New("x"))
	m.Broadcast("removed")
	m.Link(true)
	m.Indexed()
	if err := m.RegisterGauge("send_queue_depth", "Queued calls.", func() float64 { return 7 }); err != nil {
		t.Fatal(err)
	}

	out := scrape(t, m)
	for _, want := range []string{
		`filebot_updates_total{bot="filebot",type="message"} 1`,
		`filebot_searches_total{outcome="ok"} 1`,
		`filebot_search_results_count 1`,
		`filebot_telegram_calls_total{method="copyMessage",result="error"} 1`,
		`filebot_broadcast_messages_total{result="removed"} 1`,
		`filebot_links_total{kind="shortened"} 1`,
		`filebot_documents_indexed_total 1`,
		`filebot_send_queue_depth 7`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_SearchWithoutIndexCall(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.Search("rejected", 0, 0)
	out := scrape(t, m)
	if !strings.Contains(out, `filebot_searches_total{outcome="rejected"} 1`) {
		t.Error("rejected search not counted")
	}
	if !strings.Contains(out, "filebot_search_results_count 0") {
		t.Error("rejected search should not observe results")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Update("a", "b")
	m.Search("ok", 1, time.Second)
	m.APICall("x", 0, nil)
	m.Broadcast("sent")
	m.Link(false)
	m.Indexed()
	if err := m.RegisterGauge("x", "y", func() float64 { return 0 }); err != nil {
		t.Fatal(err)
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	t.Parallel()

	shutdown, err := SetupTracing(context.Background(), TracingOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if Tracer() == nil {
		t.Fatal("Tracer returned nil")
	}
}
