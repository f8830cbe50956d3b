package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatus_BotStatsAndErrors(t *testing.T) {
	t.Parallel()

	g, appCtx := newTestGateway(t, "127.0.0.1:0", AuthConfig{BearerToken: "tok"})
	appCtx.RegisterService("app.modules", []string{"store.sqlite", "gateway.http", "bot.filebot"})
	g.bots.Register("bot.filebot", &fakeBot{
		username: "files_bot",
		stats:    map[string]int{"users": 12, "db_channels": 2},
	})
	g.bots.Register("bot.other", &fakeBot{err: errStatsUnavailable})
	g.metrics.RecordRequest()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Modules) != 3 {
		t.Errorf("modules = %v", resp.Modules)
	}
	if resp.Metrics.Requests != 1 {
		t.Errorf("requests = %d, want 1", resp.Metrics.Requests)
	}
	if len(resp.Bots) != 2 {
		t.Fatalf("bots = %d, want 2", len(resp.Bots))
	}
	if got := resp.Bots[0].Stats["users"]; got != 12 {
		t.Errorf("users = %d, want 12", got)
	}
	if resp.Bots[1].Error != errStatsUnavailable.Error() {
		t.Errorf("error = %q", resp.Bots[1].Error)
	}
}
