package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type recordingReloader struct {
	path string
	err  error
}

func (r *recordingReloader) HandleReload(_ context.Context, path string) error {
	r.path = path
	return r.err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filebot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAdmin_GetConfigRedactsSecrets(t *testing.T) {
	t.Parallel()

	g, appCtx := newTestGateway(t, "127.0.0.1:0", AuthConfig{BearerToken: "tok"})
	appCtx.RegisterService("config.path", writeConfig(t, `version: "1"
modules:
  bot.filebot:
    token: "123:secret"
    admin_id: 5
    shortener:
      api_key: "sk-live"
`))

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	g.handleGetConfig().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Modules map[string]map[string]any `json:"modules"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	bot := got.Modules["bot.filebot"]
	if bot["token"] != "***REDACTED***" {
		t.Errorf("token = %v, want redacted", bot["token"])
	}
	if bot["admin_id"] != float64(5) {
		t.Errorf("admin_id = %v, want 5", bot["admin_id"])
	}
	shortener, _ := bot["shortener"].(map[string]any)
	if shortener["api_key"] != "***REDACTED***" {
		t.Errorf("api_key = %v, want redacted", shortener["api_key"])
	}
}

func TestAdmin_GetConfigWithoutPath(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, "127.0.0.1:0", AuthConfig{BearerToken: "tok"})

	rr := httptest.NewRecorder()
	g.handleGetConfig().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestAdmin_ReloadConfig(t *testing.T) {
	t.Parallel()

	g, appCtx := newTestGateway(t, "127.0.0.1:0", AuthConfig{BearerToken: "tok"})
	path := writeConfig(t, "version: \"1\"\n")
	reloader := &recordingReloader{}
	appCtx.RegisterService("config.path", path)
	appCtx.RegisterService("reload.handler", reloader)

	rr := httptest.NewRecorder()
	g.handleReloadConfig().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config/reload", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if reloader.path != path {
		t.Errorf("reloaded %q, want %q", reloader.path, path)
	}

	reloader.err = errors.New("validating config: bad")
	rr = httptest.NewRecorder()
	g.handleReloadConfig().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config/reload", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("failed reload status = %d, want 400", rr.Code)
	}
}

func TestAdmin_ReloadWithoutHandler(t *testing.T) {
	t.Parallel()

	g, appCtx := newTestGateway(t, "127.0.0.1:0", AuthConfig{BearerToken: "tok"})
	appCtx.RegisterService("config.path", "/etc/filebot.yaml")

	rr := httptest.NewRecorder()
	g.handleReloadConfig().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config/reload", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestAdmin_ListModules(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, "127.0.0.1:0", AuthConfig{BearerToken: "tok"})

	rr := httptest.NewRecorder()
	g.handleGetAllModules().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/modules", nil))

	var mods []moduleJSON
	if err := json.NewDecoder(rr.Body).Decode(&mods); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, m := range mods {
		if m.ID == "gateway.http" && m.Namespace == "gateway" && m.Name == "http" {
			found = true
		}
	}
	if !found {
		t.Errorf("gateway.http missing from %+v", mods)
	}
}

func TestRedactSecrets_Nested(t *testing.T) {
	t.Parallel()

	m := map[string]any{
		"admin_password_hash": "pbkdf2$...",
		"list": []any{
			map[string]any{"webhook_secret": "s", "name": "keep"},
		},
		"empty_token": "",
	}
	redactSecrets(m)

	if m["admin_password_hash"] != "***REDACTED***" {
		t.Errorf("hash not redacted: %v", m["admin_password_hash"])
	}
	item := m["list"].([]any)[0].(map[string]any)
	if item["webhook_secret"] != "***REDACTED***" || item["name"] != "keep" {
		t.Errorf("list item = %v", item)
	}
	if m["empty_token"] != "" {
		t.Errorf("empty values stay empty, got %v", m["empty_token"])
	}
}
