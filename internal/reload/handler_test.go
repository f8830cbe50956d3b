package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/config"
	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/internal/security/securitytest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// reloadTracker records the module config seen on Reload.
type reloadTracker struct {
	reloads  atomic.Int32
	lastSize atomic.Int32
	service  atomic.Bool
}

func (p *reloadTracker) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "test.reloadable", New: func() core.Module { return p }}
}

func (p *reloadTracker) Reload(ctx *core.AppContext) error {
	p.reloads.Add(1)
	if node, ok := ctx.ModuleConfig("test.reloadable"); ok {
		var cfg struct {
			Size int32 `yaml:"size"`
		}
		if err := node.Decode(&cfg); err != nil {
			return err
		}
		p.lastSize.Store(cfg.Size)
	}
	_, ok := ctx.Service("tracker.marker")
	p.service.Store(ok)
	return nil
}

var tracker = &reloadTracker{}

func init() {
	core.RegisterModule(tracker)
}

func newHandler(t *testing.T) (*Handler, *core.AppContext) {
	t.Helper()
	root := core.NewAppContext(testLogger(), t.TempDir())
	a := core.NewApp(root)
	return NewHandler(a, root), root
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	h, _ := newHandler(t)

	err := h.HandleReload(context.Background(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("modules: {}"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h, _ := newHandler(t)
	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error")
	}
}

func TestHandler_HandleReload_UnknownModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.yaml")
	content := "version: \"1\"\nmodules:\n  fake.mod: {}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h, _ := newHandler(t)
	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error for unknown module")
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	h, _ := newHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.HandleReloadFromConfig(ctx, &config.Config{Version: "1"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHandler_ReloadsModulesWithSharedServices(t *testing.T) {
	root := core.NewAppContext(testLogger(), t.TempDir())
	root.RegisterService("tracker.marker", true)
	auditLogger, events := securitytest.NewTestAuditLogger()
	root.RegisterService("security.audit", auditLogger)

	var first yaml.Node
	if err := yaml.Unmarshal([]byte("size: 1\n"), &first); err != nil {
		t.Fatal(err)
	}
	a := core.NewApp(root.WithModuleConfigs(map[string]yaml.Node{"test.reloadable": *first.Content[0]}))
	if err := a.LoadModules([]string{"test.reloadable"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}

	h := NewHandler(a, root)
	var after atomic.Int32
	h.AfterReload = func() { after.Add(1) }

	path := filepath.Join(t.TempDir(), "filebot.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\nmodules:\n  test.reloadable:\n    size: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := h.HandleReload(context.Background(), path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}

	if tracker.lastSize.Load() != 7 {
		t.Errorf("module saw size %d, want 7", tracker.lastSize.Load())
	}
	if !tracker.service.Load() {
		t.Error("services registered on the root context should be visible on reload")
	}
	if after.Load() != 1 {
		t.Errorf("AfterReload ran %d times, want 1", after.Load())
	}

	var found bool
	for _, e := range events() {
		if e.Type == security.EventConfigChange {
			found = true
		}
	}
	if !found {
		t.Error("expected a config change audit event")
	}
}
