package redis

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/store"
	"github.com/flemzord/filebot/internal/store/storetest"
)

func newStubClient(t *testing.T, s *stubServer) goredis.UniversalClient {
	t.Helper()
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    []string{s.Addr()},
		Protocol: 2,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSearchCache(t *testing.T) {
	t.Parallel()

	s := startStub(t)
	storetest.RunSearchCache(t, NewSearchCache(newStubClient(t, s), defaultPrefix), s.advance)
}

func TestSearchCache_KeyPrefix(t *testing.T) {
	t.Parallel()

	s := startStub(t)
	c := NewSearchCache(newStubClient(t, s), "test:")
	if err := c.Put(context.Background(), -42, []store.Document{{FileName: "a"}}, time.Minute); err != nil {
		t.Fatal(err)
	}
	keys := s.keys()
	if len(keys) != 1 || keys[0] != "test:-42" {
		t.Errorf("keys = %v", keys)
	}
}

func TestSearchCache_ZeroTTLDrops(t *testing.T) {
	t.Parallel()

	s := startStub(t)
	ctx := context.Background()
	c := NewSearchCache(newStubClient(t, s), defaultPrefix)
	_ = c.Put(ctx, 1, []store.Document{{FileName: "a"}}, time.Minute)

	if err := c.Put(ctx, 1, nil, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestModule_Lifecycle(t *testing.T) {
	t.Parallel()

	s := startStub(t)
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("addr: "+s.Addr()+"\n"), &node); err != nil {
		t.Fatal(err)
	}

	appCtx := core.NewAppContext(slog.Default(), t.TempDir())
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	c, ok := core.LookupService[store.SearchCache](appCtx, "cache.search")
	if !ok {
		t.Fatal("cache.search not registered")
	}
	if err := c.Put(context.Background(), 5, []store.Document{{FileName: "x.mkv"}}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if m.config.Prefix != defaultPrefix {
		t.Errorf("Prefix = %q", m.config.Prefix)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestModule_ProvisionRequiresAddr(t *testing.T) {
	t.Parallel()

	m := &Module{}
	err := m.Provision(core.NewAppContext(slog.Default(), t.TempDir()))
	if err == nil || !strings.Contains(err.Error(), "addr") {
		t.Errorf("Provision = %v, want addr error", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{Addr: "localhost:6379", DB: -1, TLS: TLSConfig{CertFile: "c.pem"}}
	err := cfg.validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"db", "cert_file"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestBuildTLSConfig(t *testing.T) {
	t.Parallel()

	cfg, err := buildTLSConfig(TLSConfig{})
	if err != nil || cfg != nil {
		t.Errorf("empty TLS config = %v, %v; want nil, nil", cfg, err)
	}

	cfg, err = buildTLSConfig(TLSConfig{ServerName: "redis.internal"})
	if err != nil || cfg == nil || cfg.ServerName != "redis.internal" {
		t.Errorf("server name only = %+v, %v", cfg, err)
	}

	if _, err := buildTLSConfig(TLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestConfig_Addrs(t *testing.T) {
	t.Parallel()

	cfg := Config{Addr: " a:1 ", Addrs: []string{"b:2", " ", "c:3"}}
	got := strings.Join(cfg.addrs(), ",")
	if got != "b:2,c:3,a:1" {
		t.Errorf("addrs = %s", got)
	}
}
