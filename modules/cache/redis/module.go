// Package redis implements the cache.redis module: the paginated search
// result cache kept in Redis so it survives restarts and can be shared by
// several bot processes.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/store"
)

const pingTimeout = 5 * time.Second

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module implements the Redis cache module.
type Module struct {
	config Config
	logger *slog.Logger
	client goredis.UniversalClient
	cache  *SearchCache
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cache.redis",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("redis: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It creates the client and
// registers the cache.search service; the connection is checked in Validate.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if err := m.config.validate(); err != nil {
		return err
	}
	tlsConfig, err := buildTLSConfig(m.config.TLS)
	if err != nil {
		return err
	}

	m.client = goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        m.config.addrs(),
		MasterName:   m.config.MasterName,
		Username:     m.config.Username,
		Password:     m.config.Password,
		DB:           m.config.DB,
		TLSConfig:    tlsConfig,
		DialTimeout:  m.config.DialTimeout,
		ReadTimeout:  m.config.ReadTimeout,
		WriteTimeout: m.config.WriteTimeout,
		PoolSize:     m.config.PoolSize,
		MaxRetries:   2,
	})
	m.cache = NewSearchCache(m.client, m.config.Prefix)
	ctx.RegisterService("cache.search", store.SearchCache(m.cache))

	m.logger.Info("redis cache provisioned", "addrs", m.config.addrs(), "prefix", m.config.Prefix)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.client == nil {
		return nil
	}
	m.logger.Info("redis cache stopping")
	return m.client.Close()
}

// Cache returns the store.SearchCache implementation.
func (m *Module) Cache() *SearchCache {
	return m.cache
}
