// Package sqlite implements the store.sqlite module: a persistent
// store.Registry and store.Index backed by a single SQLite database.
// It uses modernc.org/sqlite (pure Go, no CGO) with FTS5 full-text search
// over file names and captions, and WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/store"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ store.Registry    = (*registry)(nil)
	_ store.Index       = (*index)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module implements the SQLite store module.
type Module struct {
	config   Config
	db       *sql.DB
	logger   *slog.Logger
	registry *registry
	index    *index
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It opens the database and
// registers the store.registry and store.index services.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := Open(context.TODO(), m.config)
	if err != nil {
		return err
	}

	m.db = db
	m.registry = &registry{db: db, now: time.Now}
	m.index = &index{db: db, now: time.Now}

	ctx.RegisterService("store.registry", store.Registry(m.registry))
	ctx.RegisterService("store.index", store.Index(m.index))

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}

	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	// The search index needs FTS5 compiled in.
	var n int
	if err := m.db.QueryRowContext(context.TODO(), "SELECT count(*) FROM documents_fts").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: FTS5 not available: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite store stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Registry returns the store.Registry implementation.
func (m *Module) Registry() store.Registry {
	return m.registry
}

// Index returns the store.Index implementation.
func (m *Module) Index() store.Index {
	return m.index
}
