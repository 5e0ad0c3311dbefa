// Package store selects and opens the configured ledger backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/ayulink/herbtrace/internal/config"
	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/store/boltstore"
	"github.com/ayulink/herbtrace/internal/store/sqlstore"
)

// ErrNotMigratable is returned by Migrate for backends without a schema.
var ErrNotMigratable = errors.New("store: backend has no schema to migrate")

// Migrator is implemented by backends with a schema.
type Migrator interface {
	Migrate() error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open returns the backend named by cfg.Driver. SQL backends are migrated
// when cfg.AutoMigrate is set.
func Open(cfg config.StoreConfig, log *zap.Logger) (ledger.Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		s   ledger.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		s = ledger.NewMemoryStore()
	case config.DriverSQLite:
		s, err = sqlstore.OpenSQLite(cfg.StorePath(), sqlstore.Options{LogLevel: logger.Warn})
	case config.DriverPostgres:
		s, err = sqlstore.OpenPostgres(cfg.DSN, sqlstore.Options{LogLevel: logger.Warn})
	case config.DriverBolt:
		s, err = boltstore.Open(cfg.StorePath())
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if m, ok := s.(Migrator); ok && cfg.AutoMigrate {
		if err := m.Migrate(); err != nil {
			_ = s.Close()
			return nil, err
		}
		log.Info("store migrated", zap.String("driver", cfg.Driver))
	}
	log.Info("store opened", zap.String("driver", cfg.Driver))
	return s, nil
}

// Migrate applies the schema for s.
func Migrate(s ledger.Store) error {
	m, ok := s.(Migrator)
	if !ok {
		return ErrNotMigratable
	}
	return m.Migrate()
}

// Ping checks s when it supports it.
func Ping(ctx context.Context, s ledger.Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
