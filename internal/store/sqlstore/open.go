package sqlstore

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tune the GORM session.
type Options struct {
	// LogLevel is the GORM logger level; zero means silent.
	LogLevel logger.LogLevel
}

func gormConfig(opts Options) *gorm.Config {
	level := opts.LogLevel
	if level == 0 {
		level = logger.Silent
	}
	return &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}
}

// OpenSQLite opens a pure-Go SQLite database. path may be ":memory:".
// The pool is pinned to one connection: SQLite allows a single writer and
// each in-memory connection would otherwise see its own database.
func OpenSQLite(path string, opts Options) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return New(db), nil
}

// OpenPostgres opens a PostgreSQL database from a DSN or URL.
func OpenPostgres(dsn string, opts Options) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db), nil
}
