package database

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteConfig describes a SQLite destination file.
type SQLiteConfig struct {
	DSN          string
	Table        string
	MaxOpenConns int
	// Connector overrides how the handle is opened; nil uses sqlx.
	Connector Connector
}

// NewSQLiteProvider opens a SQLite database.
func NewSQLiteProvider(ctx context.Context, cfg SQLiteConfig) (*SQLProvider, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := connect(ctx, cfg.Connector, "sqlite3", cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	p, err := NewSQLProvider(db, DialectSQLite, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}
