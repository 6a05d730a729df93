// Package postgres provides a Postgres-backed catalog repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
	"github.com/JakeFAU/catalog-importer/internal/database"
)

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CatalogStore upserts catalog rows into Postgres.
type CatalogStore struct {
	pool   execCloser
	table  string
	upsert string
}

// NewCatalogStore creates a Postgres-backed CatalogStore using the provided config.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := NewCatalogStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(pool execCloser, table string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	resolved, err := database.ResolveTable(table)
	if err != nil {
		return nil, fmt.Errorf("postgres catalog store: %w", err)
	}
	return &CatalogStore{
		pool:   pool,
		table:  resolved,
		upsert: database.UpsertStatement(database.DialectPostgres, resolved),
	}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// UpsertItem inserts the row or updates every non-key column on conflict.
func (s *CatalogStore) UpsertItem(ctx context.Context, item catalog.Item) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog store is not configured")
	}
	if _, err := s.pool.Exec(ctx, s.upsert, item.Args()...); err != nil {
		return fmt.Errorf("upsert content_id %d: %w", item.ContentID, err)
	}
	return nil
}

// Migrate creates the destination table when it is missing.
func (s *CatalogStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, database.CreateTableStatement(database.DialectPostgres, s.table)); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}
