package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
)

// Connector opens a sqlx handle. Tests substitute one backed by sqlmock.
type Connector interface {
	Connect(ctx context.Context, driverName, dsn string) (*sqlx.DB, error)
}

// SQLXConnector connects through sqlx.ConnectContext.
type SQLXConnector struct{}

// Connect opens the handle and verifies it with a ping.
func (SQLXConnector) Connect(ctx context.Context, driverName, dsn string) (*sqlx.DB, error) {
	return sqlx.ConnectContext(ctx, driverName, dsn) //nolint:wrapcheck
}

// SQLProvider upserts catalog items through sqlx.
type SQLProvider struct {
	db      *sqlx.DB
	dialect Dialect
	table   string
	upsert  string
}

// NewSQLProvider wraps an open handle. It is used directly by tests with sqlmock.
func NewSQLProvider(db *sqlx.DB, dialect Dialect, table string) (*SQLProvider, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	resolved, err := ResolveTable(table)
	if err != nil {
		return nil, err
	}
	return &SQLProvider{
		db:      db,
		dialect: dialect,
		table:   resolved,
		upsert:  NamedUpsertStatement(dialect, resolved),
	}, nil
}

// UpsertItem executes one upsert statement, committed implicitly.
func (p *SQLProvider) UpsertItem(ctx context.Context, item catalog.Item) error {
	if _, err := p.db.NamedExecContext(ctx, p.upsert, item); err != nil {
		return fmt.Errorf("upsert content_id %d into %s: %w", item.ContentID, p.table, err)
	}
	return nil
}

// Migrate creates the destination table when it is missing.
func (p *SQLProvider) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, CreateTableStatement(p.dialect, p.table)); err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

// Close closes the handle.
func (p *SQLProvider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("close %s connection: %w", p.dialect, err)
	}
	return nil
}

func connect(ctx context.Context, connector Connector, driver, dsn string, maxOpen int) (*sqlx.DB, error) {
	if connector == nil {
		connector = SQLXConnector{}
	}
	db, err := connector.Connect(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return db, nil
}
