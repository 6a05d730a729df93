// Package database defines the catalog repository contract and its
// database/sql backed implementations (MySQL and SQLite).
package database

import (
	"context"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
)

// Provider writes catalog items to the destination table.
// Implementations upsert on content_id so repeated writes are idempotent.
type Provider interface {
	// UpsertItem inserts the item or updates every non-key column of the existing row.
	UpsertItem(ctx context.Context, item catalog.Item) error

	// Close releases the underlying connection.
	Close() error
}

// Migrator is implemented by providers that can create the destination table.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// NoOpProvider discards every write.
type NoOpProvider struct{}

// UpsertItem does nothing.
func (NoOpProvider) UpsertItem(context.Context, catalog.Item) error { return nil }

// Close does nothing.
func (NoOpProvider) Close() error { return nil }
