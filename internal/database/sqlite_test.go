package database_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-importer/internal/database"
)

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "catalog.db")

	p, err := database.NewSQLiteProvider(ctx, database.SQLiteConfig{DSN: dsn})
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck
	require.NoError(t, p.Migrate(ctx))
	require.NoError(t, p.Migrate(ctx))

	item := sampleItem()
	require.NoError(t, p.UpsertItem(ctx, item))

	item.Title = "Dune: Part One"
	item.Duration = nil
	item.Cast = ""
	require.NoError(t, p.UpsertItem(ctx, item))

	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movie_series").Scan(&count))
	assert.Equal(t, 1, count)

	var (
		title    string
		year     sql.NullInt64
		duration sql.NullInt64
		director sql.NullString
		cast     string
	)
	row := db.QueryRowContext(ctx,
		`SELECT title, release_year, duration, director, "cast" FROM movie_series WHERE content_id = ?`, item.ContentID)
	require.NoError(t, row.Scan(&title, &year, &duration, &director, &cast))
	assert.Equal(t, "Dune: Part One", title)
	assert.Equal(t, int64(2021), year.Int64)
	assert.False(t, duration.Valid)
	assert.Equal(t, "Denis Villeneuve", director.String)
	assert.Equal(t, "", cast)
}

func TestNewSQLiteProviderRequiresDSN(t *testing.T) {
	_, err := database.NewSQLiteProvider(context.Background(), database.SQLiteConfig{})
	require.Error(t, err)
}
