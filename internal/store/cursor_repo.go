// Package store declares the persistence contract for import progress.
// Implementations live in internal/storage; this package must not import
// database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound signals that no progress has been recorded for a pair.
var ErrNotFound = errors.New("progress record not found")

// PairProgress is the resume cursor for one (year, language) pair.
type PairProgress struct {
	Year     int    `json:"year"`
	Language string `json:"language"`
	// LastPage is the last fully processed discovery page; 0 means none.
	LastPage   int       `json:"last_page"`
	TotalPages int       `json:"total_pages"`
	Done       bool      `json:"done"`
	RunID      string    `json:"run_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key renders the pair as "YYYY/lang", which also sorts chronologically.
func (p PairProgress) Key() string {
	return PairKey(p.Year, p.Language)
}

// NextPage is the page a resumed run starts at.
func (p PairProgress) NextPage() int {
	return p.LastPage + 1
}

// PairKey renders the storage key for a pair.
func PairKey(year int, language string) string {
	return fmt.Sprintf("%04d/%s", year, language)
}

// CursorRepository persists per-pair progress between runs.
type CursorRepository interface {
	// Load returns the pair's progress or ErrNotFound.
	Load(ctx context.Context, year int, language string) (PairProgress, error)
	// Save overwrites the pair's progress.
	Save(ctx context.Context, progress PairProgress) error
	// List returns every stored pair ordered by key.
	List(ctx context.Context) ([]PairProgress, error)
	// Reset removes all stored progress.
	Reset(ctx context.Context) error
	// Close releases the underlying handle.
	Close() error
}

// NoOpCursor never remembers progress. It is used when checkpointing is disabled.
type NoOpCursor struct{}

// Load always reports ErrNotFound.
func (NoOpCursor) Load(context.Context, int, string) (PairProgress, error) {
	return PairProgress{}, ErrNotFound
}

// Save discards the progress.
func (NoOpCursor) Save(context.Context, PairProgress) error { return nil }

// List returns nothing.
func (NoOpCursor) List(context.Context) ([]PairProgress, error) { return nil, nil }

// Reset does nothing.
func (NoOpCursor) Reset(context.Context) error { return nil }

// Close does nothing.
func (NoOpCursor) Close() error { return nil }
