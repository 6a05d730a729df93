// Package bolt persists import progress in an embedded bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/JakeFAU/catalog-importer/internal/store"
)

const (
	dbFileMode = 0o600
	dbDirMode  = 0o750

	openTimeout = 2 * time.Second
)

var bucketPairs = []byte("pairs")

// CursorStore implements store.CursorRepository on bbolt.
type CursorStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open creates or opens the cursor file at path.
func Open(path string) (*CursorStore, error) {
	if path == "" {
		return nil, errors.New("cursor path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dbDirMode); err != nil {
		return nil, fmt.Errorf("create cursor directory: %w", err)
	}
	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open cursor file %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPairs)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cursor bucket: %w", err)
	}
	return &CursorStore{db: db, now: time.Now}, nil
}

// Load returns the stored progress for the pair.
func (s *CursorStore) Load(_ context.Context, year int, language string) (store.PairProgress, error) {
	var out store.PairProgress
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketPairs).Get([]byte(store.PairKey(year, language)))
		if raw == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.PairProgress{}, err
		}
		return store.PairProgress{}, fmt.Errorf("load cursor %s: %w", store.PairKey(year, language), err)
	}
	return out, nil
}

// Save overwrites the pair's progress, stamping UpdatedAt when unset.
func (s *CursorStore) Save(_ context.Context, progress store.PairProgress) error {
	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPairs).Put([]byte(progress.Key()), raw)
	})
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", progress.Key(), err)
	}
	return nil
}

// List returns all stored pairs in key order.
func (s *CursorStore) List(_ context.Context) ([]store.PairProgress, error) {
	var out []store.PairProgress
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPairs).ForEach(func(k, v []byte) error {
			var p store.PairProgress
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	return out, nil
}

// Reset drops and recreates the pairs bucket.
func (s *CursorStore) Reset(_ context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketPairs) != nil {
			if err := tx.DeleteBucket(bucketPairs); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(bucketPairs)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset cursors: %w", err)
	}
	return nil
}

// Close closes the bbolt file.
func (s *CursorStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close() //nolint:wrapcheck
}
