package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
)

// CatalogStore keeps catalog rows in a map keyed by content id.
type CatalogStore struct {
	mu     sync.RWMutex
	items  map[int64]catalog.Item
	writes int
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{items: make(map[int64]catalog.Item)}
}

// UpsertItem replaces any existing row with the same content id.
func (s *CatalogStore) UpsertItem(_ context.Context, item catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ContentID] = item
	s.writes++
	return nil
}

// Get returns the stored row.
func (s *CatalogStore) Get(contentID int64) (catalog.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[contentID]
	return item, ok
}

// Items returns every row ordered by content id.
func (s *CatalogStore) Items() []catalog.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out
}

// Len reports the number of distinct rows.
func (s *CatalogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Writes reports how many upserts were executed.
func (s *CatalogStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Close is a no-op.
func (s *CatalogStore) Close() error { return nil }
