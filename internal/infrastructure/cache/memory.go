package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds the in-process cache when no size is given
const DefaultMemoryEntries = 10_000

// MemoryCache memoizes normalized records in process, evicting the least
// recently used entry once full. It is used when Redis is not configured.
type MemoryCache struct {
	entries *lru.Cache[string, string]
}

// NewMemoryCache creates a cache holding at most size records
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{entries: entries}, nil
}

// Get returns the cached record. A miss is ok=false with a nil error.
func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := m.entries.Get(key)
	return value, ok, nil
}

// Set stores a record
func (m *MemoryCache) Set(_ context.Context, key, value string) error {
	m.entries.Add(key, value)
	return nil
}

// Purge removes every cached record
func (m *MemoryCache) Purge(_ context.Context) (int64, error) {
	n := int64(m.entries.Len())
	m.entries.Purge()
	return n, nil
}

// Len returns the number of cached records
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}
