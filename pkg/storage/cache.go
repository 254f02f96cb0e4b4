package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore serves Get from an in-process LRU and invalidates on writes.
// GetAll always reads through so listings never go stale.
//
// Every write bumps a generation counter. A load only fills the cache when
// no write happened while it was in flight, so a slow read cannot put back
// a record that was deleted or replaced underneath it.
type CachedStore struct {
	Store
	cache  *lru.LRU[string, *Record]
	hits   atomic.Uint64
	misses atomic.Uint64

	mu         sync.Mutex
	generation uint64
}

// NewCachedStore wraps store with an LRU of up to size entries that expire
// after ttl
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	if size < 10 {
		size = 10
	}
	return &CachedStore{
		Store: store,
		cache: lru.NewLRU[string, *Record](size, nil, ttl),
	}
}

// Get returns the cached record or loads it from the backing store
func (c *CachedStore) Get(ctx context.Context, id string) (*Record, error) {
	if rec, ok := c.cache.Get(id); ok {
		c.hits.Add(1)
		return rec.Clone(), nil
	}
	c.misses.Add(1)

	seen := c.currentGeneration()
	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == seen {
		c.cache.Add(id, rec.Clone())
	}
	c.mu.Unlock()
	return rec, nil
}

// Save writes through and refreshes the cached entry
func (c *CachedStore) Save(ctx context.Context, record *Record) (*Record, error) {
	if record != nil {
		c.invalidate(record.ID)
	}
	saved, err := c.Store.Save(ctx, record)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.generation++
	c.cache.Add(saved.ID, saved.Clone())
	c.mu.Unlock()
	return saved, nil
}

// Delete removes the record and its cached entry. The entry is dropped
// again once the backing delete returns to discard any load that raced it.
func (c *CachedStore) Delete(ctx context.Context, id string) error {
	c.invalidate(id)
	err := c.Store.Delete(ctx, id)
	c.invalidate(id)
	return err
}

func (c *CachedStore) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *CachedStore) invalidate(id string) {
	c.mu.Lock()
	c.generation++
	c.cache.Remove(id)
	c.mu.Unlock()
}

// CacheStats returns hit and miss counts since creation
func (c *CachedStore) CacheStats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached entries
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// Purge drops every cached entry
func (c *CachedStore) Purge() {
	c.cache.Purge()
}
