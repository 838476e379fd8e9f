package history

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

var ErrSourceIDRequired = errors.New("source id is required")

// Cache remembers which source items were already reported. Entries are
// never evicted.
type Cache struct {
	mu      sync.RWMutex
	store   Store
	entries map[string]models.CacheEntry
}

// NewCache creates an empty cache over store. Call Load to read it.
func NewCache(store Store) *Cache {
	return &Cache{
		store:   store,
		entries: make(map[string]models.CacheEntry),
	}
}

// Load replaces the in-memory entries with the persisted ones.
func (c *Cache) Load(ctx context.Context) error {
	entries, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Has reports whether sourceID was already reported.
func (c *Cache) Has(sourceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[sourceID]
	return ok
}

// Record adds or overwrites the entry and persists it immediately. The entry
// stays in memory even if persisting fails, so a later Flush can retry.
func (c *Cache) Record(ctx context.Context, entry models.CacheEntry) error {
	if strings.TrimSpace(entry.SourceID) == "" {
		return ErrSourceIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.SourceID] = entry

	if w, ok := c.store.(EntryWriter); ok {
		return w.Put(ctx, entry)
	}
	return c.store.Save(ctx, c.entries)
}

// Flush writes every entry to the store.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Save(ctx, c.entries)
}

// Len returns the number of recorded items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot sorted by source id.
func (c *Cache) Entries() []models.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}
