package tenant

import (
	"sync"
	"time"
)

// maxCacheTTL bounds how stale a cached record may get. Lookups on the hot
// request path hit the cache first; five seconds keeps a dropped or renamed
// home from lingering longer than an operator would notice.
const maxCacheTTL = 5 * time.Second

type cacheEntry struct {
	rec     *Record
	expires time.Time
}

// recordCache is a short-TTL read-through cache over the registry. Create
// and delete purge the whole cache so a lookup never returns a home that
// teardown already removed.
type recordCache struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	byName map[string]cacheEntry
	byID   map[int64]cacheEntry
}

// newRecordCache builds a cache with the given TTL, clamped to maxCacheTTL.
// A TTL of zero or less disables caching entirely.
func newRecordCache(ttl time.Duration) *recordCache {
	if ttl > maxCacheTTL {
		ttl = maxCacheTTL
	}
	return &recordCache{
		ttl:    ttl,
		now:    time.Now,
		byName: make(map[string]cacheEntry),
		byID:   make(map[int64]cacheEntry),
	}
}

func (c *recordCache) getByName(name string) (*Record, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.byName[name]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.rec, true
}

func (c *recordCache) getByID(id int64) (*Record, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.byID[id]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.rec, true
}

func (c *recordCache) put(rec *Record) {
	if c.ttl <= 0 {
		return
	}
	entry := cacheEntry{rec: rec, expires: c.now().Add(c.ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[rec.Name] = entry
	c.byID[rec.ID] = entry
}

// purge drops every cached entry. Called after create and delete so readers
// immediately see the registry change.
func (c *recordCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.byName)
	clear(c.byID)
}
