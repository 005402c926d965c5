package classd

import (
	"sync"
	"time"
)

// snapshotCache holds encoded snapshot bodies for a short time. Writes do
// not invalidate entries, so readers see them once the entry ages out or
// when they ask for a fresh body.
type snapshotCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body   []byte
	stored time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *snapshotCache) get(code string, now time.Time) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[code]
	if !ok || now.Sub(e.stored) >= c.ttl {
		return nil, false
	}
	return e.body, true
}

func (c *snapshotCache) put(code string, body []byte, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = cacheEntry{body: body, stored: now}
}

func (c *snapshotCache) drop(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
}

// sweep removes entries older than the TTL.
func (c *snapshotCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for code, e := range c.entries {
		if now.Sub(e.stored) >= c.ttl {
			delete(c.entries, code)
		}
	}
}
