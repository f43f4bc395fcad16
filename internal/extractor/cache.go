package extractor

import (
	"sync"
	"time"
)

// cacheKey is (url, sponsorblock-flag), per spec.md §4.5's "cached on (URL,
// sponsorblock-flag)" rule.
type cacheKey struct {
	url          string
	sponsorBlock bool
}

type cacheEntry struct {
	info      MediaInfo
	expiresAt time.Time
}

// metadataCache is a soft-capped, TTL'd in-memory cache for extractor.info
// results. Grounded in internal/resolver/cache.go's load-mutate pattern,
// simplified to process-memory-only since metadata lookups are cheap to
// redo on restart and spec.md gives no persistence requirement for them.
type metadataCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	items map[cacheKey]cacheEntry
	order []cacheKey // insertion order, for soft-cap eviction
}

func newMetadataCache(ttlMinutes, maxEntries int) *metadataCache {
	if ttlMinutes <= 0 {
		ttlMinutes = 5
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &metadataCache{
		ttl:   time.Duration(ttlMinutes) * time.Minute,
		max:   maxEntries,
		items: make(map[cacheKey]cacheEntry),
	}
}

func (c *metadataCache) get(url string, sponsorBlock bool) (MediaInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{url: url, sponsorBlock: sponsorBlock}
	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		return MediaInfo{}, false
	}
	return e.info, true
}

func (c *metadataCache) put(url string, sponsorBlock bool, info MediaInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{url: url, sponsorBlock: sponsorBlock}
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		for len(c.order) > c.max {
			evict := c.order[0]
			c.order = c.order[1:]
			delete(c.items, evict)
		}
	}
	c.items[key] = cacheEntry{info: info, expiresAt: time.Now().Add(c.ttl)}
}
