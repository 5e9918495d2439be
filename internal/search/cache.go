package search

import "chatpick/internal/model"

// CacheStats reports how the global search cache is doing.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// resultCache maps a query to the response it got. Entries leave in
// insertion order once capacity is reached; capacity 0 never evicts.
// Cached slices are shared with consumers and must not be modified.
type resultCache struct {
	entries  map[string]model.Found
	order    []string
	capacity int
	hits     int64
	misses   int64
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		entries:  make(map[string]model.Found),
		capacity: capacity,
	}
}

func (c *resultCache) get(query string) (model.Found, bool) {
	found, ok := c.entries[query]
	if !ok {
		c.misses++
		return model.Found{}, false
	}
	c.hits++
	return found, true
}

func (c *resultCache) put(query string, found model.Found) {
	if _, ok := c.entries[query]; ok {
		c.entries[query] = found
		return
	}
	if c.capacity > 0 && len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[query] = found
	c.order = append(c.order, query)
}

func (c *resultCache) stats() CacheStats {
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
