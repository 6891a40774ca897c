// internal/condition/cache.go
package condition

import (
	"sync"
	"sync/atomic"
)

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache maps exact source text to its compiled predicate. Entries are
// written once and never evicted; expressions are constants for the life of
// the process. Whitespace and quoting are not normalized, so textually
// different but equivalent sources occupy separate entries.
//
// Compilation happens under the write lock, so concurrent first lookups of
// the same source compile it once and all observe the same *Predicate.
// Failed compilations are not stored.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Predicate
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Predicate)}
}

// Get returns the predicate for source, compiling and storing it on first use.
func (c *Cache) Get(source string) (*Predicate, error) {
	c.mu.RLock()
	p, ok := c.entries[source]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have compiled it between the two locks.
	if p, ok := c.entries[source]; ok {
		c.hits.Add(1)
		return p, nil
	}

	c.misses.Add(1)
	p, err := Compile(source)
	if err != nil {
		return nil, err
	}
	c.entries[source] = p
	return p, nil
}

// Len returns the number of stored predicates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit/miss counters and the entry count.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

var defaultCache = NewCache()

// CompileCached compiles source through the process-wide cache.
func CompileCached(source string) (*Predicate, error) {
	return defaultCache.Get(source)
}

// DefaultCache returns the process-wide cache used by CompileCached.
func DefaultCache() *Cache {
	return defaultCache
}
