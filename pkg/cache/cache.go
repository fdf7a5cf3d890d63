// Package cache memoizes query results keyed by a stable fingerprint
// of the query's shape and filter.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// entry represents one cached result set. Payloads are stored as
// compressed JSON.
type entry struct {
	key       string
	payload   []byte
	expiresAt time.Time
	element   *list.Element
}

// Cache is a thread-safe LRU result cache with TTL support
type Cache struct {
	mu         sync.Mutex
	capacity   int
	ttl        time.Duration
	items      map[string]*entry
	lruList    *list.List
	compressor *compressor
	hits       uint64
	misses     uint64
	evictions  uint64
}

// New creates a result cache with snappy payload compression
func New(capacity int, ttl time.Duration) *Cache {
	c, _ := NewWithAlgorithm(capacity, ttl, AlgorithmSnappy)
	return c
}

// NewWithAlgorithm creates a result cache with the given payload
// compression algorithm
func NewWithAlgorithm(capacity int, ttl time.Duration, algorithm Algorithm) (*Cache, error) {
	comp, err := newCompressor(algorithm)
	if err != nil {
		return nil, err
	}

	return &Cache{
		capacity:   capacity,
		ttl:        ttl,
		items:      make(map[string]*entry),
		lruList:    list.New(),
		compressor: comp,
	}, nil
}

// GetResults retrieves a cached result set. A decoding failure counts
// as a miss.
func (c *Cache) GetResults(key string) ([]map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	// Check if expired
	if time.Now().After(e.expiresAt) {
		c.lruList.Remove(e.element)
		delete(c.items, key)
		c.misses++
		return nil, false
	}

	data, err := c.compressor.decompress(e.payload)
	if err != nil {
		c.lruList.Remove(e.element)
		delete(c.items, key)
		c.misses++
		return nil, false
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal(data, &docs); err != nil {
		c.misses++
		return nil, false
	}

	// Move to front (most recently used)
	c.lruList.MoveToFront(e.element)
	c.hits++
	return docs, true
}

// PutResults stores a result set. Results that cannot be serialized
// are silently skipped.
func (c *Cache) PutResults(key string, docs []map[string]interface{}) {
	data, err := json.Marshal(docs)
	if err != nil {
		return
	}
	payload, err := c.compressor.compress(data)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.items[key]; exists {
		e.payload = payload
		e.expiresAt = time.Now().Add(c.ttl)
		c.lruList.MoveToFront(e.element)
		return
	}

	e := &entry{
		key:       key,
		payload:   payload,
		expiresAt: time.Now().Add(c.ttl),
	}
	e.element = c.lruList.PushFront(e)
	c.items[key] = e

	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
}

// evictOldest removes the least recently used item
func (c *Cache) evictOldest() {
	oldest := c.lruList.Back()
	if oldest != nil {
		e := oldest.Value.(*entry)
		c.lruList.Remove(oldest)
		delete(c.items, e.key)
		c.evictions++
	}
}

// Invalidate removes a single entry from the cache
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.items[key]; exists {
		c.lruList.Remove(e.element)
		delete(c.items, key)
	}
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry)
	c.lruList = list.New()
}

// Size returns the current number of items in the cache
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// CleanupExpired removes all expired entries (should be called
// periodically)
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for key, e := range c.items {
		if now.After(e.expiresAt) {
			c.lruList.Remove(e.element)
			delete(c.items, key)
			removed++
		}
	}

	return removed
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"capacity":    c.capacity,
		"size":        len(c.items),
		"hits":        c.hits,
		"misses":      c.misses,
		"evictions":   c.evictions,
		"hit_rate":    fmt.Sprintf("%.2f%%", hitRate),
		"ttl_seconds": c.ttl.Seconds(),
		"compression": c.compressor.algorithm.String(),
	}
}

// Close releases compressor resources
func (c *Cache) Close() error {
	c.compressor.close()
	return nil
}
