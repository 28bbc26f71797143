package provider

import (
	"sync"
	"time"
)

// cacheEntry holds one cached response body with its expiry and insertion
// time.
type cacheEntry struct {
	body       []byte
	expiresAt  time.Time
	insertedAt time.Time
}

// ResponseCache is a thread-safe TTL cache for provider responses with
// oldest-entry eviction at capacity. Expired entries are lazily evicted on
// Get. Its entry count feeds the status endpoint.
type ResponseCache struct {
	mu      sync.Mutex
	items   map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

// NewResponseCache creates a cache with the given capacity and TTL.
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResponseCache{
		items:   make(map[string]*cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached body for key, or false when missing or expired.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return e.body, true
}

// Set stores a body under key, evicting the oldest entry when full.
func (c *ResponseCache) Set(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.items {
			if oldestKey == "" || e.insertedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.insertedAt
			}
		}
		delete(c.items, oldestKey)
	}

	c.items[key] = &cacheEntry{
		body:       body,
		expiresAt:  now.Add(c.ttl),
		insertedAt: now,
	}
}

// Len returns the current number of cached entries, counting expired ones
// that have not been touched since expiry.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops every cached entry.
func (c *ResponseCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheEntry, c.maxSize)
}
