package main

import (
	"sync"
	"time"
)

type pageEntry struct {
	content   string
	fetchedAt time.Time
}

// PageCache provides thread-safe TTL caching for fetched page content, so
// repeated fetch-url requests for the same page don't re-download it.
type PageCache struct {
	mu      sync.RWMutex
	entries map[string]pageEntry
	ttl     time.Duration
}

// NewPageCache creates a page cache with the specified TTL.
func NewPageCache(ttl time.Duration) *PageCache {
	return &PageCache{
		entries: make(map[string]pageEntry),
		ttl:     ttl,
	}
}

// Get retrieves cached content for a URL if present and not expired.
func (c *PageCache) Get(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok {
		return "", false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		return "", false
	}
	return entry.content, true
}

// Set stores content for a URL, evicting any expired entries while it holds
// the lock.
func (c *PageCache) Set(url string, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if time.Since(entry.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
	}

	c.entries[url] = pageEntry{content: content, fetchedAt: time.Now()}
}

// Clear removes all entries from the cache.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]pageEntry)
}

// Size returns the number of cached pages, expired entries included.
func (c *PageCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
