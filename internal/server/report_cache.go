package server

import (
	"sync"
	"time"
)

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// reportCache keeps rendered reports by request key until they expire.
type reportCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newReportCache(ttl time.Duration) *reportCache {
	if ttl <= 0 {
		return nil
	}
	return &reportCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *reportCache) get(key string, now time.Time) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expiresAt.After(now) {
		return e.body, true
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil, false
}

func (c *reportCache) put(key string, body []byte, now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{body: body, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}
