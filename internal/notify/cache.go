package notify

import (
	"sync"
	"time"
)

// messageCache remembers recently delivered message texts so a condition
// that persists across sync cycles does not page the operator every run.
type messageCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]time.Time
}

func newMessageCache(ttl time.Duration, maxEntries int, now func() time.Time) *messageCache {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &messageCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]time.Time),
	}
}

// Seen reports whether text was recorded within the TTL.
func (c *messageCache) Seen(text string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := c.entries[text]
	if !ok {
		return false
	}
	if c.now().After(expiresAt) {
		delete(c.entries, text)
		return false
	}
	return true
}

// Record marks text as delivered now.
func (c *messageCache) Record(text string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[text] = c.now().Add(c.ttl)
}

func (c *messageCache) cleanupLocked() {
	now := c.now()
	for text, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, text)
		}
	}
}

func (c *messageCache) evictOneLocked() {
	for text := range c.entries {
		delete(c.entries, text)
		return
	}
}
