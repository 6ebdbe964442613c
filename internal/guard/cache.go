// internal/guard/cache.go
package guard

import (
	"sync"
	"time"

	"thellex-wallet/pkg/clock"
)

// TTLCache is a small in-process set with per-entry expiry. Losing it on a
// crash is safe everywhere it is used: the durable unique index remains the
// source of truth, the cache only collapses redundant work.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	clock   clock.Clock
}

// NewTTLCache creates a cache whose entries expire after ttl.
func NewTTLCache(ttl time.Duration, clk clock.Clock) *TTLCache {
	return &TTLCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		clock:   clk,
	}
}

// Add records key if it is not already present and unexpired. It returns true
// when the key was newly added, false when a live entry already held it.
func (c *TTLCache) Add(key string) bool {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.entries[key]; ok && now.Before(expiry) {
		return false
	}
	c.entries[key] = now.Add(c.ttl)
	c.sweepLocked(now)
	return true
}

// Remove drops key immediately, releasing an in-flight claim.
func (c *TTLCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Contains reports whether key has a live entry.
func (c *TTLCache) Contains(key string) bool {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.entries[key]
	return ok && now.Before(expiry)
}

// Len returns the number of entries, including any not yet swept.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked removes expired entries. Called opportunistically under the
// lock so the map cannot grow unbounded between additions.
func (c *TTLCache) sweepLocked(now time.Time) {
	for key, expiry := range c.entries {
		if !now.Before(expiry) {
			delete(c.entries, key)
		}
	}
}
