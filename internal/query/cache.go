package query

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cache is the shared query-result cache: key → (value, expiry instant).
// Expiry is check-on-read; entries past their deadline are removed on the
// next lookup. An optional periodic sweep reclaims entries nobody reads
// again, so the map cannot grow without bound under a changing query mix.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
	sweeper *cron.Cron
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// WithNow replaces the clock (tests).
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached value if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with the given lifetime.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Sweep removes every expired entry, returning how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Invalidate removes every entry whose key has the given prefix, returning
// how many were dropped. An empty prefix clears the cache.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key := range c.entries {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the current entry count, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper schedules Sweep every interval. A non-positive interval is a
// no-op: check-on-read expiry alone is sufficient for correctness.
func (c *Cache) StartSweeper(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(fmt.Sprintf("@every %s", interval), func() { c.Sweep() }); err != nil {
		return err
	}
	sweeper.Start()
	c.mu.Lock()
	c.sweeper = sweeper
	c.mu.Unlock()
	return nil
}

// StopSweeper halts the periodic sweep if one is running.
func (c *Cache) StopSweeper() {
	c.mu.Lock()
	sweeper := c.sweeper
	c.sweeper = nil
	c.mu.Unlock()
	if sweeper != nil {
		sweeper.Stop()
	}
}
