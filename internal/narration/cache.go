package narration

import (
	"sync"
	"sync/atomic"
)

// Cache stores synthesized clips keyed by the trimmed source text.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, pcm []byte)
}

// MemoryCache is an unbounded in-process [Cache]. Entries live until the
// process exits or [MemoryCache.Clear] is called.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

// Get implements [Cache].
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pcm, ok := c.entries[key]
	return pcm, ok
}

// Put implements [Cache].
func (c *MemoryCache) Put(key string, pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = pcm
}

// Len returns the number of cached clips.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// QuotaFlag latches once the synthesis backend reports quota exhaustion on
// every variant. The zero value is unlatched.
type QuotaFlag struct {
	blocked atomic.Bool
}

// Latch sets the flag. It reports whether this call changed it.
func (q *QuotaFlag) Latch() bool {
	return q.blocked.CompareAndSwap(false, true)
}

// Blocked reports whether the flag is set.
func (q *QuotaFlag) Blocked() bool {
	return q.blocked.Load()
}

// Reset clears the flag.
func (q *QuotaFlag) Reset() {
	q.blocked.Store(false)
}
