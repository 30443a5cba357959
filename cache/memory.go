package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/escribo/escribo-web/cache/internal/tracking"
)

const memorySystem = "memory"

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

// MemoryCache is an in-process Cache. Expired entries are dropped lazily on
// access, by Purge, and by the cleanup loop when a purge interval is set.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	closed  atomic.Bool

	purgeInterval time.Duration
	closeCh       chan struct{}
	loopDone      chan struct{}
}

var _ Cache = (*MemoryCache)(nil)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, letting tests advance time by hand.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPurgeInterval runs Purge every interval until Close. Zero or less
// leaves expired entries to lazy removal.
func WithPurgeInterval(interval time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		c.purgeInterval = interval
	}
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.purgeInterval > 0 {
		c.closeCh = make(chan struct{})
		c.loopDone = make(chan struct{})
		go c.cleanupLoop(c.purgeInterval)
	}
	return c
}

// cleanupLoop periodically drops expired entries.
func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	defer close(c.loopDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.closeCh:
			return
		}
	}
}

// Get returns a copy of the stored value.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.expired(entry) {
		c.mu.Lock()
		// re-check under the write lock; a concurrent Set may have refreshed it
		if current, still := c.entries[key]; still && c.expired(current) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		ok = false
	}

	tracking.RecordCacheOperation(ctx, memorySystem, tracking.OpGet, time.Since(start), ok, nil, tracking.Keyspace(key))
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if ttl < 0 {
		return ErrInvalidTTL
	}
	start := time.Now()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	tracking.RecordCacheOperation(ctx, memorySystem, tracking.OpSet, time.Since(start), false, nil, tracking.Keyspace(key))
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	start := time.Now()

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	tracking.RecordCacheOperation(ctx, memorySystem, tracking.OpDelete, time.Since(start), false, nil, tracking.Keyspace(key))
	return nil
}

// Health fails only after Close.
func (c *MemoryCache) Health(context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup loop and drops all entries. Closing twice returns
// ErrClosed.
func (c *MemoryCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if c.closeCh != nil {
		close(c.closeCh)
		<-c.loopDone
	}
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
