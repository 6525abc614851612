package dpopx

import (
	"sync"
	"sync/atomic"
	"time"
)

// ReplayCache records proof identifiers so each jti is accepted at most once
// within its lifetime.
type ReplayCache interface {
	// CheckAndStore returns ErrReplay if jti was already stored and has not
	// expired, ErrCacheFull if the cache cannot take new entries, and nil
	// when the jti is recorded as used.
	CheckAndStore(jti string, ttl time.Duration) error
}

const maxJTILength = 1024

// MemoryReplayCache is an in-memory ReplayCache with TTL-based expiry, an
// entry cap, and a background sweeper.
type MemoryReplayCache struct {
	entries    sync.Map // jti -> expiry time.Time
	count      atomic.Int64
	maxEntries int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMemoryReplayCache creates a replay cache holding at most maxEntries
// identifiers, sweeping expired entries every cleanupInterval. Call Stop
// when the cache is no longer needed.
func NewMemoryReplayCache(maxEntries int64, cleanupInterval time.Duration) *MemoryReplayCache {
	if maxEntries <= 0 {
		maxEntries = 100_000
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &MemoryReplayCache{
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	go c.sweep(cleanupInterval)
	return c
}

// CheckAndStore implements ReplayCache.
func (c *MemoryReplayCache) CheckAndStore(jti string, ttl time.Duration) error {
	if jti == "" || len(jti) > maxJTILength {
		return ErrInvalidJTI
	}

	now := time.Now()
	expiry := now.Add(ttl)

	if existing, loaded := c.entries.LoadOrStore(jti, expiry); loaded {
		// Seen before. Only a fully expired entry may be reused.
		if now.Before(existing.(time.Time)) {
			return ErrReplay
		}
		if !c.entries.CompareAndSwap(jti, existing, expiry) {
			// Another request claimed the slot first.
			return ErrReplay
		}
		return nil
	}

	if c.count.Add(1) > c.maxEntries {
		c.entries.Delete(jti)
		c.count.Add(-1)
		return ErrCacheFull
	}

	return nil
}

// Stop terminates the background sweeper and waits for it to exit.
func (c *MemoryReplayCache) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// Len returns the current number of cached identifiers.
func (c *MemoryReplayCache) Len() int64 {
	return c.count.Load()
}

func (c *MemoryReplayCache) sweep(interval time.Duration) {
	defer close(c.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.entries.Range(func(key, value any) bool {
				if now.After(value.(time.Time)) {
					if c.entries.CompareAndDelete(key, value) {
						c.count.Add(-1)
					}
				}
				return true
			})
		}
	}
}
