package session

import (
	"context"
	"sync"
	"time"

	id "invigil/pkg/domain"
	"invigil/pkg/platform/sentinel"
)

// InMemoryCache mirrors RedisCache semantics for tests and single-process
// development. Expiry is checked on read, so a Get can never return a value
// past its TTL even though the reaper is lazy.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[id.UserID]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	projection Projection
	expiresAt  time.Time
}

// InMemoryCacheOption configures an InMemoryCache.
type InMemoryCacheOption func(*InMemoryCache)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) InMemoryCacheOption {
	return func(c *InMemoryCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewInMemoryCache constructs an empty in-memory projection cache.
func NewInMemoryCache(opts ...InMemoryCacheOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[id.UserID]memoryEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns a copy of the cached projection or sentinel.ErrNotFound.
func (c *InMemoryCache) Get(_ context.Context, userID id.UserID) (*Projection, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !c.clock().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}

	projection := entry.projection
	return &projection, nil
}

// Put stores a copy of the projection, overwriting any prior entry.
func (c *InMemoryCache) Put(_ context.Context, userID id.UserID, projection *Projection, ttl time.Duration) error {
	if ttl <= 0 {
		return sentinel.ErrInvalidState
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = memoryEntry{
		projection: *projection,
		expiresAt:  c.clock().Add(ttl),
	}
	return nil
}

// Invalidate removes the subject's entry; removing a missing key is a no-op.
func (c *InMemoryCache) Invalidate(_ context.Context, userID id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}
