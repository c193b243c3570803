package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryCache is an in-process Cache for local runs and tests.
// Entries are lost on restart.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Cache. Expired entries are dropped on read.
func (c *MemoryCache) Get(ctx context.Context, user int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[user]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, user)
		return "", false, nil
	}
	return e.token, true, nil
}

// SetWithExpiry implements Cache.
func (c *MemoryCache) SetWithExpiry(ctx context.Context, user int64, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[user] = memoryEntry{token: token, expires: c.now().Add(ttl)}
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, user int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, user)
	return nil
}
