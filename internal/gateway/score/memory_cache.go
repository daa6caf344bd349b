package score

import (
	"context"
	"sync"
	"time"

	"github.com/ocx/trustgate/internal/gateway/clock"
)

type memoryCacheEntry struct {
	score     int
	expiresAt int64
}

// MemoryCache is an in-process TTL cache, the "cached" provider's
// default when no remote cache backend is configured. A concurrent map
// protected by a single mutex, matching the shared-state discipline
// the rest of this package follows (short critical sections, no lock
// held across I/O).
type MemoryCache struct {
	mu    sync.Mutex
	data  map[string]memoryCacheEntry
	ttl   time.Duration
	clock clock.Clock
}

// NewMemoryCache constructs a MemoryCache with the given TTL.
func NewMemoryCache(ttl time.Duration, c clock.Clock) *MemoryCache {
	return &MemoryCache{data: make(map[string]memoryCacheEntry), ttl: ttl, clock: c}
}

func (c *MemoryCache) Get(_ context.Context, principalID string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[principalID]
	if !ok {
		return 0, false, nil
	}
	if c.clock.Now() >= entry.expiresAt {
		delete(c.data, principalID)
		return 0, false, nil
	}
	return entry.score, true, nil
}

func (c *MemoryCache) Set(_ context.Context, principalID string, s int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[principalID] = memoryCacheEntry{
		score:     s,
		expiresAt: c.clock.Now() + int64(c.ttl/time.Second),
	}
	return nil
}
