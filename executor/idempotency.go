package executor

import (
	"sync"
	"time"

	"github.com/shaleyeah/agentkernel/types"
)

// idempotencyCache holds completed responses keyed by idempotency key for a
// bounded TTL, so a duplicate request within the window returns the
// original result instead of re-dispatching to the worker.
type idempotencyCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resp    *types.AgentOSResponse
	expires time.Time
}

func newIdempotencyCache() *idempotencyCache {
	return &idempotencyCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached response for key if present and unexpired.
func (c *idempotencyCache) Get(key string) (*types.AgentOSResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.resp, true
}

// Put stores resp under key for the given TTL, opportunistically evicting
// any already-expired entries.
func (c *idempotencyCache) Put(key string, resp *types.AgentOSResponse, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, v := range c.entries {
		if now.After(v.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{resp: resp, expires: now.Add(ttl)}
}
