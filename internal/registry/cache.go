package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// toolCache is a TTL cache with stale-while-revalidate semantics: an expired
// entry is still served, and exactly one caller is told to refresh it in the
// background. Lookups stay lock-free via sync.Map.
type toolCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	tool       *ToolDefinition // nil = negative entry (tool not registered)
	expiresAt  time.Time
	refreshing atomic.Bool
}

type cacheLookup struct {
	tool         *ToolDefinition
	hit          bool
	needsRefresh bool
}

func newToolCache(ttl time.Duration) *toolCache {
	return &toolCache{ttl: ttl}
}

func (c *toolCache) get(toolName string) cacheLookup {
	val, ok := c.store.Load(toolName)
	if !ok {
		return cacheLookup{}
	}

	entry := val.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return cacheLookup{tool: entry.tool, hit: true}
	}

	// Stale: only the CAS winner refreshes.
	return cacheLookup{
		tool:         entry.tool,
		hit:          true,
		needsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// set stores a definition with a fresh TTL; nil stores a negative entry.
func (c *toolCache) set(toolName string, tool *ToolDefinition) {
	c.store.Store(toolName, &cacheEntry{
		tool:      tool,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *toolCache) delete(toolName string) {
	c.store.Delete(toolName)
}
