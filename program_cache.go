package sop

import (
	"sync"

	"github.com/goliatone/go-sop/internal/ordered"
)

// DefaultProgramCacheSize bounds the cache a Manager creates for itself.
const DefaultProgramCacheSize = 256

// ProgramCache stores compiled filter programs. Keys are engine-prefixed
// expressions; values are engine specific.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryProgramCache is a concurrency-safe ProgramCache that drops the oldest
// entry once it holds limit programs. A limit of zero or less means
// unbounded.
type MemoryProgramCache struct {
	mu      sync.Mutex
	limit   int
	entries *ordered.Map[string, any]
}

func NewMemoryProgramCache(limit int) *MemoryProgramCache {
	return &MemoryProgramCache{limit: limit, entries: ordered.New[string, any]()}
}

func (c *MemoryProgramCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key)
}

func (c *MemoryProgramCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && !c.entries.Has(key) {
		for c.entries.Len() >= c.limit {
			c.entries.Delete(c.entries.Keys()[0])
		}
	}
	c.entries.Set(key, value)
}

// Len reports the number of cached programs.
func (c *MemoryProgramCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
