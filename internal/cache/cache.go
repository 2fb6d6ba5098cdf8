package cache

import (
	"context"
	"sync"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
)

// Key identifies one memoized query. All four components participate so
// different operations or filters against the same entity never collide.
type Key struct {
	Op         string
	EntityType domain.NodeType
	EntityName string
	Filter     domain.NodeType
}

// Cache memoizes resolved query results. Implementations must be safe for
// concurrent use and must never fail a request: a broken cache is a miss.
type Cache interface {
	Get(ctx context.Context, key Key) (domain.Result, bool)
	Set(ctx context.Context, key Key, result domain.Result)
}

// Memory is the in-process default. There is no invalidation: an ingestion
// run does not purge entries, which is a documented staleness trade-off.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]domain.Result
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]domain.Result)}
}

func (m *Memory) Get(ctx context.Context, key Key) (domain.Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.entries[key]
	return res, ok
}

func (m *Memory) Set(ctx context.Context, key Key, result domain.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = result
}

// Len reports the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
