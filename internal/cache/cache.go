package cache

import (
	"context"
	"sync"
	"time"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

// AggregateCache holds derived AggregateViews keyed by entity name.
// A miss is (zero, false, nil); errors are reserved for backend failures.
type AggregateCache interface {
	Get(ctx context.Context, entity string) (models.AggregateView, bool, error)
	Set(ctx context.Context, view models.AggregateView) error
	Invalidate(ctx context.Context, entity string) error
}

type memoryEntry struct {
	view    models.AggregateView
	expires time.Time
}

// MemoryCache is the single-process default.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty cache. A ttl of 0 keeps entries until invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, entity string) (models.AggregateView, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[entity]
	m.mu.RUnlock()
	if !ok {
		return models.AggregateView{}, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, entity)
		m.mu.Unlock()
		return models.AggregateView{}, false, nil
	}
	return e.view, true, nil
}

func (m *MemoryCache) Set(_ context.Context, view models.AggregateView) error {
	e := memoryEntry{view: view}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[view.EntityName] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, entity string) error {
	m.mu.Lock()
	delete(m.entries, entity)
	m.mu.Unlock()
	return nil
}
