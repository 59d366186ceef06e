package cache

import (
	"context"
	"sync"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

// Guarded wraps an AggregateCache with a per-entity generation counter so a
// read that raced with an invalidation cannot put its stale view back.
// Readers take Generation before querying the store and write with SetIfCurrent.
type Guarded struct {
	AggregateCache

	mu   sync.Mutex
	gens map[string]uint64
}

func NewGuarded(c AggregateCache) *Guarded {
	return &Guarded{AggregateCache: c, gens: map[string]uint64{}}
}

func (g *Guarded) Generation(entity string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[entity]
}

// SetIfCurrent stores view only if entity has not been invalidated since gen
// was read. It reports whether the view was stored.
func (g *Guarded) SetIfCurrent(ctx context.Context, view models.AggregateView, gen uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gens[view.EntityName] != gen {
		return false, nil
	}
	if err := g.AggregateCache.Set(ctx, view); err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate bumps the generation before dropping the entry, so in-flight
// reads started earlier skip their write.
func (g *Guarded) Invalidate(ctx context.Context, entity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[entity]++
	return g.AggregateCache.Invalidate(ctx, entity)
}
