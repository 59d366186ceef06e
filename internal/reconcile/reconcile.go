package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nitesh/exchange_reviews/internal/cache"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/internal/store"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

// ReviewWriter is the part of the store the reconciler writes through.
type ReviewWriter interface {
	UpsertBatch(ctx context.Context, records []models.EnrichedReview, now time.Time) (store.UpsertResult, error)
	UpdateStatus(ctx context.Context, id string, status models.ModerationStatus) (string, error)
}

type Counts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Reconciler persists enriched batches and keeps the aggregate cache coherent.
// Cache entries are dropped only after the write has committed.
type Reconciler struct {
	store ReviewWriter
	cache cache.AggregateCache
	log   *logger.Logger
	now   func() time.Time
}

func New(w ReviewWriter, c cache.AggregateCache, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{store: w, cache: c, log: log.With("component", "reconcile"), now: time.Now}
}

// Persist writes records all-or-nothing. On failure the counts are zero and
// the error wraps models.ErrPersistence.
func (r *Reconciler) Persist(ctx context.Context, records []models.EnrichedReview) (Counts, error) {
	if len(records) == 0 {
		return Counts{}, nil
	}
	res, err := r.store.UpsertBatch(ctx, records, r.now())
	if err != nil {
		return Counts{}, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	r.invalidate(ctx, res.Entities...)
	r.log.Info("batch persisted", "inserted", res.Inserted, "updated", res.Updated, "entities", len(res.Entities))
	return Counts{Inserted: res.Inserted, Updated: res.Updated}, nil
}

// SetStatus moves one review to a new moderation status. Unknown ids yield
// models.ErrNotFound.
func (r *Reconciler) SetStatus(ctx context.Context, id string, status models.ModerationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}
	entity, err := r.store.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("review %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	r.invalidate(ctx, entity)
	r.log.Info("moderation status changed", "id", id, "status", status, "entity", entity)
	return nil
}

func (r *Reconciler) invalidate(ctx context.Context, entities ...string) {
	if r.cache == nil {
		return
	}
	for _, entity := range entities {
		if err := r.cache.Invalidate(ctx, entity); err != nil {
			r.log.Warn("cache invalidation failed", "entity", entity, "error", err)
		}
	}
}
