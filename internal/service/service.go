package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nitesh/exchange_reviews/internal/cache"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/internal/pipeline"
	"github.com/nitesh/exchange_reviews/internal/reconcile"
	"github.com/nitesh/exchange_reviews/internal/source"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

// ErrRunInProgress is returned when an ingestion run is triggered while
// another one is still going.
var ErrRunInProgress = errors.New("ingestion run already in progress")

type ReviewStore interface {
	pipeline.ReviewLookup
	reconcile.ReviewWriter

	Get(ctx context.Context, id string) (models.EnrichedReview, error)
	Aggregate(ctx context.Context, entity string) (models.AggregateView, error)
	Aggregates(ctx context.Context) ([]models.AggregateView, error)
	ListApproved(ctx context.Context, entity string, limit, offset int) ([]models.EnrichedReview, error)
	ListPending(ctx context.Context, limit int) ([]models.EnrichedReview, error)
	ApprovedTexts(ctx context.Context, entity string) ([]string, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type Synthesizer interface {
	Synthesize(ctx context.Context, entity string, texts []string) (string, error)
}

type Deps struct {
	Store       ReviewStore
	Cache       cache.AggregateCache
	Scorer      pipeline.Scorer
	Synthesizer Synthesizer
	Sources     []source.Source
	PacingDelay time.Duration
	Log         *logger.Logger
}

type Service struct {
	repo       ReviewStore
	cache      *cache.Guarded
	pipeline   *pipeline.Pipeline
	reconciler *reconcile.Reconciler
	synth      Synthesizer
	sources    []source.Source
	running    sync.Mutex
	log        *logger.Logger
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	base := d.Cache
	if base == nil {
		base = cache.NewMemoryCache(0)
	}
	c := cache.NewGuarded(base)
	return &Service{
		repo:       d.Store,
		cache:      c,
		pipeline:   pipeline.New(d.Scorer, d.Store, d.PacingDelay, log),
		reconciler: reconcile.New(d.Store, c, log),
		synth:      d.Synthesizer,
		sources:    d.Sources,
		log:        log.With("component", "service"),
	}
}

type IngestResult struct {
	Report pipeline.Report `json:"report"`
	reconcile.Counts
}

// RunIngestion runs the enrichment pipeline over the configured sources and
// persists the result as one batch. Only one run may be active at a time.
func (s *Service) RunIngestion(ctx context.Context, opts pipeline.Options) (IngestResult, error) {
	if !s.running.TryLock() {
		return IngestResult{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	records, report, err := s.pipeline.Run(ctx, s.sources, opts)
	if err != nil {
		return IngestResult{Report: report}, fmt.Errorf("pipeline: %w", err)
	}
	counts, err := s.reconciler.Persist(ctx, records)
	if err != nil {
		return IngestResult{Report: report}, err
	}
	return IngestResult{Report: report, Counts: counts}, nil
}

// WaitIdle blocks until no ingestion run is active or ctx is done.
func (s *Service) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Lock()
		s.running.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit stores one user review for moderation.
func (s *Service) Submit(ctx context.Context, in source.SubmissionInput) (models.EnrichedReview, error) {
	sub, err := source.NewSubmission(in)
	if err != nil {
		return models.EnrichedReview{}, err
	}
	raws, err := sub.Produce(ctx)
	if err != nil {
		return models.EnrichedReview{}, err
	}
	records := []models.EnrichedReview{sub.Review()}
	if _, err := s.reconciler.Persist(ctx, records); err != nil {
		return models.EnrichedReview{}, err
	}
	s.log.Info("review submitted", "source", sub.Name(), "entity", raws[0].EntityName, "id", records[0].ID)
	return records[0], nil
}

// Moderate approves or rejects a stored review and returns it as stored.
func (s *Service) Moderate(ctx context.Context, id string, status models.ModerationStatus) (models.EnrichedReview, error) {
	if status != models.StatusApproved && status != models.StatusRejected {
		return models.EnrichedReview{}, fmt.Errorf("%w: status must be approved or rejected", models.ErrValidation)
	}
	if err := s.reconciler.SetStatus(ctx, id, status); err != nil {
		return models.EnrichedReview{}, err
	}
	return s.repo.Get(ctx, id)
}

// Aggregate reads through the cache. Cache failures degrade to the store.
// A view computed while the entity was invalidated is returned but not cached.
func (s *Service) Aggregate(ctx context.Context, entity string) (models.AggregateView, error) {
	view, ok, err := s.cache.Get(ctx, entity)
	if err != nil {
		s.log.Warn("cache read failed", "entity", entity, "error", err)
	}
	if ok {
		return view, nil
	}

	gen := s.cache.Generation(entity)
	view, err = s.repo.Aggregate(ctx, entity)
	if err != nil {
		return models.AggregateView{}, err
	}
	stored, err := s.cache.SetIfCurrent(ctx, view, gen)
	if err != nil {
		s.log.Warn("cache write failed", "entity", entity, "error", err)
	} else if !stored {
		s.log.Debug("aggregate invalidated during read, not cached", "entity", entity)
	}
	return view, nil
}

func (s *Service) Aggregates(ctx context.Context) ([]models.AggregateView, error) {
	return s.repo.Aggregates(ctx)
}

func (s *Service) Reviews(ctx context.Context, entity string, limit, offset int) ([]models.EnrichedReview, error) {
	return s.repo.ListApproved(ctx, entity, limit, offset)
}

func (s *Service) Pending(ctx context.Context, limit int) ([]models.EnrichedReview, error) {
	return s.repo.ListPending(ctx, limit)
}

// Synthesize writes a narrative over every approved review of entity.
func (s *Service) Synthesize(ctx context.Context, entity string) (string, error) {
	if s.synth == nil {
		return "", errors.New("synthesizer not configured")
	}
	texts, err := s.repo.ApprovedTexts(ctx, entity)
	if err != nil {
		return "", fmt.Errorf("load reviews: %w", err)
	}
	return s.synth.Synthesize(ctx, entity, texts)
}

type Health struct {
	Database string `json:"database"`
	Reviews  int    `json:"reviews"`
}

func (s *Service) Health(ctx context.Context) (Health, error) {
	if err := s.repo.Ping(ctx); err != nil {
		return Health{Database: "down"}, err
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return Health{Database: "up"}, err
	}
	return Health{Database: "up", Reviews: n}, nil
}
