package pipeline

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	dbtypes "github.com/nitesh/exchange_reviews/internal/db"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/internal/source"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

// Scorer turns one review text into sentiment, scores and a summary.
type Scorer interface {
	Score(ctx context.Context, text, entity string) (models.EnrichmentResult, error)
}

type Options struct {
	// Reprocess scores stored reviews again. Repeats within one run are
	// still scored once.
	Reprocess bool
}

// Report counts what happened to each raw review of a run.
type Report struct {
	Fetched    int `json:"fetched"`
	Dropped    int `json:"dropped"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Enriched   int `json:"enriched"`
}

// Pipeline is the sequential enrichment batch. Scorer calls are paced by a
// limiter; nothing here is persisted.
type Pipeline struct {
	scorer Scorer
	lookup ReviewLookup
	delay  time.Duration
	log    *logger.Logger
}

func New(scorer Scorer, lookup ReviewLookup, delay time.Duration, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{scorer: scorer, lookup: lookup, delay: delay, log: log.With("component", "pipeline")}
}

func (p *Pipeline) limiter() *rate.Limiter {
	if p.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.delay), 1)
}

// Run collects reviews from every source in order, filters and scores them,
// and returns the enriched records. Only context cancellation aborts a run;
// unavailable sources and scorer failures are logged and skipped.
func (p *Pipeline) Run(ctx context.Context, sources []source.Source, opts Options) ([]models.EnrichedReview, Report, error) {
	var (
		report Report
		raws   []models.RawReview
	)

	for _, src := range sources {
		batch, err := src.Produce(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, report, ctxErr
			}
			p.log.Warn("source unavailable", "source", src.Name(), "error", err)
			continue
		}
		p.log.Info("source read", "source", src.Name(), "count", len(batch))
		raws = append(raws, batch...)
	}
	report.Fetched = len(raws)

	gate := NewGate(p.lookup, opts.Reprocess, p.log)
	limiter := p.limiter()
	out := []models.EnrichedReview{}

	for _, raw := range raws {
		entity := strings.TrimSpace(raw.EntityName)
		text := strings.TrimSpace(raw.FreeText)
		if entity == "" || text == "" {
			report.Dropped++
			continue
		}
		raw.EntityName, raw.FreeText, raw.Region = entity, text, strings.TrimSpace(raw.Region)

		if gate.AlreadyProcessed(ctx, entity, text) {
			p.log.Debug("duplicate skipped", "entity", entity)
			report.Duplicates++
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, report, err
		}

		res, err := p.scorer.Score(ctx, text, entity)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, report, ctxErr
			}
			p.log.Warn("scoring failed, skipping review", "entity", entity, "error", err)
			report.Failed++
			continue
		}

		gate.MarkProcessed(entity, text)
		out = append(out, enrich(raw, res))
		report.Enriched++
	}

	p.log.Info("pipeline finished",
		"fetched", report.Fetched,
		"dropped", report.Dropped,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"enriched", report.Enriched,
	)
	return out, report, nil
}

func enrich(raw models.RawReview, res models.EnrichmentResult) models.EnrichedReview {
	return models.EnrichedReview{
		EntityName:       raw.EntityName,
		Region:           raw.Region,
		SourceKind:       raw.SourceKind,
		FreeText:         raw.FreeText,
		DetectedLanguage: models.DetectLanguage(raw.FreeText),
		AspectScores:     res.Scores,
		SentimentLabel:   dbtypes.NullText(res.Sentiment),
		SummaryText:      dbtypes.NullText(res.Summary),
		ReviewerType:     models.ReviewerAI,
		ModerationStatus: models.StatusApproved,
	}
}
