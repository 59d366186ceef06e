package pipeline

import (
	"context"
	"strings"

	"github.com/nitesh/exchange_reviews/internal/logger"
)

// ReviewLookup answers whether a review text is already stored for an entity.
type ReviewLookup interface {
	Exists(ctx context.Context, entity, text string) (bool, error)
}

// Gate decides whether a raw review still needs enrichment. It checks the
// store and also remembers what was scored during the current run. With
// reprocess set the store is not consulted but repeats within the run still
// collapse.
type Gate struct {
	lookup    ReviewLookup
	reprocess bool
	seen      map[gateKey]struct{}
	log       *logger.Logger
}

type gateKey struct {
	entity string
	text   string
}

func NewGate(lookup ReviewLookup, reprocess bool, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{lookup: lookup, reprocess: reprocess, seen: map[gateKey]struct{}{}, log: log}
}

// AlreadyProcessed reports true for empty input, for repeats of text scored
// earlier in this run, for text already stored for the entity, and whenever
// the lookup fails.
func (g *Gate) AlreadyProcessed(ctx context.Context, entity, text string) bool {
	if strings.TrimSpace(entity) == "" || strings.TrimSpace(text) == "" {
		return true
	}
	if _, ok := g.seen[gateKey{entity: entity, text: text}]; ok {
		return true
	}
	if g.reprocess {
		return false
	}

	exists, err := g.lookup.Exists(ctx, entity, text)
	if err != nil {
		g.log.Warn("dedup lookup failed, skipping review", "entity", entity, "error", err)
		return true
	}
	return exists
}

// MarkProcessed records a successfully scored review so later copies in the
// same run are skipped. Failed attempts are not marked.
func (g *Gate) MarkProcessed(entity, text string) {
	g.seen[gateKey{entity: entity, text: text}] = struct{}{}
}
