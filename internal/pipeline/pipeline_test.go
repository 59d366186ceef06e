package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/internal/source"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

type staticSource struct {
	name string
	rows []models.RawReview
	err  error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Produce(context.Context) ([]models.RawReview, error) {
	if s.err != nil {
		return []models.RawReview{}, s.err
	}
	return s.rows, nil
}

type fakeLookup struct {
	stored map[string]bool
	err    error
}

func (f *fakeLookup) Exists(_ context.Context, entity, text string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.stored[entity+"|"+text], nil
}

type fakeScorer struct {
	calls []string
	fail  map[string]bool
	at    []time.Time
}

func (f *fakeScorer) Score(_ context.Context, text, entity string) (models.EnrichmentResult, error) {
	f.calls = append(f.calls, text)
	f.at = append(f.at, time.Now())
	if f.fail[text] {
		return models.EnrichmentResult{}, fmt.Errorf("%w: quota", models.ErrScoringFailed)
	}
	return models.EnrichmentResult{
		Sentiment: models.SentimentPositive,
		Scores:    models.AspectScores{Academics: 5, Cost: 2, Social: 4, Accommodation: 3},
		Summary:   "summary of " + text,
	}, nil
}

func raw(entity, text string) models.RawReview {
	return models.RawReview{EntityName: entity, FreeText: text, SourceKind: models.SourceSurvey}
}

func TestRunSkipsDroppedDuplicatesAndFailures(t *testing.T) {
	lookup := &fakeLookup{stored: map[string]bool{"Alpha U|already stored": true}}
	scorer := &fakeScorer{fail: map[string]bool{"scorer breaks": true}}
	p := New(scorer, lookup, 0, logger.Nop())

	sources := []source.Source{
		staticSource{name: "tabular", rows: []models.RawReview{
			raw("Alpha U", "Great academics, costly rent."),
			raw("Alpha U", "already stored"),
			raw("Alpha U", "   "),
			raw("", "orphan text"),
		}},
		staticSource{name: "markup", rows: []models.RawReview{
			raw("Beta U", "scorer breaks"),
			raw("Beta U", "الحياة الاجتماعية رائعة"),
			raw("Alpha U", "Great academics, costly rent."),
		}},
	}

	out, report, err := p.Run(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := Report{Fetched: 7, Dropped: 2, Duplicates: 2, Failed: 1, Enriched: 2}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
	if len(scorer.calls) != 3 {
		t.Fatalf("scorer calls = %v, want 3", scorer.calls)
	}
	if len(out) != 2 {
		t.Fatalf("records = %d, want 2", len(out))
	}

	first := out[0]
	if first.EntityName != "Alpha U" || first.ReviewerType != models.ReviewerAI || first.ModerationStatus != models.StatusApproved {
		t.Fatalf("record 0 = %+v", first)
	}
	if first.DetectedLanguage != models.LanguageEnglish || first.SentimentLabel != "Positive" {
		t.Fatalf("record 0 enrichment = %+v", first)
	}
	if out[1].DetectedLanguage != models.LanguageArabic {
		t.Fatalf("record 1 language = %q, want ar", out[1].DetectedLanguage)
	}
}

func TestRunIsIdempotentAgainstStore(t *testing.T) {
	lookup := &fakeLookup{stored: map[string]bool{"Alpha U|one": true, "Alpha U|two": true}}
	scorer := &fakeScorer{}
	p := New(scorer, lookup, 0, logger.Nop())

	src := staticSource{name: "tabular", rows: []models.RawReview{raw("Alpha U", "one"), raw("Alpha U", "two")}}
	out, report, err := p.Run(context.Background(), []source.Source{src}, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(out) != 0 || len(scorer.calls) != 0 {
		t.Fatalf("second run scored %d reviews", len(scorer.calls))
	}
	if report.Duplicates != 2 {
		t.Fatalf("duplicates = %d, want 2", report.Duplicates)
	}

	out, _, err = p.Run(context.Background(), []source.Source{src}, Options{Reprocess: true})
	if err != nil {
		t.Fatalf("Run(reprocess) error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("reprocess records = %d, want 2", len(out))
	}
}

func TestRunLookupFailureSkips(t *testing.T) {
	scorer := &fakeScorer{}
	p := New(scorer, &fakeLookup{err: errors.New("db down")}, 0, logger.Nop())

	src := staticSource{name: "tabular", rows: []models.RawReview{raw("Alpha U", "one")}}
	out, report, err := p.Run(context.Background(), []source.Source{src}, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(out) != 0 || len(scorer.calls) != 0 || report.Duplicates != 1 {
		t.Fatalf("lookup failure should skip: out=%d calls=%d report=%+v", len(out), len(scorer.calls), report)
	}
}

func TestRunContinuesPastUnavailableSource(t *testing.T) {
	scorer := &fakeScorer{}
	p := New(scorer, &fakeLookup{}, 0, logger.Nop())

	sources := []source.Source{
		staticSource{name: "markup", err: models.ErrSourceUnavailable},
		staticSource{name: "tabular", rows: []models.RawReview{raw("Alpha U", "one")}},
	}
	out, _, err := p.Run(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("records = %d, want 1", len(out))
	}
}

func TestRunPacesScorerCalls(t *testing.T) {
	const delay = 40 * time.Millisecond
	scorer := &fakeScorer{}
	p := New(scorer, &fakeLookup{}, delay, logger.Nop())

	src := staticSource{name: "tabular", rows: []models.RawReview{raw("A", "1"), raw("A", "2"), raw("A", "3")}}
	if _, _, err := p.Run(context.Background(), []source.Source{src}, Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(scorer.at) != 3 {
		t.Fatalf("calls = %d, want 3", len(scorer.at))
	}
	for i := 1; i < len(scorer.at); i++ {
		// small slack for timer granularity
		if gap := scorer.at[i].Sub(scorer.at[i-1]); gap < delay-5*time.Millisecond {
			t.Fatalf("gap %d = %s, want >= %s", i, gap, delay)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	scorer := &fakeScorer{}
	p := New(scorer, &fakeLookup{}, time.Hour, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := staticSource{name: "tabular", rows: []models.RawReview{raw("A", "1"), raw("A", "2")}}
	_, _, err := p.Run(ctx, []source.Source{src}, Options{})
	if err == nil {
		t.Fatalf("Run() on cancelled context returned nil error")
	}
	if len(scorer.calls) != 0 {
		t.Fatalf("scorer called %d times after cancel", len(scorer.calls))
	}
}

func TestGateRemembersRun(t *testing.T) {
	g := NewGate(&fakeLookup{}, false, nil)
	ctx := context.Background()

	if g.AlreadyProcessed(ctx, "Alpha U", "text") {
		t.Fatalf("first sighting reported as processed")
	}
	if g.AlreadyProcessed(ctx, "Alpha U", "text") {
		t.Fatalf("unscored text reported as processed")
	}
	g.MarkProcessed("Alpha U", "text")
	if !g.AlreadyProcessed(ctx, "Alpha U", "text") {
		t.Fatalf("repeat within run not caught")
	}
	if g.AlreadyProcessed(ctx, "Beta U", "text") {
		t.Fatalf("same text for another entity treated as duplicate")
	}
	if !g.AlreadyProcessed(ctx, "Alpha U", "") {
		t.Fatalf("empty text must count as processed")
	}
}

func TestGateReprocessIgnoresStore(t *testing.T) {
	lookup := &fakeLookup{stored: map[string]bool{"Alpha U|text": true}}
	ctx := context.Background()

	if !NewGate(lookup, false, nil).AlreadyProcessed(ctx, "Alpha U", "text") {
		t.Fatalf("stored text not caught")
	}

	g := NewGate(lookup, true, nil)
	if g.AlreadyProcessed(ctx, "Alpha U", "text") {
		t.Fatalf("reprocess gate consulted the store")
	}
	g.MarkProcessed("Alpha U", "text")
	if !g.AlreadyProcessed(ctx, "Alpha U", "text") {
		t.Fatalf("reprocess gate let a repeat within the run through")
	}
}

func TestRunRetriesCopyAfterFailedScore(t *testing.T) {
	scorer := &flakyScorer{failFirst: 1}
	p := New(scorer, &fakeLookup{}, 0, logger.Nop())

	src := staticSource{name: "tabular", rows: []models.RawReview{raw("Alpha U", "same text"), raw("Alpha U", "same text")}}
	out, report, err := p.Run(context.Background(), []source.Source{src}, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := Report{Fetched: 2, Failed: 1, Enriched: 1}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
	if len(out) != 1 || scorer.calls != 2 {
		t.Fatalf("records = %d, scorer calls = %d, want 1 and 2", len(out), scorer.calls)
	}
}

func TestRunReprocessCollapsesRepeats(t *testing.T) {
	lookup := &fakeLookup{stored: map[string]bool{"Alpha U|same text": true}}
	scorer := &fakeScorer{}
	p := New(scorer, lookup, 0, logger.Nop())

	src := staticSource{name: "tabular", rows: []models.RawReview{
		raw("Alpha U", "same text"),
		raw("Alpha U", "same text"),
		raw("Alpha U", "other text"),
	}}
	out, report, err := p.Run(context.Background(), []source.Source{src}, Options{Reprocess: true})
	if err != nil {
		t.Fatalf("Run(reprocess) error = %v", err)
	}

	want := Report{Fetched: 3, Duplicates: 1, Enriched: 2}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
	if len(out) != 2 || len(scorer.calls) != 2 {
		t.Fatalf("records = %d, scorer calls = %v", len(out), scorer.calls)
	}
}

// flakyScorer fails its first failFirst calls.
type flakyScorer struct {
	failFirst int
	calls     int
}

func (f *flakyScorer) Score(_ context.Context, text, _ string) (models.EnrichmentResult, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return models.EnrichmentResult{}, fmt.Errorf("%w: timeout", models.ErrScoringFailed)
	}
	return models.EnrichmentResult{
		Sentiment: models.SentimentNeutral,
		Scores:    models.AspectScores{Academics: 3, Cost: 3, Social: 3, Accommodation: 3},
		Summary:   "summary of " + text,
	}, nil
}
