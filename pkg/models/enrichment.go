package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MinScore = 1
	MaxScore = 5
)

// Validate rejects any score outside [MinScore, MaxScore]. Scores are never clamped.
func (s AspectScores) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"academics_score", s.Academics},
		{"cost_score", s.Cost},
		{"social_score", s.Social},
		{"accommodation_score", s.Accommodation},
	}
	for _, f := range fields {
		if f.value < MinScore || f.value > MaxScore {
			return fmt.Errorf("%s must be between %d and %d, got %d", f.name, MinScore, MaxScore, f.value)
		}
	}
	return nil
}

type enrichmentPayload struct {
	OverallSentiment   *string         `json:"overall_sentiment"`
	AcademicsScore     json.RawMessage `json:"academics_score"`
	CostScore          json.RawMessage `json:"cost_score"`
	SocialScore        json.RawMessage `json:"social_score"`
	AccommodationScore json.RawMessage `json:"accommodation_score"`
	ThemeSummary       *string         `json:"theme_summary"`
}

// ParseEnrichment decodes a structured scorer response. Acceptance is
// all-or-nothing: a missing key, an unknown sentiment, a fractional or
// out-of-range score, or an empty summary fails the whole result.
func ParseEnrichment(raw []byte) (EnrichmentResult, error) {
	var p enrichmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return EnrichmentResult{}, fmt.Errorf("%w: decode structured output: %v", ErrScoringFailed, err)
	}

	if p.OverallSentiment == nil {
		return EnrichmentResult{}, fmt.Errorf("%w: missing overall_sentiment", ErrScoringFailed)
	}
	sentiment := Sentiment(strings.TrimSpace(*p.OverallSentiment))
	if !sentiment.Valid() {
		return EnrichmentResult{}, fmt.Errorf("%w: unknown sentiment %q", ErrScoringFailed, *p.OverallSentiment)
	}

	var scores AspectScores
	targets := []struct {
		name string
		src  json.RawMessage
		dst  *int
	}{
		{"academics_score", p.AcademicsScore, &scores.Academics},
		{"cost_score", p.CostScore, &scores.Cost},
		{"social_score", p.SocialScore, &scores.Social},
		{"accommodation_score", p.AccommodationScore, &scores.Accommodation},
	}
	for _, t := range targets {
		n, err := parseScore(t.src)
		if err != nil {
			return EnrichmentResult{}, fmt.Errorf("%w: %s %v", ErrScoringFailed, t.name, err)
		}
		*t.dst = n
	}
	if err := scores.Validate(); err != nil {
		return EnrichmentResult{}, fmt.Errorf("%w: %v", ErrScoringFailed, err)
	}

	if p.ThemeSummary == nil || strings.TrimSpace(*p.ThemeSummary) == "" {
		return EnrichmentResult{}, fmt.Errorf("%w: missing theme_summary", ErrScoringFailed)
	}

	return EnrichmentResult{
		Sentiment: sentiment,
		Scores:    scores,
		Summary:   strings.TrimSpace(*p.ThemeSummary),
	}, nil
}

// parseScore accepts only a bare JSON integer. Quoted numbers and fractions
// are rejected.
func parseScore(raw json.RawMessage) (int, error) {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return 0, fmt.Errorf("is missing")
	}
	if v[0] != '-' && (v[0] < '0' || v[0] > '9') {
		return 0, fmt.Errorf("is not a number: %s", v)
	}
	n, err := json.Number(v).Int64()
	if err != nil {
		return 0, fmt.Errorf("is not an integer: %s", v)
	}
	return int(n), nil
}
