package models

import (
	"time"

	dbtypes "github.com/nitesh/exchange_reviews/internal/db"
)

// SourceKind identifies where a raw review came from.
type SourceKind string

const (
	SourceSurvey        SourceKind = "survey"
	SourceScraped       SourceKind = "scraped"
	SourceUserSubmitted SourceKind = "user_submitted"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceSurvey, SourceScraped, SourceUserSubmitted:
		return true
	}
	return false
}

// Sentiment is the overall label assigned by the scorer.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// ReviewerType records the provenance of a stored review.
type ReviewerType string

const (
	ReviewerAI   ReviewerType = "ai_processed"
	ReviewerUser ReviewerType = "user_submitted"
)

type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
	StatusRejected ModerationStatus = "rejected"
)

func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// RawReview is the canonical shape every source adapter produces.
// It is never persisted as-is.
type RawReview struct {
	EntityName string     `json:"entity_name"`
	Region     string     `json:"region,omitempty"`
	SourceKind SourceKind `json:"source_kind"`
	FreeText   string     `json:"free_text"`
}

// AspectScores holds the four 1-5 ratings of an exchange experience.
type AspectScores struct {
	Academics     int `db:"academics_score" json:"academics_score"`
	Cost          int `db:"cost_score" json:"cost_score"`
	Social        int `db:"social_score" json:"social_score"`
	Accommodation int `db:"accommodation_score" json:"accommodation_score"`
}

// EnrichmentResult is the validated output of one scorer call.
type EnrichmentResult struct {
	Sentiment Sentiment
	Scores    AspectScores
	Summary   string
}

// EnrichedReview is the unit of storage. ID and CreatedAt are assigned by the store.
type EnrichedReview struct {
	ID               string           `db:"id" json:"id"`
	EntityName       string           `db:"entity_name" json:"entity_name"`
	Region           string           `db:"region" json:"region"`
	SourceKind       SourceKind       `db:"source_kind" json:"source_kind"`
	FreeText         string           `db:"free_text" json:"free_text"`
	DetectedLanguage Language         `db:"detected_language" json:"detected_language"`
	SentimentLabel   dbtypes.NullText `db:"sentiment_label" json:"sentiment_label"`
	SummaryText      dbtypes.NullText `db:"summary_text" json:"summary_text"`
	ReviewerType     ReviewerType     `db:"reviewer_type" json:"reviewer_type"`
	ModerationStatus ModerationStatus `db:"moderation_status" json:"moderation_status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	AspectScores
}

// AggregateView summarises the approved reviews of one entity.
// It is derived on demand and only ever cached, never stored.
type AggregateView struct {
	EntityName            string    `json:"entity_name"`
	Region                string    `json:"region"`
	ReviewCount           int       `json:"review_count"`
	AcademicsMean         float64   `json:"academics_mean"`
	CostMean              float64   `json:"cost_mean"`
	SocialMean            float64   `json:"social_mean"`
	AccommodationMean     float64   `json:"accommodation_mean"`
	OverallScore          float64   `json:"overall_score"`
	RepresentativeSummary string    `json:"representative_summary,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}
