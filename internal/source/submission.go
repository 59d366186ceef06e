package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

// SubmissionInput is what an end user posts: their own four ratings
// alongside the review text.
type SubmissionInput struct {
	EntityName         string `json:"entity_name"`
	Region             string `json:"region"`
	FreeText           string `json:"free_text"`
	AcademicsScore     int    `json:"academics_score"`
	CostScore          int    `json:"cost_score"`
	SocialScore        int    `json:"social_score"`
	AccommodationScore int    `json:"accommodation_score"`
}

// Submission wraps one validated user review.
type Submission struct {
	raw    models.RawReview
	scores models.AspectScores
}

// NewSubmission validates input. Failures wrap models.ErrValidation and name
// the offending field.
func NewSubmission(in SubmissionInput) (*Submission, error) {
	entity := strings.TrimSpace(in.EntityName)
	text := strings.TrimSpace(in.FreeText)
	if entity == "" {
		return nil, fmt.Errorf("%w: entity_name is required", models.ErrValidation)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: free_text is required", models.ErrValidation)
	}

	scores := models.AspectScores{
		Academics:     in.AcademicsScore,
		Cost:          in.CostScore,
		Social:        in.SocialScore,
		Accommodation: in.AccommodationScore,
	}
	fields := []struct {
		name string
		v    int
	}{
		{"academics_score", scores.Academics},
		{"cost_score", scores.Cost},
		{"social_score", scores.Social},
		{"accommodation_score", scores.Accommodation},
	}
	for _, f := range fields {
		if f.v < models.MinScore || f.v > models.MaxScore {
			return nil, fmt.Errorf("%w: %s must be between %d and %d", models.ErrValidation, f.name, models.MinScore, models.MaxScore)
		}
	}

	return &Submission{
		raw: models.RawReview{
			EntityName: entity,
			Region:     strings.TrimSpace(in.Region),
			FreeText:   text,
			SourceKind: models.SourceUserSubmitted,
		},
		scores: scores,
	}, nil
}

func (s *Submission) Name() string { return "submission" }

func (s *Submission) Produce(context.Context) ([]models.RawReview, error) {
	return []models.RawReview{s.raw}, nil
}

// Review builds the stored form: user scores, no AI fields, pending moderation.
func (s *Submission) Review() models.EnrichedReview {
	return models.EnrichedReview{
		EntityName:       s.raw.EntityName,
		Region:           s.raw.Region,
		SourceKind:       models.SourceUserSubmitted,
		FreeText:         s.raw.FreeText,
		DetectedLanguage: models.DetectLanguage(s.raw.FreeText),
		AspectScores:     s.scores,
		ReviewerType:     models.ReviewerUser,
		ModerationStatus: models.StatusPending,
	}
}
