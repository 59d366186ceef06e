package source

import (
	"context"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

// Source produces raw reviews from one input. A missing or corrupt input
// yields an empty slice and an error wrapping models.ErrSourceUnavailable;
// callers log it and move on to the next source.
type Source interface {
	Name() string
	Produce(ctx context.Context) ([]models.RawReview, error)
}
