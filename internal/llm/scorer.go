package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

// scoreOutput mirrors the structured output requested from the model.
type scoreOutput struct {
	OverallSentiment   string `json:"overall_sentiment" jsonschema:"enum=Positive,enum=Neutral,enum=Negative,description=Overall sentiment of the review"`
	AcademicsScore     int    `json:"academics_score" jsonschema:"minimum=1,maximum=5,description=Score from 1 (poor) to 5 (excellent)"`
	CostScore          int    `json:"cost_score" jsonschema:"minimum=1,maximum=5,description=Score from 1 (expensive) to 5 (cheap)"`
	SocialScore        int    `json:"social_score" jsonschema:"minimum=1,maximum=5,description=Score from 1 (poor) to 5 (excellent)"`
	AccommodationScore int    `json:"accommodation_score" jsonschema:"minimum=1,maximum=5,description=Score from 1 (difficult) to 5 (easy and good)"`
	ThemeSummary       string `json:"theme_summary" jsonschema:"description=A 1-2 sentence English summary of the main point"`
}

var scoreSchema = generateSchema[scoreOutput]()

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func scorePrompt(text, entity string) string {
	return fmt.Sprintf(`You are an expert student advisor analyzing feedback for %s.
Analyze the following review, which may be in English or Arabic.
Score each of the four categories from 1 (worst) to 5 (best) based only on the provided text.
Translate the main point into a concise English summary.

Review Text: %q`, entity, text)
}

// Score asks the model for sentiment, the four aspect scores and a short
// summary of one review. Every failure wraps models.ErrScoringFailed; the
// client does not retry beyond the configured SDK retries.
func (c *Client) Score(ctx context.Context, text, entity string) (models.EnrichmentResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.EnrichmentResult{}, fmt.Errorf("%w: empty review text", models.ErrScoringFailed)
	}
	if strings.TrimSpace(entity) == "" {
		return models.EnrichmentResult{}, fmt.Errorf("%w: empty entity name", models.ErrScoringFailed)
	}

	content, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(scorePrompt(text, entity)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "review_analysis",
					Description: openai.String("Aspect scores and summary of one exchange review"),
					Schema:      scoreSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return models.EnrichmentResult{}, err
	}
	return models.ParseEnrichment([]byte(content))
}
