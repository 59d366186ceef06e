package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

const reviewSeparator = "\n---\n"

func synthesisPrompt(entity, feedback string) string {
	return fmt.Sprintf(`You are the "ExchangeCompass Advisor". Write a single balanced narrative review (about 200 words) for the university "%s".

The review must cover Academics, Cost of Living, Social Scene and Accommodation.

Synthesize it from the following raw student feedback, which may contain both English and Arabic:

--- START FEEDBACK ---
%s
--- END FEEDBACK ---

Focus on the general consensus and note any major conflicts in opinion. Answer with one narrative paragraph.`, entity, feedback)
}

// Synthesize writes one narrative over every review text of an entity.
func (c *Client) Synthesize(ctx context.Context, entity string, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("no reviews for %s: %w", entity, models.ErrNotFound)
	}
	return c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.synthesisModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(synthesisPrompt(entity, strings.Join(texts, reviewSeparator))),
		},
	})
}
