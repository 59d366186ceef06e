package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nitesh/exchange_reviews/internal/config"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		}},
	}
}

// fakeLLM replies with content to every chat completion and records the last request.
func fakeLLM(t *testing.T, status int, content string) (*Client, *atomic.Int32, *chatRequest) {
	t.Helper()
	var calls atomic.Int32
	last := &chatRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatCompletion(content))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.ScorerConfig{
		Endpoint:       srv.URL,
		Model:          "score-model",
		SynthesisModel: "synth-model",
		APIKey:         "test-key",
		Timeout:        5 * time.Second,
	}, srv.Client(), logger.Nop())
	return c, &calls, last
}

func TestScoreValidResponse(t *testing.T) {
	c, calls, last := fakeLLM(t, http.StatusOK, `{"overall_sentiment":"Positive","academics_score":5,"cost_score":2,"social_score":4,"accommodation_score":3,"theme_summary":"Strong academics but costly."}`)

	res, err := c.Score(context.Background(), "Great academics, costly rent.", "Alpha U")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.Sentiment != models.SentimentPositive {
		t.Fatalf("sentiment = %q", res.Sentiment)
	}
	want := models.AspectScores{Academics: 5, Cost: 2, Social: 4, Accommodation: 3}
	if res.Scores != want {
		t.Fatalf("scores = %+v, want %+v", res.Scores, want)
	}
	if res.Summary != "Strong academics but costly." {
		t.Fatalf("summary = %q", res.Summary)
	}

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if last.Model != "score-model" {
		t.Fatalf("model = %q", last.Model)
	}
	if last.ResponseFormat == nil || last.ResponseFormat.Type != "json_schema" {
		t.Fatalf("response_format = %+v", last.ResponseFormat)
	}
	if len(last.Messages) != 1 || !strings.Contains(last.Messages[0].Content, "Alpha U") {
		t.Fatalf("prompt does not name the entity: %+v", last.Messages)
	}
}

func TestScoreRejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"out of range", `{"overall_sentiment":"Positive","academics_score":7,"cost_score":2,"social_score":4,"accommodation_score":3,"theme_summary":"x"}`},
		{"missing key", `{"overall_sentiment":"Positive","academics_score":4,"cost_score":2,"social_score":4,"theme_summary":"x"}`},
		{"bad sentiment", `{"overall_sentiment":"Mixed","academics_score":4,"cost_score":2,"social_score":4,"accommodation_score":3,"theme_summary":"x"}`},
		{"fractional", `{"overall_sentiment":"Neutral","academics_score":3.5,"cost_score":2,"social_score":4,"accommodation_score":3,"theme_summary":"x"}`},
		{"not json", `I think it is good`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _, _ := fakeLLM(t, http.StatusOK, tc.content)
			_, err := c.Score(context.Background(), "some review", "Alpha U")
			if !errors.Is(err, models.ErrScoringFailed) {
				t.Fatalf("Score() error = %v, want ErrScoringFailed", err)
			}
		})
	}
}

func TestScoreServiceError(t *testing.T) {
	c, calls, _ := fakeLLM(t, http.StatusTooManyRequests, "")

	_, err := c.Score(context.Background(), "some review", "Alpha U")
	if !errors.Is(err, models.ErrScoringFailed) {
		t.Fatalf("Score() error = %v, want ErrScoringFailed", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want exactly 1 (no retries)", calls.Load())
	}
}

func TestScoreRejectsEmptyInput(t *testing.T) {
	c, calls, _ := fakeLLM(t, http.StatusOK, "{}")

	if _, err := c.Score(context.Background(), "   ", "Alpha U"); !errors.Is(err, models.ErrScoringFailed) {
		t.Fatalf("Score(empty text) error = %v", err)
	}
	if _, err := c.Score(context.Background(), "text", ""); !errors.Is(err, models.ErrScoringFailed) {
		t.Fatalf("Score(empty entity) error = %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", calls.Load())
	}
}

func TestSynthesize(t *testing.T) {
	c, _, last := fakeLLM(t, http.StatusOK, "A balanced narrative.")

	out, err := c.Synthesize(context.Background(), "Alpha U", []string{"first review", "second review"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if out != "A balanced narrative." {
		t.Fatalf("Synthesize() = %q", out)
	}
	if last.Model != "synth-model" {
		t.Fatalf("model = %q", last.Model)
	}
	if !strings.Contains(last.Messages[0].Content, "first review\n---\nsecond review") {
		t.Fatalf("reviews not joined: %q", last.Messages[0].Content)
	}
}

func TestSynthesizeNoReviews(t *testing.T) {
	c, calls, _ := fakeLLM(t, http.StatusOK, "unused")

	_, err := c.Synthesize(context.Background(), "Alpha U", nil)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Synthesize() error = %v, want ErrNotFound", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", calls.Load())
	}
}
