package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nitesh/exchange_reviews/internal/config"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

// Client talks to an OpenAI-compatible chat completions API. The default
// endpoint is Gemini's compatibility layer.
type Client struct {
	api            openai.Client
	model          string
	synthesisModel string
	timeout        time.Duration
	log            *logger.Logger
}

// NewClient builds a client from the scorer config. If httpClient is nil the
// SDK default is used.
func NewClient(cfg config.ScorerConfig, httpClient *http.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	synthesisModel := cfg.SynthesisModel
	if synthesisModel == "" {
		synthesisModel = cfg.Model
	}
	return &Client{
		api:            openai.NewClient(opts...),
		model:          cfg.Model,
		synthesisModel: synthesisModel,
		timeout:        cfg.Timeout,
		log:            log.With("component", "llm"),
	}
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	chat, err := c.api.Chat.Completions.New(ctx, params)
	c.log.Debug("llm request", "model", params.Model, "latency", time.Since(start), "error", err)
	if err != nil {
		return "", fmt.Errorf("%w: request: %v", models.ErrScoringFailed, err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", models.ErrScoringFailed)
	}
	msg := chat.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("%w: refused: %s", models.ErrScoringFailed, msg.Refusal)
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", models.ErrScoringFailed)
	}
	return content, nil
}
