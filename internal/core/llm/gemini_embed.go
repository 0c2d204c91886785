package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/careatlas/evidence/internal/core"
)

// RetryPolicy bounds the embedding retry loop. Retrying forever on any
// error masks permanent failures, so attempts are capped and only transient
// error classes are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is tuned for the embedding service's rate limits.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond}

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
	retry     RetryPolicy
}

var _ core.Embedder = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int, retry RetryPolicy) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim, retry: retry}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedDocument embeds text for indexing (RETRIEVAL_DOCUMENT task type).
func (g *GeminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, genai.TaskTypeRetrievalDocument)
}

// EmbedQuery embeds a search query (RETRIEVAL_QUERY task type).
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, genai.TaskTypeRetrievalQuery)
}

func (g *GeminiEmbedder) embed(ctx context.Context, text string, task genai.TaskType) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = task

	var lastErr error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.retry.BaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			lastErr = err
			if !isTransient(err) {
				return nil, fmt.Errorf("gemini embed: %w", err)
			}
			continue
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, errors.New("gemini embed: empty embedding in response")
		}
		vec := resp.Embedding.Values
		if g.dim > 0 && len(vec) != g.dim {
			return nil, fmt.Errorf("gemini embed: dimension mismatch: got %d want %d", len(vec), g.dim)
		}
		return vec, nil
	}
	return nil, fmt.Errorf("gemini embed: %d attempts exhausted: %w", g.retry.MaxAttempts, lastErr)
}

// isTransient reports whether an error is worth retrying: rate limits,
// server-side failures and network timeouts. Auth and malformed-input
// errors are permanent and surface immediately.
func isTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
