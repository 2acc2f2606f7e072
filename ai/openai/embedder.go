package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/insightdocs/ai"
	"github.com/poiesic/insightdocs/core"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder  embeddings.Embedder
	breaker   *gobreaker.CircuitBreaker
	dimension int
	logger    *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config, breaker *gobreaker.CircuitBreaker) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:  embedder,
		breaker:   breaker,
		dimension: config.EmbeddingDimensions,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config, newCapabilityBreaker("embedding"))
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Failures are reported as transient capability errors so the caller's
// retry policy applies; a wrong-sized result is a dimension mismatch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	result, err := e.breaker.Execute(func() (any, error) {
		return e.embedder.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, core.Transient(err)
	}

	vectors := result.([][]float32)
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, expected %d",
				core.ErrDimensionMismatch, i, len(v), e.dimension)
		}
	}
	return vectors, nil
}
