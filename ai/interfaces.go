package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector has the provider's declared dimension.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings
	// in a batch. The returned slice contains embeddings in the same
	// order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer generates text from a prompt.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete generates a completion for the prompt, bounded by
	// maxTokens. Returns an error if generation fails.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Provider aggregates the generation capability consumed by ingestion
// and retrieval: text embedding and text completion. A provider declares
// its embedding model and output dimension at configuration time; the
// vector index a provider feeds must be configured with the same
// dimension, and a mismatch is a startup configuration error.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Completer returns the text completion service.
	// The returned Completer is safe for concurrent use.
	Completer() Completer

	// EmbeddingModel returns the embedding model identifier.
	EmbeddingModel() string

	// Dimension returns the embedding output dimensionality.
	Dimension() int

	// Close releases resources held by the provider and its services.
	Close() error
}
