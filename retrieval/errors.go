package retrieval

import "errors"

var (
	// ErrStoreRequired is returned when a nil store is provided.
	ErrStoreRequired = errors.New("store is required")

	// ErrIndexRequired is returned when a nil vector index is provided.
	ErrIndexRequired = errors.New("vector index is required")

	// ErrProviderRequired is returned when a nil AI provider is provided.
	ErrProviderRequired = errors.New("AI provider is required")
)
