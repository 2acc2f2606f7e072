// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vectorindex

import (
	"context"
	"math"
)

// Entry is a vector to be stored with its caller-supplied identity and
// payload. The ExternalID doubles as the stored reference, so upserting
// the same entry twice overwrites instead of duplicating.
type Entry struct {
	ExternalID string
	Vector     []float32
	Payload    map[string]string
}

// Match is one nearest-neighbor search result. Score is a similarity
// measure: higher is more similar, and scores from one Search call are
// mutually comparable.
type Match struct {
	Ref     string
	Score   float32
	Payload map[string]string
}

// Index stores fixed-dimension embeddings and answers nearest-neighbor
// queries. An Index instance is bound to one collection and one
// dimension at construction; the dimension must equal the embedding
// provider's declared output dimension, and a mismatch is a startup
// configuration error.
//
// Implementations must be safe for concurrent use.
type Index interface {
	// Upsert stores the entries and returns their references in input
	// order. Fails with core.ErrDimensionMismatch if any vector's
	// length differs from the collection dimension.
	Upsert(ctx context.Context, entries []Entry) ([]string, error)

	// Search returns up to topK entries nearest to vector, best match
	// first. topK is capped to the collection size.
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Delete removes entries by reference. Deleting a non-existent
	// reference is a no-op, not an error.
	Delete(ctx context.Context, refs []string) error

	// Dimension returns the collection's configured vector dimension.
	Dimension() int

	// Close releases resources held by the index.
	Close() error
}

// Cosine computes cosine similarity between two vectors of equal length.
// Returns 0 for zero vectors.
func Cosine(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}
