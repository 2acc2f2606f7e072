package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/vectorindex"
)

// Index is an in-memory flat index using brute-force cosine similarity.
// It is the reference implementation used by tests and local setups.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]vectorindex.Entry
	order     []string // insertion order, for deterministic iteration
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrInvalidArgument, dimension)
	}
	return &Index{
		dimension: dimension,
		entries:   make(map[string]vectorindex.Entry),
	}, nil
}

// Upsert stores the entries, overwriting any with the same ExternalID.
func (x *Index) Upsert(ctx context.Context, entries []vectorindex.Entry) ([]string, error) {
	for i, e := range entries {
		if len(e.Vector) != x.dimension {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, expected %d",
				core.ErrDimensionMismatch, i, len(e.Vector), x.dimension)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	refs := make([]string, len(entries))
	for i, e := range entries {
		if _, exists := x.entries[e.ExternalID]; !exists {
			x.order = append(x.order, e.ExternalID)
		}
		x.entries[e.ExternalID] = e
		refs[i] = e.ExternalID
	}
	return refs, nil
}

// Search scans all entries and returns the topK most similar.
func (x *Index) Search(ctx context.Context, vector []float32, topK int) ([]vectorindex.Match, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d",
			core.ErrDimensionMismatch, len(vector), x.dimension)
	}
	if topK <= 0 {
		return []vectorindex.Match{}, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	matches := make([]vectorindex.Match, 0, len(x.order))
	for _, ref := range x.order {
		e := x.entries[ref]
		matches = append(matches, vectorindex.Match{
			Ref:     ref,
			Score:   vectorindex.Cosine(e.Vector, vector),
			Payload: e.Payload,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

// Delete removes entries by reference. Missing references are ignored.
func (x *Index) Delete(ctx context.Context, refs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, ref := range refs {
		if _, ok := x.entries[ref]; !ok {
			continue
		}
		delete(x.entries, ref)
		for i, o := range x.order {
			if o == ref {
				x.order = append(x.order[:i], x.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int {
	return x.dimension
}

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Close is a no-op for the in-memory index.
func (x *Index) Close() error {
	return nil
}
