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


package badger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/vectorindex"
)

const entryPrefix = "vecent"

// Index is a durable vector collection on BadgerDB. Search is a
// brute-force scan over the collection, which is adequate up to a few
// hundred thousand entries.
type Index struct {
	backend    *Backend
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewIndex creates or reopens the named collection on the backend.
func NewIndex(backend *Backend, collection string, dimension int) (*Index, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is nil", core.ErrInvalidArgument)
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name is empty", core.ErrInvalidArgument)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrInvalidArgument, dimension)
	}
	return &Index{
		backend:    backend,
		collection: collection,
		dimension:  dimension,
		logger:     slog.Default().With("component", "badger-index", "collection", collection),
	}, nil
}

// makeEntryKey generates a key for an entry by external ID.
func (x *Index) makeEntryKey(externalID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", entryPrefix, x.collection, externalID))
}

// collectionPrefix is the shared key prefix of all entries in this collection.
func (x *Index) collectionPrefix() []byte {
	return []byte(fmt.Sprintf("%s:%s:", entryPrefix, x.collection))
}

// Upsert stores the entries in a single transaction.
func (x *Index) Upsert(ctx context.Context, entries []vectorindex.Entry) ([]string, error) {
	for i, e := range entries {
		if len(e.Vector) != x.dimension {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, expected %d",
				core.ErrDimensionMismatch, i, len(e.Vector), x.dimension)
		}
	}

	refs := make([]string, len(entries))
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		for i, e := range entries {
			if err := tx.Set(x.makeEntryKey(e.ExternalID), marshalEntry(e)); err != nil {
				return err
			}
			refs[i] = e.ExternalID
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// Search scans the collection and returns the topK most similar entries.
func (x *Index) Search(ctx context.Context, vector []float32, topK int) ([]vectorindex.Match, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d",
			core.ErrDimensionMismatch, len(vector), x.dimension)
	}
	if topK <= 0 {
		return []vectorindex.Match{}, nil
	}

	prefix := x.collectionPrefix()
	var matches []vectorindex.Match

	err := x.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			externalID := string(item.Key()[len(prefix):])

			err := item.Value(func(val []byte) error {
				entry, err := unmarshalEntry(externalID, val)
				if err != nil {
					return err
				}
				matches = append(matches, vectorindex.Match{
					Ref:     externalID,
					Score:   vectorindex.Cosine(entry.Vector, vector),
					Payload: entry.Payload,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

// Delete removes entries by reference. Missing references are ignored;
// badger treats deleting an absent key as a no-op.
func (x *Index) Delete(ctx context.Context, refs []string) error {
	return x.backend.WithTx(func(tx *badger.Txn) error {
		for _, ref := range refs {
			if err := tx.Delete(x.makeEntryKey(ref)); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int {
	return x.dimension
}

// Close is a no-op; the shared backend owns the database handle.
func (x *Index) Close() error {
	return nil
}
