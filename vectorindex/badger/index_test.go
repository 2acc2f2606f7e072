package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/vectorindex"
)

func setupTestIndex(t *testing.T) *Index {
	backend, err := OpenBackend(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	idx, err := NewIndex(backend, "units", 3)
	require.NoError(t, err)
	return idx
}

func TestIndexRoundTrip(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	refs, err := idx.Upsert(ctx, []vectorindex.Entry{
		{ExternalID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]string{"document_id": "d1", "text": "alpha"}},
		{ExternalID: "b", Vector: []float32{0, 1, 0}, Payload: map[string]string{"document_id": "d1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, refs)

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Ref)
	assert.Equal(t, "alpha", matches[0].Payload["text"])
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestIndexDimensionMismatch(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []vectorindex.Entry{{ExternalID: "bad", Vector: []float32{1}}})
	require.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1}, 5)
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestIndexDelete(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []vectorindex.Entry{
		{ExternalID: "a", Vector: []float32{1, 0, 0}},
		{ExternalID: "b", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, []string{"a", "missing"}))

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].Ref)
}

func TestIndexCollectionsAreIsolated(t *testing.T) {
	backend, err := OpenBackend(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	first, err := NewIndex(backend, "first", 2)
	require.NoError(t, err)
	second, err := NewIndex(backend, "second", 2)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = first.Upsert(ctx, []vectorindex.Entry{{ExternalID: "a", Vector: []float32{1, 0}}})
	require.NoError(t, err)

	matches, err := second.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCodecRoundTrip(t *testing.T) {
	entry := vectorindex.Entry{
		ExternalID: "x",
		Vector:     []float32{0.25, -1.5, 3},
		Payload:    map[string]string{"document_id": "d1", "sequence": "4"},
	}

	decoded, err := unmarshalEntry("x", marshalEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)

	_, err = unmarshalEntry("x", []byte{1, 2})
	require.ErrorIs(t, err, errTruncatedValue)
}
