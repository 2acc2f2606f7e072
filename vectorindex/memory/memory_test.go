package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/vectorindex"
)

func TestNewRejectsBadDimension(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestUpsertAndSearch(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)
	ctx := context.Background()

	refs, err := idx.Upsert(ctx, []vectorindex.Entry{
		{ExternalID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]string{"doc": "one"}},
		{ExternalID: "b", Vector: []float32{0, 1, 0}},
		{ExternalID: "c", Vector: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, refs)

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Ref, "exact match first")
	assert.Equal(t, "c", matches[1].Ref)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "one", matches[0].Payload["doc"])
}

func TestSearchTopKCappedToSize(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = idx.Upsert(ctx, []vectorindex.Entry{
		{ExternalID: "a", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)

	matches, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)

	_, err = idx.Upsert(context.Background(), []vectorindex.Entry{
		{ExternalID: "bad", Vector: []float32{1, 0}},
	})
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Zero(t, idx.Len(), "nothing stored on mismatch")
}

func TestUpsertIsIdempotentPerExternalID(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	entry := vectorindex.Entry{ExternalID: "a", Vector: []float32{1, 0}}
	_, err = idx.Upsert(ctx, []vectorindex.Entry{entry})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, []vectorindex.Entry{entry})
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Len())
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = idx.Upsert(ctx, []vectorindex.Entry{
		{ExternalID: "a", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, []string{"a", "never-existed"}))
	assert.Zero(t, idx.Len())

	require.NoError(t, idx.Delete(ctx, []string{"a"}), "double delete is fine")
}
