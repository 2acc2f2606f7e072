package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aimock "github.com/poiesic/insightdocs/ai/mock"
	"github.com/poiesic/insightdocs/core"
	memstore "github.com/poiesic/insightdocs/storage/memory"
	"github.com/poiesic/insightdocs/vectorindex"
	vecmem "github.com/poiesic/insightdocs/vectorindex/memory"
)

const testDimension = 8

type fixture struct {
	service  *Service
	store    *memstore.Store
	index    *vecmem.Index
	provider *aimock.Provider
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	store := memstore.New()
	index, err := vecmem.New(testDimension)
	require.NoError(t, err)
	provider := aimock.NewProvider(testDimension)

	service, err := NewService(store, index, provider, opts...)
	require.NoError(t, err)
	return &fixture{service: service, store: store, index: index, provider: provider}
}

// indexUnit registers a document and one indexed unit for it.
func (f *fixture) indexUnit(t *testing.T, filename, text string) core.ID {
	t.Helper()
	ctx := context.Background()

	doc := &core.Document{
		Id:       core.NewID(),
		Filename: filename,
		Status:   core.StatusCompleted,
	}
	require.NoError(t, f.store.CreateDocument(ctx, doc))

	_, err := f.index.Upsert(ctx, []vectorindex.Entry{{
		ExternalID: core.VectorRefFromContent(doc.Id, 0, text),
		Vector:     aimock.DeterministicVector(text, testDimension),
		Payload: map[string]string{
			"document_id":    string(doc.Id),
			"sequence_index": "0",
			"text":           text,
		},
	}})
	require.NoError(t, err)
	return doc.Id
}

func TestAnswerReturnsGroundedResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.indexUnit(t, "handbook.txt", "Employees accrue twenty vacation days per year.")
	f.indexUnit(t, "policy.txt", "Remote work requires manager approval.")

	resp, err := f.service.Answer(ctx, "How many vacation days do employees get?", 5)
	require.NoError(t, err)

	assert.Equal(t, "mock answer", resp.Answer)
	require.Len(t, resp.Sources, 2)
	assert.Positive(t, resp.Latency)
	assert.Nil(t, resp.Confidence)
	assert.GreaterOrEqual(t, resp.Sources[0].Score, resp.Sources[1].Score, "sources in descending score order")

	prompt := f.provider.MockCompleter().LastPrompt()
	assert.Contains(t, prompt, "only the context below")
	assert.Contains(t, prompt, "[handbook.txt]")
	assert.Contains(t, prompt, "How many vacation days do employees get?")
}

func TestAnswerEmptyIndexSkipsGeneration(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.Answer(context.Background(), "unrelated query", 5)
	require.NoError(t, err)

	assert.Equal(t, NoMatchAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.Latency)
	assert.Zero(t, f.provider.MockCompleter().CallCount(), "no completion call without matches")

	records, err := f.store.RecentQueryRecords(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1, "no-match queries are recorded too")
	assert.Equal(t, NoMatchAnswer, records[0].Answer)
}

func TestAnswerValidatesQuery(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Answer(context.Background(), "   ", 5)
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestAnswerClampsTopK(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.indexUnit(t, "a.txt", "alpha content")
	f.indexUnit(t, "b.txt", "beta content")

	resp, err := f.service.Answer(ctx, "alpha", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 1, "topK below range is clamped to 1")

	resp, err = f.service.Answer(ctx, "alpha", 10_000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Sources), maxTopK)
}

func TestAnswerDeletedDocumentReportsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docID := f.indexUnit(t, "gone.txt", "orphaned content")
	require.NoError(t, f.store.DeleteDocument(ctx, docID))

	resp, err := f.service.Answer(ctx, "orphaned content", 5)
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "unknown", resp.Sources[0].DocumentName)
}

func TestAnswerEmbedFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.provider.MockEmbedder().EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, core.Transient(errors.New("embedding down"))
	}

	_, err := f.service.Answer(context.Background(), "anything", 5)
	require.ErrorIs(t, err, core.ErrTransientCapability)
}

func TestAnswerCompletionFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.indexUnit(t, "a.txt", "some content")
	f.provider.MockCompleter().CompleteFunc = func(context.Context, string, int) (string, error) {
		return "", core.Transient(errors.New("completion down"))
	}

	_, err := f.service.Answer(ctx, "some content", 5)
	require.ErrorIs(t, err, core.ErrTransientCapability)
}

func TestAnswerPersistsQueryRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.indexUnit(t, "a.txt", "recorded content")

	resp, err := f.service.Answer(ctx, "recorded content", 3)
	require.NoError(t, err)

	records, err := f.service.RecentQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recorded content", records[0].Query)
	assert.Equal(t, resp.Answer, records[0].Answer)
	require.Len(t, records[0].Sources, 1)
	assert.Equal(t, "a.txt", records[0].Sources[0].DocumentName)
}

func TestAnswerTruncatesPerSourceContext(t *testing.T) {
	f := newFixture(t, WithPerSourceChars(20))
	ctx := context.Background()

	long := strings.Repeat("wordy content here. ", 30)
	f.indexUnit(t, "long.txt", long)

	_, err := f.service.Answer(ctx, "wordy", 1)
	require.NoError(t, err)

	prompt := f.provider.MockCompleter().LastPrompt()
	assert.NotContains(t, prompt, long, "full unit text never reaches the prompt")
	assert.Contains(t, prompt, truncate(long, 20))
}

func TestNewServiceDimensionMismatch(t *testing.T) {
	store := memstore.New()
	index, err := vecmem.New(4)
	require.NoError(t, err)

	_, err = NewService(store, index, aimock.NewProvider(8))
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestTruncatePreservesUTF8(t *testing.T) {
	s := "héllo wörld"
	got := truncate(s, 2)
	assert.LessOrEqual(t, len(got), 2)
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
	assert.Equal(t, s, truncate(s, 100))
}
