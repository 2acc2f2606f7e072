package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aimock "github.com/poiesic/insightdocs/ai/mock"
	"github.com/poiesic/insightdocs/core"
	memstore "github.com/poiesic/insightdocs/storage/memory"
	vecmem "github.com/poiesic/insightdocs/vectorindex/memory"
)

const testDimension = 8

type pipelineFixture struct {
	pipeline *Pipeline
	store    *memstore.Store
	index    *vecmem.Index
	provider *aimock.Provider
	dir      string
}

func newPipelineFixture(t *testing.T, opts ...Option) *pipelineFixture {
	t.Helper()

	store := memstore.New()
	index, err := vecmem.New(testDimension)
	require.NoError(t, err)
	provider := aimock.NewProvider(testDimension)
	dir := t.TempDir()

	base := []Option{
		WithSegmentation(40, 0),
		WithRetry(2, time.Millisecond),
	}
	pipeline, err := NewPipeline(store, index, provider, NewFileFetcher(dir), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return &pipelineFixture{pipeline: pipeline, store: store, index: index, provider: provider, dir: dir}
}

func (f *pipelineFixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
	return name
}

func (f *pipelineFixture) newDocumentAndTask(t *testing.T, filename, declaredType string) (*core.Document, *core.Task) {
	t.Helper()
	ctx := context.Background()
	doc := &core.Document{
		Id:           core.NewID(),
		Filename:     filename,
		DeclaredType: declaredType,
		Status:       core.StatusPending,
	}
	require.NoError(t, f.store.CreateDocument(ctx, doc))
	docID := doc.Id
	task := &core.Task{
		Id:         core.NewID(),
		Kind:       core.TaskKindIngest,
		Status:     core.StatusPending,
		DocumentId: &docID,
	}
	require.NoError(t, f.store.CreateTask(ctx, task))
	return doc, task
}

func TestRunCompletesWorkflow(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	locator := f.writeFile(t, "report.txt", "First sentence here. Second sentence follows. A third one closes it.")
	doc, task := f.newDocumentAndTask(t, "report.txt", "txt")

	require.NoError(t, f.pipeline.Run(ctx, task, doc, locator))

	got, err := f.store.GetTask(ctx, task.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.Result)
	assert.Positive(t, got.Result.UnitCount)
	assert.Equal(t, got.Result.UnitCount, got.Result.VectorCount)
	assert.True(t, got.Result.SummaryGenerated)
	assert.Equal(t, "mock answer", got.Result.Summary)

	gotDoc, err := f.store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, gotDoc.Status)

	units, err := f.store.GetUnitsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, units, got.Result.UnitCount)
	for i, unit := range units {
		assert.Equal(t, i, unit.SequenceIndex, "sequence indices are 0..N-1 with no gaps")
		assert.True(t, unit.Embedded())
		assert.Equal(t, "mock-embedding", unit.EmbeddingModel)
		assert.Equal(t, testDimension, unit.EmbeddingDim)
	}
	assert.Equal(t, len(units), f.index.Len())
}

func TestRunIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// A document whose previous workflow crashed after persisting units
	// but before finalizing: document stuck PROCESSING, units in place.
	locator := f.writeFile(t, "report.txt", "First sentence here. Second sentence follows.")
	doc, task := f.newDocumentAndTask(t, "report.txt", "txt")
	require.NoError(t, f.store.SetDocumentStatus(ctx, doc.Id, core.StatusProcessing, ""))
	doc.Status = core.StatusProcessing

	units := []*core.Unit{
		{Id: core.NewID(), DocumentId: doc.Id, SequenceIndex: 0, Content: "First sentence here.",
			VectorRef: core.VectorRefFromContent(doc.Id, 0, "First sentence here."), EmbeddingModel: "mock-embedding", EmbeddingDim: testDimension},
		{Id: core.NewID(), DocumentId: doc.Id, SequenceIndex: 1, Content: "Second sentence follows.",
			VectorRef: core.VectorRefFromContent(doc.Id, 1, "Second sentence follows."), EmbeddingModel: "mock-embedding", EmbeddingDim: testDimension},
	}
	require.NoError(t, f.store.AddUnits(ctx, units...))

	require.NoError(t, f.pipeline.Run(ctx, task, doc, locator))

	after, err := f.store.GetUnitsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, after, 2, "unit count unchanged")
	for i := range units {
		assert.Equal(t, units[i].VectorRef, after[i].VectorRef, "vector refs unchanged")
	}

	got, err := f.store.GetTask(ctx, task.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.UnitCount)
	assert.True(t, got.Result.SummaryGenerated, "summary still produced on re-run")
	assert.Zero(t, f.provider.MockEmbedder().CallCount(), "no embedding calls on re-run")
}

func TestRunEmbedFailureFailsTaskAndDocument(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.provider.MockEmbedder().EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, core.Transient(errors.New("capability unreachable"))
	}

	locator := f.writeFile(t, "report.txt", "Some content to ingest.")
	doc, task := f.newDocumentAndTask(t, "report.txt", "txt")

	err := f.pipeline.Run(ctx, task, doc, locator)
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrTransientCapability)

	got, err := f.store.GetTask(ctx, task.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorDetail, "transient_capability_error")

	gotDoc, err := f.store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, gotDoc.Status)

	count, err := f.store.CountUnitsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Zero(t, count, "no units persisted on embed failure")
	assert.Zero(t, f.index.Len(), "no vectors written on embed failure")
}

func TestRunSummarizeFailureStillCompletes(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.provider.MockCompleter().CompleteFunc = func(context.Context, string, int) (string, error) {
		return "", core.Transient(errors.New("completion unavailable"))
	}

	locator := f.writeFile(t, "report.txt", "Some content to ingest.")
	doc, task := f.newDocumentAndTask(t, "report.txt", "txt")

	require.NoError(t, f.pipeline.Run(ctx, task, doc, locator))

	got, err := f.store.GetTask(ctx, task.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.False(t, got.Result.SummaryGenerated)
	assert.Empty(t, got.Result.Summary)
	assert.Positive(t, got.Result.UnitCount, "units survive a summary failure")
}

func TestRunUnsupportedTypeIsDataError(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	locator := f.writeFile(t, "binary.exe", "\x00\x01")
	doc, task := f.newDocumentAndTask(t, "binary.exe", "exe")

	err := f.pipeline.Run(ctx, task, doc, locator)
	require.ErrorIs(t, err, core.ErrData)

	got, err := f.store.GetTask(ctx, task.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorDetail, "data_error")
}

func TestRunEmptyDocumentIsDataError(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	locator := f.writeFile(t, "empty.txt", "")
	doc, task := f.newDocumentAndTask(t, "empty.txt", "txt")

	err := f.pipeline.Run(ctx, task, doc, locator)
	require.ErrorIs(t, err, core.ErrData)

	count, err := f.store.CountUnitsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunCancelledContext(t *testing.T) {
	f := newPipelineFixture(t)

	locator := f.writeFile(t, "report.txt", "Some content.")
	doc, task := f.newDocumentAndTask(t, "report.txt", "txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.pipeline.Run(ctx, task, doc, locator)
	require.ErrorIs(t, err, core.ErrCancelled)

	got, err := f.store.GetTask(context.Background(), task.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorDetail, "cancelled")
}

func TestNewPipelineDimensionMismatch(t *testing.T) {
	store := memstore.New()
	index, err := vecmem.New(4)
	require.NoError(t, err)
	provider := aimock.NewProvider(8)

	_, err = NewPipeline(store, index, provider, NewFileFetcher(t.TempDir()))
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	store := memstore.New()
	index, err := vecmem.New(testDimension)
	require.NoError(t, err)
	provider := aimock.NewProvider(testDimension)
	fetcher := NewFileFetcher(t.TempDir())

	_, err = NewPipeline(nil, index, provider, fetcher)
	require.ErrorIs(t, err, ErrStoreRequired)
	_, err = NewPipeline(store, nil, provider, fetcher)
	require.ErrorIs(t, err, ErrIndexRequired)
	_, err = NewPipeline(store, index, nil, fetcher)
	require.ErrorIs(t, err, ErrProviderRequired)
	_, err = NewPipeline(store, index, provider, nil)
	require.ErrorIs(t, err, ErrFetcherRequired)
}
