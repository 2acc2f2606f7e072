package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aimock "github.com/poiesic/insightdocs/ai/mock"
	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
)

type dispatcherFixture struct {
	*pipelineFixture
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	pf := newPipelineFixture(t)
	d, err := NewDispatcher(pf.store, pf.pipeline, WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return &dispatcherFixture{pipelineFixture: pf, dispatcher: d}
}

func (f *dispatcherFixture) waitTerminal(t *testing.T, taskID core.ID) *core.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := f.store.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal state")
	return nil
}

func TestSubmitRunsWorkflow(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	locator := f.writeFile(t, "report.txt", "A sentence to ingest. Another one.")
	taskID, err := f.dispatcher.Submit(ctx, Submission{
		Locator:      locator,
		Filename:     "report.txt",
		DeclaredType: "txt",
		SizeBytes:    34,
	})
	require.NoError(t, err)

	task := f.waitTerminal(t, taskID)
	assert.Equal(t, core.StatusCompleted, task.Status)
	require.NotNil(t, task.DocumentId)

	doc, err := f.store.GetDocument(ctx, *task.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, doc.Status)
	assert.Equal(t, "report.txt", doc.Filename)
}

func TestSubmitRejectsDuplicateInFlight(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	f.provider.MockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		select {
		case <-release:
			return aimock.DeterministicVector(text, testDimension), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	locator := f.writeFile(t, "report.txt", "Blocking content.")
	first, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.NoError(t, err)

	_, err = f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.ErrorIs(t, err, ErrIngestionInFlight, "second submission is rejected, not queued")

	close(release)
	task := f.waitTerminal(t, first)
	assert.Equal(t, core.StatusCompleted, task.Status)

	// The previous workflow terminated, so a resubmission is accepted.
	second, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.NoError(t, err)
	f.waitTerminal(t, second)
}

func TestResubmitTerminalDocumentDoesNotDuplicate(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	locator := f.writeFile(t, "report.txt", "First sentence of the file. Second sentence of the file.")
	first, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.NoError(t, err)
	firstTask := f.waitTerminal(t, first)
	require.Equal(t, core.StatusCompleted, firstTask.Status)
	require.NotNil(t, firstTask.DocumentId)
	docID := *firstTask.DocumentId

	unitsBefore, err := f.store.CountUnitsForDocument(ctx, docID)
	require.NoError(t, err)
	require.Positive(t, unitsBefore)
	vectorsBefore := f.index.Len()
	embedsBefore := f.provider.MockEmbedder().CallCount()

	second, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.NoError(t, err)
	secondTask := f.waitTerminal(t, second)
	assert.Equal(t, core.StatusCompleted, secondTask.Status)
	require.NotNil(t, secondTask.DocumentId)
	assert.Equal(t, docID, *secondTask.DocumentId, "the existing document is re-run, not duplicated")

	unitsAfter, err := f.store.CountUnitsForDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, unitsBefore, unitsAfter, "unit set is unchanged by re-submission")
	assert.Equal(t, vectorsBefore, f.index.Len(), "index size is unchanged by re-submission")
	assert.Equal(t, embedsBefore, f.provider.MockEmbedder().CallCount(), "persisted units are not re-embedded")

	_, total, err := f.store.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "one document per filename")
}

func TestConcurrentSubmissionsAdmitOne(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	f.provider.MockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		select {
		case <-release:
			return aimock.DeterministicVector(text, testDimension), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	locator := f.writeFile(t, "report.txt", "Raced content.")

	const submitters = 4
	start := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winner core.ID
	accepted := 0
	rejections := make([]error, 0, submitters)

	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			id, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejections = append(rejections, err)
				return
			}
			accepted++
			winner = id
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, accepted, "exactly one concurrent submission is admitted")
	require.Len(t, rejections, submitters-1)
	for _, err := range rejections {
		assert.ErrorIs(t, err, ErrIngestionInFlight)
	}

	close(release)
	task := f.waitTerminal(t, winner)
	assert.Equal(t, core.StatusCompleted, task.Status)

	_, total, err := f.store.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "losers must not have created documents")
}

func TestSubmitValidatesInput(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	_, err := f.dispatcher.Submit(ctx, Submission{Locator: "x", Filename: ""})
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.dispatcher.Submit(ctx, Submission{Locator: "", Filename: "x.txt"})
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestCancelInFlightWorkflow(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	f.provider.MockEmbedder().EmbedTextFunc = func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	locator := f.writeFile(t, "report.txt", "Content that never finishes embedding.")
	taskID, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.NoError(t, err)

	// Wait for the workflow to reach the blocking embed step.
	require.Eventually(t, func() bool {
		task, err := f.store.GetTask(ctx, taskID)
		return err == nil && task.Status == core.StatusProcessing
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.dispatcher.Cancel(ctx, taskID))

	task := f.waitTerminal(t, taskID)
	assert.Equal(t, core.StatusFailed, task.Status)
	assert.Contains(t, task.ErrorDetail, "cancelled")

	require.NotNil(t, task.DocumentId)
	count, err := f.store.CountUnitsForDocument(ctx, *task.DocumentId)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelTerminalTaskIsNoOp(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	locator := f.writeFile(t, "report.txt", "Quick content.")
	taskID, err := f.dispatcher.Submit(ctx, Submission{Locator: locator, Filename: "report.txt", DeclaredType: "txt"})
	require.NoError(t, err)
	f.waitTerminal(t, taskID)

	require.NoError(t, f.dispatcher.Cancel(ctx, taskID))
	task, err := f.store.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, task.Status, "terminal states are final")
}

func TestFailStuckForcesTerminalStatus(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	// A PROCESSING task orphaned by a crashed worker.
	orphan := &core.Task{Id: core.NewID(), Kind: core.TaskKindIngest, Status: core.StatusPending}
	require.NoError(t, f.store.CreateTask(ctx, orphan))
	require.NoError(t, orphan.SetStatus(core.StatusProcessing))
	require.NoError(t, f.store.UpdateTask(ctx, orphan))

	time.Sleep(20 * time.Millisecond)

	failed, err := f.dispatcher.FailStuck(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	got, err := f.store.GetTask(ctx, orphan.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorDetail, "exceeded maximum duration")
}

func TestPurgeTerminalTasks(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	done := &core.Task{Id: core.NewID(), Kind: core.TaskKindMaintenance, Status: core.StatusPending}
	require.NoError(t, f.store.CreateTask(ctx, done))
	require.NoError(t, done.SetStatus(core.StatusFailed))
	require.NoError(t, f.store.UpdateTask(ctx, done))

	active := &core.Task{Id: core.NewID(), Kind: core.TaskKindIngest, Status: core.StatusPending}
	require.NoError(t, f.store.CreateTask(ctx, active))

	time.Sleep(20 * time.Millisecond)

	purged, err := f.dispatcher.PurgeTerminalTasks(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = f.store.GetTask(ctx, done.Id)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetTask(ctx, active.Id)
	require.NoError(t, err, "non-terminal tasks are kept")
}
