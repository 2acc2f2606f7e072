package insightdocs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aimock "github.com/poiesic/insightdocs/ai/mock"
	"github.com/poiesic/insightdocs/config"
	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/ingestion"
	"github.com/poiesic/insightdocs/retrieval"
	memstore "github.com/poiesic/insightdocs/storage/memory"
	vecmem "github.com/poiesic/insightdocs/vectorindex/memory"
)

const testDimension = 8

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.AI.EmbeddingDimensions = testDimension
	cfg.Pipeline.UploadDir = dir
	cfg.Pipeline.TargetSize = 60
	cfg.Pipeline.RetryBaseDelay = config.Duration(time.Millisecond)

	index, err := vecmem.New(testDimension)
	require.NoError(t, err)

	svc, err := NewWithDependencies(cfg, memstore.New(), index, aimock.NewProvider(testDimension))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, dir
}

func ingestFile(t *testing.T, svc *Service, dir, name, content string) *core.Task {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))

	taskID, err := svc.SubmitIngestion(ctx, ingestion.Submission{
		Locator:      name,
		Filename:     name,
		DeclaredType: "txt",
		SizeBytes:    int64(len(content)),
	})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	task, err := svc.WaitForTask(waitCtx, taskID, 5*time.Millisecond)
	require.NoError(t, err)
	return task
}

func TestServiceIngestAndAnswer(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	task := ingestFile(t, svc, dir, "notes.txt", "The launch is planned for March. Budget review happens in February.")
	require.Equal(t, core.StatusCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Positive(t, task.Result.UnitCount)

	resp, err := svc.Answer(ctx, "When is the launch?", 5)
	require.NoError(t, err)
	assert.Equal(t, "mock answer", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "notes.txt", resp.Sources[0].DocumentName)

	docs, total, err := svc.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, core.StatusCompleted, docs[0].Status)

	queries, err := svc.ListQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "When is the launch?", queries[0].Query)
}

func TestServiceDeleteDocumentInvalidatesVectors(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	task := ingestFile(t, svc, dir, "gone.txt", "Content that will be deleted soon.")
	require.Equal(t, core.StatusCompleted, task.Status)
	require.NotNil(t, task.DocumentId)

	require.NoError(t, svc.DeleteDocument(ctx, *task.DocumentId))

	_, _, err := svc.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)

	resp, err := svc.Answer(ctx, "deleted content", 5)
	require.NoError(t, err)
	assert.Equal(t, retrieval.NoMatchAnswer, resp.Answer, "vectors removed with the document")
	assert.Empty(t, resp.Sources)
}

func TestServiceTaskStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.TaskStatus(context.Background(), core.NewID())
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestServiceHousekeeping(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	task := ingestFile(t, svc, dir, "old.txt", "Housekeeping fodder.")
	require.Equal(t, core.StatusCompleted, task.Status)

	time.Sleep(20 * time.Millisecond)
	svc.cfg.Pipeline.TaskRetention = config.Duration(10 * time.Millisecond)

	purged, err := svc.PurgeTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = svc.TaskStatus(ctx, task.Id)
	require.ErrorIs(t, err, core.ErrNotFound)
}
