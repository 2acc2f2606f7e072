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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
)

// Submission describes one document upload handed to the dispatcher.
type Submission struct {
	Locator      string // where the fetcher finds the raw bytes
	Filename     string
	DeclaredType string
	SizeBytes    int64
	OwnerId      string
}

// Dispatcher schedules ingestion workflows on a worker pool. Multiple
// documents process in parallel, but at most one workflow per document
// is in flight: a second submission for a document whose workflow has
// not terminated is rejected, not queued.
type Dispatcher struct {
	store    storage.Store
	pipeline *Pipeline
	pool     *ants.Pool
	logger   *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight map[core.ID]context.CancelFunc // keyed by document ID
	byTask   map[core.ID]core.ID            // task ID -> document ID
	byName   map[string]core.ID             // filename -> reserved or in-flight document
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher) error

// WithWorkers sets the number of concurrent ingestion workflows.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(size int) DispatcherOption {
	return func(d *Dispatcher) error {
		if size < 1 {
			size = 1
		}
		if d.pool != nil {
			d.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		d.pool = pool
		return nil
	}
}

// WithDispatcherLogger sets a custom logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a dispatcher running workflows on the given
// pipeline.
func NewDispatcher(store storage.Store, pipeline *Pipeline, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		store:    store,
		pipeline: pipeline,
		pool:     pool,
		logger:   slog.Default(),
		inflight: make(map[core.ID]context.CancelFunc),
		byTask:   make(map[core.ID]core.ID),
		byName:   make(map[string]core.ID),
	}
	for _, opt := range opts {
		if optErr := opt(d); optErr != nil {
			d.Close()
			return nil, optErr
		}
	}
	return d, nil
}

// Submit registers a document and task and schedules the ingestion
// workflow. It returns the task ID immediately; progress is observable
// through the task. A submission for a filename whose previous workflow
// has not terminated returns ErrIngestionInFlight. Re-submitting a
// filename whose document already reached a terminal state re-runs that
// document's workflow; the pipeline skips straight to the summary when
// its unit batch is already persisted, so a re-run never duplicates
// units or vectors.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (core.ID, error) {
	if sub.Filename == "" {
		return "", fmt.Errorf("%w: filename is empty", core.ErrInvalidArgument)
	}
	if sub.Locator == "" {
		return "", fmt.Errorf("%w: locator is empty", core.ErrInvalidArgument)
	}

	// Reserve the filename before any store access. Concurrent
	// submissions of the same file serialize here: exactly one holds the
	// reservation through document creation and workflow registration,
	// the rest are rejected.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrDispatcherClosed
	}
	if _, busy := d.byName[sub.Filename]; busy {
		d.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrIngestionInFlight, sub.Filename)
	}
	d.byName[sub.Filename] = ""
	d.mu.Unlock()

	releaseName := func() {
		d.mu.Lock()
		delete(d.byName, sub.Filename)
		d.mu.Unlock()
	}

	existing, err := d.store.GetDocumentByFilename(ctx, sub.Filename)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		releaseName()
		return "", err
	}

	var doc *core.Document
	switch {
	case existing == nil:
		doc = &core.Document{
			Id:           core.NewID(),
			Filename:     sub.Filename,
			SizeBytes:    sub.SizeBytes,
			DeclaredType: sub.DeclaredType,
			Status:       core.StatusPending,
			OwnerId:      sub.OwnerId,
		}
		if err := d.store.CreateDocument(ctx, doc); err != nil {
			releaseName()
			return "", err
		}
	case existing.Status == core.StatusProcessing:
		// Not tracked here, so it was orphaned by a restart; the
		// watchdog will fail it and unblock the filename.
		releaseName()
		return "", fmt.Errorf("%w: %s", ErrIngestionInFlight, sub.Filename)
	default:
		// Re-run the existing document rather than minting a second
		// one for the same file. A terminal document re-enters PENDING
		// to begin the new run.
		if existing.Status.Terminal() {
			if err := d.store.SetDocumentStatus(ctx, existing.Id, core.StatusPending, ""); err != nil {
				releaseName()
				return "", err
			}
			existing.Status = core.StatusPending
			existing.ErrorDetail = ""
		}
		doc = existing
	}

	docID := doc.Id
	task := &core.Task{
		Id:         core.NewID(),
		Kind:       core.TaskKindIngest,
		Status:     core.StatusPending,
		DocumentId: &docID,
	}
	if err := d.store.CreateTask(ctx, task); err != nil {
		releaseName()
		return "", err
	}

	// The workflow outlives the submission call, so it runs on its own
	// cancellable context detached from the caller's.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		releaseName()
		return "", ErrDispatcherClosed
	}
	d.byName[sub.Filename] = doc.Id
	d.inflight[doc.Id] = cancel
	d.byTask[task.Id] = doc.Id
	d.mu.Unlock()

	err = d.pool.Submit(func() {
		defer func() {
			cancel()
			d.mu.Lock()
			delete(d.byName, doc.Filename)
			delete(d.inflight, doc.Id)
			delete(d.byTask, task.Id)
			d.mu.Unlock()
		}()
		if runErr := d.pipeline.Run(runCtx, task, doc, sub.Locator); runErr != nil {
			d.logger.Debug("workflow terminated with failure", "task_id", task.Id, "error", runErr)
		}
	})
	if err != nil {
		d.mu.Lock()
		delete(d.byName, doc.Filename)
		delete(d.inflight, doc.Id)
		delete(d.byTask, task.Id)
		d.mu.Unlock()
		cancel()
		d.failBeforeStart(ctx, task, doc, fmt.Sprintf("internal: schedule workflow: %v", err))
		return "", err
	}

	return task.Id, nil
}

// Cancel requests cooperative cancellation of a task's workflow.
// Cancelling a task already in a terminal state is a no-op. A PENDING
// task whose workflow never started is failed directly.
func (d *Dispatcher) Cancel(ctx context.Context, taskID core.ID) error {
	task, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	d.mu.Lock()
	docID, tracked := d.byTask[taskID]
	var cancel context.CancelFunc
	if tracked {
		cancel = d.inflight[docID]
	}
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		d.logger.Info("cancellation requested", "task_id", taskID)
		return nil
	}

	// Not tracked here: orphaned by a restart. Force the terminal state.
	detail := fmt.Sprintf("%s: cancelled before completion", core.ErrorKind(core.ErrCancelled))
	if err := task.SetStatus(core.StatusFailed); err != nil {
		return err
	}
	task.ErrorDetail = detail
	if err := d.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	if task.DocumentId != nil {
		if err := d.store.SetDocumentStatus(ctx, *task.DocumentId, core.StatusFailed, detail); err != nil && !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("failed to fail cancelled document", "document_id", *task.DocumentId, "error", err)
		}
	}
	return nil
}

// FailStuck force-fails PROCESSING tasks that have not been updated for
// maxAge, so no task stays PROCESSING forever. Returns the number of
// tasks failed.
func (d *Dispatcher) FailStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	tasks, err := d.store.ProcessingTasksBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, task := range tasks {
		d.mu.Lock()
		var cancel context.CancelFunc
		if task.DocumentId != nil {
			cancel = d.inflight[*task.DocumentId]
		}
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		detail := fmt.Sprintf("internal: workflow exceeded maximum duration %s", maxAge)
		if serr := task.SetStatus(core.StatusFailed); serr != nil {
			continue
		}
		task.ErrorDetail = detail
		if uerr := d.store.UpdateTask(ctx, task); uerr != nil {
			d.logger.Warn("failed to fail stuck task", "task_id", task.Id, "error", uerr)
			continue
		}
		if task.DocumentId != nil {
			if serr := d.store.SetDocumentStatus(ctx, *task.DocumentId, core.StatusFailed, detail); serr != nil && !errors.Is(serr, storage.ErrNotFound) {
				d.logger.Warn("failed to fail stuck document", "document_id", *task.DocumentId, "error", serr)
			}
		}
		d.logger.Warn("force-failed stuck task", "task_id", task.Id, "age", maxAge)
		failed++
	}
	return failed, nil
}

// PurgeTerminalTasks deletes COMPLETED and FAILED tasks last updated
// more than olderThan ago. Returns the number of tasks removed.
func (d *Dispatcher) PurgeTerminalTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	tasks, err := d.store.TerminalTasksBefore(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	ids := make([]core.ID, len(tasks))
	for i, task := range tasks {
		ids[i] = task.Id
	}
	if err := d.store.DeleteTasks(ctx, ids...); err != nil {
		return 0, err
	}
	d.logger.Info("purged terminal tasks", "count", len(ids))
	return len(ids), nil
}

// InFlight reports whether a workflow for the document is unfinished.
func (d *Dispatcher) InFlight(documentID core.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[documentID]
	return ok
}

// Close cancels all in-flight workflows and releases the worker pool.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	cancels := make([]context.CancelFunc, 0, len(d.inflight))
	for _, cancel := range d.inflight {
		cancels = append(cancels, cancel)
	}
	d.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	if d.pool != nil {
		d.pool.Release()
	}
}

func (d *Dispatcher) failBeforeStart(ctx context.Context, task *core.Task, doc *core.Document, detail string) {
	if err := task.SetStatus(core.StatusFailed); err == nil {
		task.ErrorDetail = detail
		if uerr := d.store.UpdateTask(ctx, task); uerr != nil {
			d.logger.Error("failed to record task failure", "task_id", task.Id, "error", uerr)
		}
	}
	if serr := d.store.SetDocumentStatus(ctx, doc.Id, core.StatusFailed, detail); serr != nil {
		d.logger.Error("failed to record document failure", "document_id", doc.Id, "error", serr)
	}
}
