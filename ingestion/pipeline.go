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
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/insightdocs/ai"
	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
	"github.com/poiesic/insightdocs/vectorindex"
)

// Progress milestones reported after each completed step.
const (
	progressIngested  = 0.2
	progressSegmented = 0.4
	progressEmbedded  = 0.6
	progressPersisted = 0.8
)

// Pipeline drives one document through ingest, transform, embed,
// persist, optional summarize and finalize, producing one Task whose
// terminal status reflects overall success.
type Pipeline struct {
	store    storage.Store
	index    vectorindex.Index
	provider ai.Provider
	fetcher  ObjectFetcher

	embedPool *ants.Pool
	logger    *slog.Logger

	targetSize        int
	overlap           int
	maxAttempts       int
	baseDelay         time.Duration
	summarize         bool
	summaryInputChars int
	summaryMaxTokens  int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithSegmentation sets the segmenter's target chunk size and overlap
// in characters.
func WithSegmentation(targetSize, overlap int) Option {
	return func(p *Pipeline) error {
		if targetSize <= 0 {
			return fmt.Errorf("%w: target size %d", core.ErrInvalidArgument, targetSize)
		}
		p.targetSize = targetSize
		p.overlap = overlap
		return nil
	}
}

// WithRetry sets the attempt cap and base delay for retryable steps.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.baseDelay = baseDelay
		return nil
	}
}

// WithPoolSize sets the bounded concurrency for per-unit embedding
// calls. Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.embedPool != nil {
			p.embedPool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embedPool = pool
		return nil
	}
}

// WithSummarization toggles the optional summary step.
func WithSummarization(enabled bool) Option {
	return func(p *Pipeline) error {
		p.summarize = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline. The provider's declared
// embedding dimension must match the index's; a mismatch fails here,
// at construction, rather than on the first workflow.
func NewPipeline(
	store storage.Store,
	index vectorindex.Index,
	provider ai.Provider,
	fetcher ObjectFetcher,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if provider.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("%w: provider dimension %d, index dimension %d",
			core.ErrDimensionMismatch, provider.Dimension(), index.Dimension())
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:             store,
		index:             index,
		provider:          provider,
		fetcher:           fetcher,
		embedPool:         pool,
		logger:            slog.Default(),
		targetSize:        1000,
		overlap:           200,
		maxAttempts:       3,
		baseDelay:         500 * time.Millisecond,
		summarize:         true,
		summaryInputChars: 4000,
		summaryMaxTokens:  256,
	}
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Release releases the embedding worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}

// Run executes the full workflow for one document and writes the
// terminal task and document status. The returned error mirrors what
// was recorded on the task; callers use it for logging only.
//
// Re-running for a document that already has persisted units skips the
// ingest/transform/embed/persist steps so units are never duplicated.
func (p *Pipeline) Run(ctx context.Context, task *core.Task, doc *core.Document, locator string) error {
	w := &workflow{task: task, doc: doc, locator: locator}

	if err := task.SetStatus(core.StatusProcessing); err != nil {
		return err
	}
	if err := p.store.UpdateTask(ctx, task); err != nil {
		return p.fail(ctx, w, err)
	}
	if doc.Status != core.StatusProcessing {
		if err := p.store.SetDocumentStatus(ctx, doc.Id, core.StatusProcessing, ""); err != nil {
			return p.fail(ctx, w, err)
		}
		doc.Status = core.StatusProcessing
	}

	count, err := p.store.CountUnitsForDocument(ctx, doc.Id)
	if err != nil {
		return p.fail(ctx, w, err)
	}
	if count > 0 {
		units, err := p.store.GetUnitsForDocument(ctx, doc.Id)
		if err != nil {
			return p.fail(ctx, w, err)
		}
		w.units = units
		p.logger.Info("document already has persisted units, skipping to summary",
			"document_id", doc.Id, "units", count)
		task.AdvanceProgress(progressPersisted)
		p.saveProgress(ctx, task)
	} else {
		steps := []struct {
			s        step
			progress float64
		}{
			{ingestStep{p}, progressIngested},
			{transformStep{p}, progressSegmented},
			{embedStep{p}, progressEmbedded},
			{persistStep{p}, progressPersisted},
		}
		for _, st := range steps {
			if err := ctx.Err(); err != nil {
				return p.fail(ctx, w, err)
			}
			if err := p.runStep(ctx, st.s, w); err != nil {
				return p.fail(ctx, w, err)
			}
			task.AdvanceProgress(st.progress)
			p.saveProgress(ctx, task)
		}
	}

	if p.summarize {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, w, err)
		}
		if err := p.runStep(ctx, summarizeStep{p}, w); err != nil {
			p.logger.Warn("summary generation failed, continuing without summary",
				"document_id", doc.Id, "error", err)
			w.summary = ""
			w.summaryGenerated = false
		}
	}

	return p.finalize(ctx, w)
}

func (p *Pipeline) runStep(ctx context.Context, s step, w *workflow) error {
	run := func() error { return s.run(ctx, w) }
	var err error
	if s.retryable() {
		err = RetryWithBackoff(ctx, run, p.maxAttempts, p.baseDelay)
	} else {
		err = run()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", s.name(), err)
	}
	return nil
}

func (p *Pipeline) saveProgress(ctx context.Context, task *core.Task) {
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.logger.Warn("progress update failed", "task_id", task.Id, "error", err)
	}
}

func (p *Pipeline) finalize(ctx context.Context, w *workflow) error {
	vectorCount := 0
	for _, unit := range w.units {
		if unit.Embedded() {
			vectorCount++
		}
	}
	w.task.Result = &core.TaskResult{
		UnitCount:        len(w.units),
		VectorCount:      vectorCount,
		SummaryGenerated: w.summaryGenerated,
		Summary:          w.summary,
	}
	w.task.AdvanceProgress(1)
	if err := w.task.SetStatus(core.StatusCompleted); err != nil {
		return err
	}
	if err := p.store.UpdateTask(ctx, w.task); err != nil {
		return p.fail(ctx, w, err)
	}
	if err := p.store.SetDocumentStatus(ctx, w.doc.Id, core.StatusCompleted, ""); err != nil {
		p.logger.Error("document finalize failed", "document_id", w.doc.Id, "error", err)
		return err
	}
	w.doc.Status = core.StatusCompleted
	p.logger.Info("ingestion completed",
		"document_id", w.doc.Id, "task_id", w.task.Id,
		"units", len(w.units), "vectors", vectorCount, "summary", w.summaryGenerated)
	return nil
}

// fail records a terminal FAILED status on the task and document. The
// error detail carries the originating error kind so failures are
// distinguishable in monitoring. Terminal writes use a detached context
// so a cancelled workflow still lands its status.
func (p *Pipeline) fail(ctx context.Context, w *workflow, err error) error {
	if errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}
	detail := fmt.Sprintf("%s: %v", core.ErrorKind(err), err)

	ctx = context.WithoutCancel(ctx)
	if serr := w.task.SetStatus(core.StatusFailed); serr == nil {
		w.task.ErrorDetail = detail
		if uerr := p.store.UpdateTask(ctx, w.task); uerr != nil {
			p.logger.Error("failed to record task failure", "task_id", w.task.Id, "error", uerr)
		}
	}
	if !w.doc.Status.Terminal() {
		if serr := p.store.SetDocumentStatus(ctx, w.doc.Id, core.StatusFailed, detail); serr != nil {
			p.logger.Error("failed to record document failure", "document_id", w.doc.Id, "error", serr)
		} else {
			w.doc.Status = core.StatusFailed
		}
	}
	p.logger.Error("ingestion failed",
		"document_id", w.doc.Id, "task_id", w.task.Id, "kind", core.ErrorKind(err), "error", err)
	return err
}
