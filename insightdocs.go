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


// Package insightdocs assembles the document ingestion and retrieval
// pipeline: uploaded documents are parsed, segmented into units,
// embedded into a vector index and persisted to a metadata store, then
// answered over at query time.
package insightdocs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/insightdocs/ai"
	aiopenai "github.com/poiesic/insightdocs/ai/openai"
	"github.com/poiesic/insightdocs/config"
	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/ingestion"
	"github.com/poiesic/insightdocs/retrieval"
	"github.com/poiesic/insightdocs/storage"
	memstore "github.com/poiesic/insightdocs/storage/memory"
	pgstore "github.com/poiesic/insightdocs/storage/postgres"
	"github.com/poiesic/insightdocs/vectorindex"
	vecbadger "github.com/poiesic/insightdocs/vectorindex/badger"
	vecmem "github.com/poiesic/insightdocs/vectorindex/memory"
	vecqdrant "github.com/poiesic/insightdocs/vectorindex/qdrant"
)

// Service is the assembled pipeline: storage, vector index, AI
// provider, ingestion dispatcher and retrieval service behind one
// façade. Construct it with New, or with NewWithDependencies for
// injected collaborators in tests.
type Service struct {
	cfg *config.Config

	store    storage.Store
	index    vectorindex.Index
	provider ai.Provider

	pipeline   *ingestion.Pipeline
	dispatcher *ingestion.Dispatcher
	retriever  *retrieval.Service

	backend *vecbadger.Backend // non-nil only for the badger vector backend
	logger  *slog.Logger
}

// New assembles a Service from configuration. The embedding provider's
// declared dimension is checked against the vector index dimension here
// so a misconfigured deployment fails at startup, not mid-workflow.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		provider.Close()
		return nil, err
	}

	svc, err := assemble(ctx, cfg, store, provider)
	if err != nil {
		store.Close()
		provider.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithDependencies assembles a Service around injected collaborators.
func NewWithDependencies(cfg *config.Config, store storage.Store, index vectorindex.Index, provider ai.Provider) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	svc := &Service{cfg: cfg, store: store, index: index, provider: provider, logger: slog.Default()}
	if err := svc.wire(); err != nil {
		return nil, err
	}
	return svc, nil
}

func newProvider(cfg *config.Config) (ai.Provider, error) {
	aiCfg := ai.NewConfig(
		ai.WithHost(cfg.AI.Host),
		ai.WithEmbeddingModel(cfg.AI.EmbeddingModel, cfg.AI.EmbeddingDimensions),
		ai.WithCompletionModel(cfg.AI.CompletionModel),
		ai.WithToken(cfg.AI.Token),
	)
	return aiopenai.NewProvider(aiCfg)
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.DSN == "" {
		return memstore.New(), nil
	}
	var opts []pgstore.Option
	if cfg.Storage.Password != "" {
		opts = append(opts, pgstore.WithPassword(cfg.Storage.Password))
	}
	if cfg.Storage.QueryLogging {
		opts = append(opts, pgstore.WithQueryLogging())
	}
	return pgstore.Open(ctx, cfg.Storage.DSN, opts...)
}

func assemble(ctx context.Context, cfg *config.Config, store storage.Store, provider ai.Provider) (*Service, error) {
	svc := &Service{cfg: cfg, store: store, provider: provider, logger: slog.Default()}

	dim := provider.Dimension()
	switch cfg.Vector.Backend {
	case config.VectorBackendMemory:
		index, err := vecmem.New(dim)
		if err != nil {
			return nil, err
		}
		svc.index = index
	case config.VectorBackendBadger:
		backend, err := vecbadger.OpenBackend(cfg.Vector.Path, false)
		if err != nil {
			return nil, err
		}
		index, err := vecbadger.NewIndex(backend, cfg.Vector.Collection, dim)
		if err != nil {
			backend.Close()
			return nil, err
		}
		svc.backend = backend
		svc.index = index
	case config.VectorBackendQdrant:
		index, err := vecqdrant.New(ctx, vecqdrant.Config{
			URL:        cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Dimension:  dim,
		})
		if err != nil {
			return nil, err
		}
		svc.index = index
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}

	if err := svc.wire(); err != nil {
		svc.index.Close()
		if svc.backend != nil {
			svc.backend.Close()
		}
		return nil, err
	}
	return svc, nil
}

// wire builds the pipeline, dispatcher and retrieval service on top of
// the already-selected store, index and provider.
func (s *Service) wire() error {
	cfg := s.cfg
	pipeline, err := ingestion.NewPipeline(s.store, s.index, s.provider,
		ingestion.NewFileFetcher(cfg.Pipeline.UploadDir),
		ingestion.WithSegmentation(cfg.Pipeline.TargetSize, cfg.Pipeline.Overlap),
		ingestion.WithRetry(cfg.Pipeline.MaxAttempts, cfg.Pipeline.RetryBaseDelay.Std()),
		ingestion.WithSummarization(cfg.Pipeline.Summarize),
		ingestion.WithPoolSize(cfg.Pipeline.Workers),
	)
	if err != nil {
		return err
	}

	dispatcher, err := ingestion.NewDispatcher(s.store, pipeline,
		ingestion.WithWorkers(cfg.Pipeline.Workers),
	)
	if err != nil {
		pipeline.Release()
		return err
	}

	retriever, err := retrieval.NewService(s.store, s.index, s.provider,
		retrieval.WithPerSourceChars(cfg.Pipeline.RetrievalSnippet),
	)
	if err != nil {
		dispatcher.Close()
		pipeline.Release()
		return err
	}

	s.pipeline = pipeline
	s.dispatcher = dispatcher
	s.retriever = retriever
	return nil
}

// SubmitIngestion registers an uploaded document and schedules its
// ingestion workflow, returning the task ID to poll.
func (s *Service) SubmitIngestion(ctx context.Context, sub ingestion.Submission) (core.ID, error) {
	return s.dispatcher.Submit(ctx, sub)
}

// TaskStatus returns the current state of a workflow task.
func (s *Service) TaskStatus(ctx context.Context, taskID core.ID) (*core.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// CancelTask requests cooperative cancellation of a running workflow.
func (s *Service) CancelTask(ctx context.Context, taskID core.ID) error {
	return s.dispatcher.Cancel(ctx, taskID)
}

// Answer runs one retrieval query over the indexed documents.
func (s *Service) Answer(ctx context.Context, queryText string, topK int) (*retrieval.Response, error) {
	return s.retriever.Answer(ctx, queryText, topK)
}

// ListDocuments returns a page of documents, newest first, plus the
// total count.
func (s *Service) ListDocuments(ctx context.Context, offset, limit int) ([]*core.Document, int, error) {
	return s.store.ListDocuments(ctx, offset, limit)
}

// ListQueries returns up to limit query records, newest first.
func (s *Service) ListQueries(ctx context.Context, limit int) ([]*core.QueryRecord, error) {
	return s.retriever.RecentQueries(ctx, limit)
}

// DeleteDocument removes a document, its units, and its vector index
// entries. Outstanding non-terminal tasks for the document are failed.
// Deleting while an ingestion workflow is in flight is rejected.
func (s *Service) DeleteDocument(ctx context.Context, documentID core.ID) error {
	if s.dispatcher.InFlight(documentID) {
		return fmt.Errorf("%w: %s", ingestion.ErrIngestionInFlight, documentID)
	}

	refs, err := s.store.VectorRefsForDocument(ctx, documentID)
	if err != nil {
		return err
	}

	tasks, err := s.store.TasksForDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	if len(refs) > 0 {
		if err := s.index.Delete(ctx, refs); err != nil {
			s.logger.Warn("vector invalidation failed, orphan entries remain",
				"document_id", documentID, "refs", len(refs), "error", err)
		}
	}

	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}
		if serr := task.SetStatus(core.StatusFailed); serr != nil {
			continue
		}
		task.ErrorDetail = "not_found: document deleted"
		if uerr := s.store.UpdateTask(ctx, task); uerr != nil && !errors.Is(uerr, storage.ErrNotFound) {
			s.logger.Warn("failed to fail task of deleted document", "task_id", task.Id, "error", uerr)
		}
	}
	return nil
}

// FailStuckTasks force-fails PROCESSING tasks older than the configured
// maximum workflow duration.
func (s *Service) FailStuckTasks(ctx context.Context) (int, error) {
	return s.dispatcher.FailStuck(ctx, s.cfg.Pipeline.MaxTaskDuration.Std())
}

// PurgeTasks deletes terminal tasks past the configured retention.
func (s *Service) PurgeTasks(ctx context.Context) (int, error) {
	return s.dispatcher.PurgeTerminalTasks(ctx, s.cfg.Pipeline.TaskRetention.Std())
}

// WaitForTask polls a task until it reaches a terminal status or the
// context expires.
func (s *Service) WaitForTask(ctx context.Context, taskID core.ID, pollEvery time.Duration) (*core.Task, error) {
	if pollEvery <= 0 {
		pollEvery = 200 * time.Millisecond
	}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts down the dispatcher, pipeline, index, store and provider.
func (s *Service) Close() error {
	s.dispatcher.Close()
	s.pipeline.Release()

	var errs []error
	if err := s.index.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
