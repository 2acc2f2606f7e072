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


package storage

import (
	"context"
	"time"

	"github.com/poiesic/insightdocs/core"
)

// Repository provides common storage operations shared across all
// repositories. Implementations must be thread-safe and support
// concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository

	// CreateDocument stores a new document.
	// Sets CreatedAt/UpdatedAt timestamps if not already set.
	CreateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocumentByFilename retrieves the most recent document with the
	// given filename. Returns ErrNotFound if none exists.
	GetDocumentByFilename(ctx context.Context, filename string) (*core.Document, error)

	// ListDocuments returns a page of documents ordered by creation
	// time descending, plus the total count.
	ListDocuments(ctx context.Context, offset, limit int) ([]*core.Document, int, error)

	// SetDocumentStatus validates and applies a lifecycle transition.
	// Returns core.ErrInvalidTransition for an illegal transition and
	// ErrNotFound if the document doesn't exist.
	SetDocumentStatus(ctx context.Context, id core.ID, status core.Status, errorDetail string) error

	// DeleteDocument removes a document and cascades to its units.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error
}

// UnitRepository provides operations for managing retrieval units.
type UnitRepository interface {
	Repository

	// AddUnits stores the units of one segmentation step atomically:
	// either all become visible or none do.
	AddUnits(ctx context.Context, units ...*core.Unit) error

	// GetUnitsForDocument returns a document's units ordered by
	// sequence index.
	GetUnitsForDocument(ctx context.Context, documentID core.ID) ([]*core.Unit, error)

	// CountUnitsForDocument returns the number of units persisted for a
	// document. Used by the orchestrator's idempotency check.
	CountUnitsForDocument(ctx context.Context, documentID core.ID) (int, error)

	// VectorRefsForDocument returns the vector references of a
	// document's units, for index invalidation on delete.
	VectorRefsForDocument(ctx context.Context, documentID core.ID) ([]string, error)
}

// TaskRepository provides operations for managing workflow tasks.
type TaskRepository interface {
	Repository

	// CreateTask stores a new task.
	CreateTask(ctx context.Context, task *core.Task) error

	// GetTask retrieves a task by ID.
	// Returns ErrNotFound if the task doesn't exist.
	GetTask(ctx context.Context, id core.ID) (*core.Task, error)

	// UpdateTask persists the task's current status, progress, result
	// and error detail, refreshing UpdatedAt.
	// Returns ErrNotFound if the task doesn't exist.
	UpdateTask(ctx context.Context, task *core.Task) error

	// TasksForDocument returns all tasks referencing a document.
	TasksForDocument(ctx context.Context, documentID core.ID) ([]*core.Task, error)

	// TerminalTasksBefore returns tasks in a terminal status last
	// updated before the cutoff. Used by housekeeping.
	TerminalTasksBefore(ctx context.Context, cutoff time.Time) ([]*core.Task, error)

	// ProcessingTasksBefore returns tasks still PROCESSING whose last
	// update is older than the cutoff. Used by the watchdog.
	ProcessingTasksBefore(ctx context.Context, cutoff time.Time) ([]*core.Task, error)

	// DeleteTasks removes tasks by ID. Missing IDs are ignored.
	DeleteTasks(ctx context.Context, ids ...core.ID) error
}

// QueryRepository provides the append-only query audit log.
type QueryRepository interface {
	Repository

	// AddQueryRecord appends one immutable query record.
	AddQueryRecord(ctx context.Context, record *core.QueryRecord) error

	// RecentQueryRecords returns up to limit records, newest first.
	RecentQueryRecords(ctx context.Context, limit int) ([]*core.QueryRecord, error)
}

// Store aggregates all repositories over one backend.
type Store interface {
	DocumentRepository
	UnitRepository
	TaskRepository
	QueryRepository
}
