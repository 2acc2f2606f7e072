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


// Package memory implements the storage repositories on in-process maps.
// It backs tests and local runs; every operation is individually atomic,
// and WithTransaction serializes callers rather than providing rollback.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
)

// Store implements storage.Store in memory.
type Store struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	closed bool

	documents map[core.ID]*core.Document
	units     map[core.ID][]*core.Unit // keyed by document ID, ordered by sequence
	tasks     map[core.ID]*core.Task
	queries   []*core.QueryRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		documents: make(map[core.ID]*core.Document),
		units:     make(map[core.ID][]*core.Unit),
		tasks:     make(map[core.ID]*core.Task),
	}
}

// WithTransaction serializes fn against other transactions. Mutations
// inside fn are applied immediately and are not rolled back on error.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return fn(ctx)
}

// Close marks the store closed. Subsequent operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

func copyDocument(doc *core.Document) *core.Document {
	out := *doc
	return &out
}

func copyUnit(unit *core.Unit) *core.Unit {
	out := *unit
	return &out
}

func copyTask(task *core.Task) *core.Task {
	out := *task
	if task.Result != nil {
		result := *task.Result
		out.Result = &result
	}
	if task.DocumentId != nil {
		id := *task.DocumentId
		out.DocumentId = &id
	}
	return &out
}

func copyQueryRecord(record *core.QueryRecord) *core.QueryRecord {
	out := *record
	out.Sources = append([]core.QuerySource(nil), record.Sources...)
	return &out
}

// CreateDocument stores a new document.
func (s *Store) CreateDocument(_ context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	if _, ok := s.documents[doc.Id]; ok {
		return fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, doc.Id)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	s.documents[doc.Id] = copyDocument(doc)
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id core.ID) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return copyDocument(doc), nil
}

// GetDocumentByFilename retrieves the most recent document with the
// given filename.
func (s *Store) GetDocumentByFilename(_ context.Context, filename string) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	var found *core.Document
	for _, doc := range s.documents {
		if doc.Filename != filename {
			continue
		}
		if found == nil || doc.CreatedAt.After(found.CreatedAt) {
			found = doc
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: document %q", storage.ErrNotFound, filename)
	}
	return copyDocument(found), nil
}

// ListDocuments returns a page of documents newest first plus the total count.
func (s *Store) ListDocuments(_ context.Context, offset, limit int) ([]*core.Document, int, error) {
	if offset < 0 || limit < 0 {
		return nil, 0, fmt.Errorf("%w: offset=%d limit=%d", storage.ErrInvalidQuery, offset, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, 0, storage.ErrStorageClosed
	}
	all := make([]*core.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		all = append(all, doc)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Id < all[j].Id
	})
	total := len(all)
	if offset >= total {
		return []*core.Document{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	page := make([]*core.Document, len(all))
	for i, doc := range all {
		page[i] = copyDocument(doc)
	}
	return page, total, nil
}

// SetDocumentStatus validates and applies a lifecycle transition.
func (s *Store) SetDocumentStatus(_ context.Context, id core.ID, status core.Status, errorDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	if err := doc.SetStatus(status); err != nil {
		return err
	}
	doc.ErrorDetail = errorDetail
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteDocument removes a document and its units.
func (s *Store) DeleteDocument(_ context.Context, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	delete(s.documents, id)
	delete(s.units, id)
	return nil
}

// AddUnits stores the units of one segmentation step atomically.
func (s *Store) AddUnits(_ context.Context, units ...*core.Unit) error {
	if len(units) == 0 {
		return nil
	}
	if err := core.ValidateUnitBatch(units); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	now := time.Now().UTC()
	documentID := units[0].DocumentId
	batch := make([]*core.Unit, len(units))
	for i, unit := range units {
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = now
		}
		batch[i] = copyUnit(unit)
	}
	s.units[documentID] = append(s.units[documentID], batch...)
	return nil
}

// GetUnitsForDocument returns a document's units ordered by sequence index.
func (s *Store) GetUnitsForDocument(_ context.Context, documentID core.ID) ([]*core.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	stored := s.units[documentID]
	units := make([]*core.Unit, len(stored))
	for i, unit := range stored {
		units[i] = copyUnit(unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].SequenceIndex < units[j].SequenceIndex })
	return units, nil
}

// CountUnitsForDocument returns the number of persisted units for a document.
func (s *Store) CountUnitsForDocument(_ context.Context, documentID core.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, storage.ErrStorageClosed
	}
	return len(s.units[documentID]), nil
}

// VectorRefsForDocument returns the non-empty vector references of a
// document's units.
func (s *Store) VectorRefsForDocument(_ context.Context, documentID core.ID) ([]string, error) {
	units, err := s.GetUnitsForDocument(context.Background(), documentID)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(units))
	for _, unit := range units {
		if unit.Embedded() {
			refs = append(refs, unit.VectorRef)
		}
	}
	return refs, nil
}

// CreateTask stores a new task.
func (s *Store) CreateTask(_ context.Context, task *core.Task) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	if _, ok := s.tasks[task.Id]; ok {
		return fmt.Errorf("%w: task %s", storage.ErrDuplicateKey, task.Id)
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	s.tasks[task.Id] = copyTask(task)
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(_ context.Context, id core.ID) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", storage.ErrNotFound, id)
	}
	return copyTask(task), nil
}

// UpdateTask persists the task's mutable fields and refreshes UpdatedAt.
func (s *Store) UpdateTask(_ context.Context, task *core.Task) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	stored, ok := s.tasks[task.Id]
	if !ok {
		return fmt.Errorf("%w: task %s", storage.ErrNotFound, task.Id)
	}
	task.UpdatedAt = time.Now().UTC()
	updated := copyTask(task)
	updated.CreatedAt = stored.CreatedAt
	s.tasks[task.Id] = updated
	return nil
}

// TasksForDocument returns all tasks referencing a document, newest first.
func (s *Store) TasksForDocument(_ context.Context, documentID core.ID) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	var tasks []*core.Task
	for _, task := range s.tasks {
		if task.DocumentId != nil && *task.DocumentId == documentID {
			tasks = append(tasks, copyTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// TerminalTasksBefore returns COMPLETED or FAILED tasks last updated
// before the cutoff.
func (s *Store) TerminalTasksBefore(_ context.Context, cutoff time.Time) ([]*core.Task, error) {
	return s.tasksBefore(cutoff, func(task *core.Task) bool { return task.Status.Terminal() })
}

// ProcessingTasksBefore returns tasks still PROCESSING whose last update
// is older than the cutoff.
func (s *Store) ProcessingTasksBefore(_ context.Context, cutoff time.Time) ([]*core.Task, error) {
	return s.tasksBefore(cutoff, func(task *core.Task) bool { return task.Status == core.StatusProcessing })
}

func (s *Store) tasksBefore(cutoff time.Time, match func(*core.Task) bool) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	var tasks []*core.Task
	for _, task := range s.tasks {
		if match(task) && task.UpdatedAt.Before(cutoff) {
			tasks = append(tasks, copyTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt) })
	return tasks, nil
}

// DeleteTasks removes tasks by ID. Missing IDs are ignored.
func (s *Store) DeleteTasks(_ context.Context, ids ...core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	for _, id := range ids {
		delete(s.tasks, id)
	}
	return nil
}

// AddQueryRecord appends one immutable query record.
func (s *Store) AddQueryRecord(_ context.Context, record *core.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.queries = append(s.queries, copyQueryRecord(record))
	return nil
}

// RecentQueryRecords returns up to limit records, newest first.
func (s *Store) RecentQueryRecords(_ context.Context, limit int) ([]*core.QueryRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit=%d", storage.ErrInvalidQuery, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	records := make([]*core.QueryRecord, 0, limit)
	for i := len(s.queries) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, copyQueryRecord(s.queries[i]))
	}
	return records, nil
}
