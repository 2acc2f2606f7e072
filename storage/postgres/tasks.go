package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
)

// CreateTask stores a new task.
func (s *Store) CreateTask(ctx context.Context, task *core.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	row, err := taskToRow(task)
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id core.ID) (*core.Task, error) {
	row := new(taskRow)
	err := s.conn(ctx).NewSelect().Model(row).Where("t.id = ?", string(id)).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %s", storage.ErrNotFound, id)
		}
		return nil, fmt.Errorf("postgres: get task: %w", err)
	}
	return row.toTask()
}

// UpdateTask persists the task's mutable fields and refreshes UpdatedAt.
func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	task.UpdatedAt = time.Now().UTC()
	row, err := taskToRow(task)
	if err != nil {
		return err
	}
	res, err := s.conn(ctx).NewUpdate().
		Model(row).
		Column("status", "progress", "result", "error_detail", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s", storage.ErrNotFound, task.Id)
	}
	return nil
}

// TasksForDocument returns all tasks referencing a document, newest first.
func (s *Store) TasksForDocument(ctx context.Context, documentID core.ID) ([]*core.Task, error) {
	var rows []taskRow
	err := s.conn(ctx).NewSelect().
		Model(&rows).
		Where("document_id = ?", string(documentID)).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: tasks for document: %w", err)
	}
	return rowsToTasks(rows)
}

// TerminalTasksBefore returns COMPLETED or FAILED tasks last updated
// before the cutoff.
func (s *Store) TerminalTasksBefore(ctx context.Context, cutoff time.Time) ([]*core.Task, error) {
	var rows []taskRow
	err := s.conn(ctx).NewSelect().
		Model(&rows).
		Where("status IN (?)", bun.In([]string{string(core.StatusCompleted), string(core.StatusFailed)})).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: terminal tasks: %w", err)
	}
	return rowsToTasks(rows)
}

// ProcessingTasksBefore returns tasks still PROCESSING whose last update
// is older than the cutoff.
func (s *Store) ProcessingTasksBefore(ctx context.Context, cutoff time.Time) ([]*core.Task, error) {
	var rows []taskRow
	err := s.conn(ctx).NewSelect().
		Model(&rows).
		Where("status = ?", string(core.StatusProcessing)).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: processing tasks: %w", err)
	}
	return rowsToTasks(rows)
}

// DeleteTasks removes tasks by ID. Missing IDs are ignored.
func (s *Store) DeleteTasks(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	_, err := s.conn(ctx).NewDelete().
		Model((*taskRow)(nil)).
		Where("id IN (?)", bun.In(raw)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("postgres: delete tasks: %w", err)
	}
	return nil
}

func rowsToTasks(rows []taskRow) ([]*core.Task, error) {
	tasks := make([]*core.Task, len(rows))
	for i := range rows {
		task, err := rows[i].toTask()
		if err != nil {
			return nil, err
		}
		tasks[i] = task
	}
	return tasks, nil
}
