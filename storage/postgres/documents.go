package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
)

// CreateDocument stores a new document.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if _, err := s.conn(ctx).NewInsert().Model(documentToRow(doc)).Exec(ctx); err != nil {
		return fmt.Errorf("postgres: create document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := new(documentRow)
	err := s.conn(ctx).NewSelect().Model(row).Where("d.id = ?", string(id)).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
		}
		return nil, fmt.Errorf("postgres: get document: %w", err)
	}
	return row.toDocument(), nil
}

// GetDocumentByFilename retrieves the most recent document with the
// given filename.
func (s *Store) GetDocumentByFilename(ctx context.Context, filename string) (*core.Document, error) {
	row := new(documentRow)
	err := s.conn(ctx).NewSelect().
		Model(row).
		Where("d.filename = ?", filename).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %q", storage.ErrNotFound, filename)
		}
		return nil, fmt.Errorf("postgres: get document by filename: %w", err)
	}
	return row.toDocument(), nil
}

// ListDocuments returns a page of documents newest first plus the total count.
func (s *Store) ListDocuments(ctx context.Context, offset, limit int) ([]*core.Document, int, error) {
	if offset < 0 || limit < 0 {
		return nil, 0, fmt.Errorf("%w: offset=%d limit=%d", storage.ErrInvalidQuery, offset, limit)
	}
	var rows []documentRow
	q := s.conn(ctx).NewSelect().Model(&rows).Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list documents: %w", err)
	}
	docs := make([]*core.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toDocument()
	}
	return docs, total, nil
}

// SetDocumentStatus validates and applies a lifecycle transition.
func (s *Store) SetDocumentStatus(ctx context.Context, id core.ID, status core.Status, errorDetail string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if err := doc.SetStatus(status); err != nil {
			return err
		}
		doc.ErrorDetail = errorDetail
		doc.UpdatedAt = time.Now().UTC()

		_, err = s.conn(ctx).NewUpdate().
			Model(documentToRow(doc)).
			Column("status", "error_detail", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("postgres: set document status: %w", err)
		}
		return nil
	})
}

// DeleteDocument removes a document and its units in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, id core.ID) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		res, err := s.conn(ctx).NewDelete().
			Model((*documentRow)(nil)).
			Where("id = ?", string(id)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("postgres: delete document: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: delete document: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
		}

		_, err = s.conn(ctx).NewDelete().
			Model((*unitRow)(nil)).
			Where("document_id = ?", string(id)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("postgres: delete document units: %w", err)
		}
		return nil
	})
}
