package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
)

// AddQueryRecord appends one immutable query record.
func (s *Store) AddQueryRecord(ctx context.Context, record *core.QueryRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	row, err := queryToRow(record)
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("postgres: add query record: %w", err)
	}
	return nil
}

// RecentQueryRecords returns up to limit records, newest first.
func (s *Store) RecentQueryRecords(ctx context.Context, limit int) ([]*core.QueryRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit=%d", storage.ErrInvalidQuery, limit)
	}
	var rows []queryRow
	err := s.conn(ctx).NewSelect().
		Model(&rows).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent query records: %w", err)
	}
	records := make([]*core.QueryRecord, len(rows))
	for i := range rows {
		record, err := rows[i].toQueryRecord()
		if err != nil {
			return nil, err
		}
		records[i] = record
	}
	return records, nil
}
