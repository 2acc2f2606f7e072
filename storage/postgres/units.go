package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/insightdocs/core"
)

// AddUnits stores the units in a single bulk insert, so either the whole
// batch becomes visible or none of it does.
func (s *Store) AddUnits(ctx context.Context, units ...*core.Unit) error {
	if len(units) == 0 {
		return nil
	}
	if err := core.ValidateUnitBatch(units); err != nil {
		return err
	}
	now := time.Now().UTC()
	rows := make([]*unitRow, len(units))
	for i, unit := range units {
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = now
		}
		rows[i] = unitToRow(unit)
	}
	if _, err := s.conn(ctx).NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("postgres: add units: %w", err)
	}
	return nil
}

// GetUnitsForDocument returns a document's units ordered by sequence index.
func (s *Store) GetUnitsForDocument(ctx context.Context, documentID core.ID) ([]*core.Unit, error) {
	var rows []unitRow
	err := s.conn(ctx).NewSelect().
		Model(&rows).
		Where("document_id = ?", string(documentID)).
		Order("sequence_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: get units: %w", err)
	}
	units := make([]*core.Unit, len(rows))
	for i := range rows {
		units[i] = rows[i].toUnit()
	}
	return units, nil
}

// CountUnitsForDocument returns the number of persisted units for a document.
func (s *Store) CountUnitsForDocument(ctx context.Context, documentID core.ID) (int, error) {
	count, err := s.conn(ctx).NewSelect().
		Model((*unitRow)(nil)).
		Where("document_id = ?", string(documentID)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: count units: %w", err)
	}
	return count, nil
}

// VectorRefsForDocument returns the non-empty vector references of a
// document's units.
func (s *Store) VectorRefsForDocument(ctx context.Context, documentID core.ID) ([]string, error) {
	var refs []string
	err := s.conn(ctx).NewSelect().
		Model((*unitRow)(nil)).
		Column("vector_ref").
		Where("document_id = ?", string(documentID)).
		Where("vector_ref <> ''").
		Order("sequence_index ASC").
		Scan(ctx, &refs)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector refs: %w", err)
	}
	return refs, nil
}
