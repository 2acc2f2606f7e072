package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/poiesic/insightdocs/core"
)

type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID           string    `bun:"id,pk"`
	Filename     string    `bun:"filename,notnull"`
	SizeBytes    int64     `bun:"size_bytes,notnull"`
	DeclaredType string    `bun:"declared_type,notnull"`
	Status       string    `bun:"status,notnull"`
	ErrorDetail  string    `bun:"error_detail"`
	OwnerID      string    `bun:"owner_id"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func documentToRow(doc *core.Document) *documentRow {
	return &documentRow{
		ID:           string(doc.Id),
		Filename:     doc.Filename,
		SizeBytes:    doc.SizeBytes,
		DeclaredType: doc.DeclaredType,
		Status:       string(doc.Status),
		ErrorDetail:  doc.ErrorDetail,
		OwnerID:      doc.OwnerId,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func (r *documentRow) toDocument() *core.Document {
	return &core.Document{
		Id:           core.ID(r.ID),
		Filename:     r.Filename,
		SizeBytes:    r.SizeBytes,
		DeclaredType: r.DeclaredType,
		Status:       core.Status(r.Status),
		ErrorDetail:  r.ErrorDetail,
		OwnerId:      r.OwnerID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type unitRow struct {
	bun.BaseModel `bun:"table:units,alias:u"`

	ID             string    `bun:"id,pk"`
	DocumentID     string    `bun:"document_id,notnull"`
	SequenceIndex  int       `bun:"sequence_index,notnull"`
	Content        string    `bun:"content,notnull"`
	VectorRef      string    `bun:"vector_ref"`
	EmbeddingModel string    `bun:"embedding_model"`
	EmbeddingDim   int       `bun:"embedding_dim"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func unitToRow(unit *core.Unit) *unitRow {
	return &unitRow{
		ID:             string(unit.Id),
		DocumentID:     string(unit.DocumentId),
		SequenceIndex:  unit.SequenceIndex,
		Content:        unit.Content,
		VectorRef:      unit.VectorRef,
		EmbeddingModel: unit.EmbeddingModel,
		EmbeddingDim:   unit.EmbeddingDim,
		CreatedAt:      unit.CreatedAt,
	}
}

func (r *unitRow) toUnit() *core.Unit {
	return &core.Unit{
		Id:             core.ID(r.ID),
		DocumentId:     core.ID(r.DocumentID),
		SequenceIndex:  r.SequenceIndex,
		Content:        r.Content,
		VectorRef:      r.VectorRef,
		EmbeddingModel: r.EmbeddingModel,
		EmbeddingDim:   r.EmbeddingDim,
		CreatedAt:      r.CreatedAt,
	}
}

type taskRow struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID          string    `bun:"id,pk"`
	Kind        string    `bun:"kind,notnull"`
	Status      string    `bun:"status,notnull"`
	Progress    float64   `bun:"progress,notnull"`
	Result      []byte    `bun:"result,type:jsonb,nullzero"`
	ErrorDetail string    `bun:"error_detail"`
	DocumentID  *string   `bun:"document_id,nullzero"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func taskToRow(task *core.Task) (*taskRow, error) {
	row := &taskRow{
		ID:          string(task.Id),
		Kind:        string(task.Kind),
		Status:      string(task.Status),
		Progress:    task.Progress,
		ErrorDetail: task.ErrorDetail,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if task.DocumentId != nil {
		id := string(*task.DocumentId)
		row.DocumentID = &id
	}
	if task.Result != nil {
		data, err := json.Marshal(task.Result)
		if err != nil {
			return nil, fmt.Errorf("postgres: encode task result: %w", err)
		}
		row.Result = data
	}
	return row, nil
}

func (r *taskRow) toTask() (*core.Task, error) {
	task := &core.Task{
		Id:          core.ID(r.ID),
		Kind:        core.TaskKind(r.Kind),
		Status:      core.Status(r.Status),
		Progress:    r.Progress,
		ErrorDetail: r.ErrorDetail,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DocumentID != nil {
		id := core.ID(*r.DocumentID)
		task.DocumentId = &id
	}
	if len(r.Result) > 0 {
		var result core.TaskResult
		if err := json.Unmarshal(r.Result, &result); err != nil {
			return nil, fmt.Errorf("postgres: decode task result: %w", err)
		}
		task.Result = &result
	}
	return task, nil
}

type queryRow struct {
	bun.BaseModel `bun:"table:query_records,alias:q"`

	ID        string    `bun:"id,pk"`
	Query     string    `bun:"query,notnull"`
	Answer    string    `bun:"answer"`
	LatencyMs int64     `bun:"latency_ms,notnull"`
	Sources   []byte    `bun:"sources,type:jsonb,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func queryToRow(record *core.QueryRecord) (*queryRow, error) {
	row := &queryRow{
		ID:        string(record.Id),
		Query:     record.Query,
		Answer:    record.Answer,
		LatencyMs: record.Latency.Milliseconds(),
		CreatedAt: record.CreatedAt,
	}
	if len(record.Sources) > 0 {
		data, err := json.Marshal(record.Sources)
		if err != nil {
			return nil, fmt.Errorf("postgres: encode query sources: %w", err)
		}
		row.Sources = data
	}
	return row, nil
}

func (r *queryRow) toQueryRecord() (*core.QueryRecord, error) {
	record := &core.QueryRecord{
		Id:        core.ID(r.ID),
		Query:     r.Query,
		Answer:    r.Answer,
		Latency:   time.Duration(r.LatencyMs) * time.Millisecond,
		CreatedAt: r.CreatedAt,
	}
	if len(r.Sources) > 0 {
		if err := json.Unmarshal(r.Sources, &record.Sources); err != nil {
			return nil, fmt.Errorf("postgres: decode query sources: %w", err)
		}
	}
	return record, nil
}
