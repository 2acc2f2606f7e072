package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for domain entities.
type ID string

// NewID generates a random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// VectorRefFromContent derives a deterministic vector-entry reference from
// unit content and its position. Re-running ingestion for the same document
// therefore upserts the same entries instead of duplicating them.
func VectorRefFromContent(documentID ID, sequenceIndex int, content string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(documentID))
	h.Write([]byte{byte(sequenceIndex >> 24), byte(sequenceIndex >> 16), byte(sequenceIndex >> 8), byte(sequenceIndex)})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// TaskKind identifies the workflow a task executes.
type TaskKind string

const (
	// TaskKindIngest is the document ingestion workflow.
	TaskKindIngest TaskKind = "document_ingest"
	// TaskKindMaintenance covers housekeeping runs not tied to a document.
	TaskKindMaintenance TaskKind = "maintenance"
)

// Document is an uploaded file tracked through ingestion.
// It owns its Units; deleting a document cascades to them.
type Document struct {
	Id           ID
	Filename     string
	SizeBytes    int64
	DeclaredType string // file type as declared at upload, e.g. "pdf", "txt"
	Status       Status
	ErrorDetail  string
	OwnerId      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Unit is a retrievable text chunk derived from a document.
// Units of a document are created in a single batch with contiguous
// zero-based sequence indices and are never reordered.
type Unit struct {
	Id             ID
	DocumentId     ID
	SequenceIndex  int
	Content        string
	VectorRef      string // empty until the embedding step succeeds, immutable after
	EmbeddingModel string
	EmbeddingDim   int
	CreatedAt      time.Time
}

// Embedded reports whether the unit has an entry in the vector index.
func (u *Unit) Embedded() bool {
	return u.VectorRef != ""
}

// TaskResult is the aggregate outcome of a completed workflow.
type TaskResult struct {
	UnitCount        int    `json:"unit_count"`
	VectorCount      int    `json:"vector_count"`
	SummaryGenerated bool   `json:"summary_generated"`
	Summary          string `json:"summary,omitempty"`
}

// Task is the externally observable handle for one orchestrated workflow
// run. It is created before the workflow starts and is the last thing
// updated when the workflow terminates.
type Task struct {
	Id          ID
	Kind        TaskKind
	Status      Status
	Progress    float64 // fractional progress in [0,1]
	Result      *TaskResult
	ErrorDetail string
	DocumentId  *ID // nil for task kinds unrelated to a document
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QuerySource references a document that contributed to an answer.
type QuerySource struct {
	DocumentId   ID      `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Score        float32 `json:"score"`
}

// QueryRecord is the immutable audit entry for one query execution.
type QueryRecord struct {
	Id        ID
	Query     string
	Answer    string
	Latency   time.Duration
	Sources   []QuerySource
	CreatedAt time.Time
}
