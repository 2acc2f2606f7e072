package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	doc := &Document{Id: NewID(), Filename: "report.pdf", Status: StatusPending}
	require.NoError(t, ValidateDocument(doc))

	assert.ErrorIs(t, ValidateDocument(nil), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateDocument(&Document{Filename: "a", Status: StatusPending}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateDocument(&Document{Id: NewID(), Status: StatusPending}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateDocument(&Document{Id: NewID(), Filename: "a", Status: "BOGUS"}), ErrInvalidArgument)
}

func TestValidateTask(t *testing.T) {
	task := &Task{Id: NewID(), Kind: TaskKindIngest, Status: StatusPending}
	require.NoError(t, ValidateTask(task))

	assert.ErrorIs(t, ValidateTask(nil), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateTask(&Task{Id: NewID(), Status: StatusPending}), ErrInvalidArgument)

	task.Progress = 1.2
	assert.ErrorIs(t, ValidateTask(task), ErrInvalidArgument)
}

func TestValidateUnitBatch(t *testing.T) {
	docID := NewID()
	units := []*Unit{
		{Id: NewID(), DocumentId: docID, SequenceIndex: 0, Content: "first"},
		{Id: NewID(), DocumentId: docID, SequenceIndex: 1, Content: "second"},
	}
	require.NoError(t, ValidateUnitBatch(units))
	require.NoError(t, ValidateUnitBatch(nil))

	gap := []*Unit{
		{Id: NewID(), DocumentId: docID, SequenceIndex: 0, Content: "first"},
		{Id: NewID(), DocumentId: docID, SequenceIndex: 2, Content: "third"},
	}
	assert.ErrorIs(t, ValidateUnitBatch(gap), ErrInvalidArgument)

	mixed := []*Unit{
		{Id: NewID(), DocumentId: docID, SequenceIndex: 0, Content: "first"},
		{Id: NewID(), DocumentId: NewID(), SequenceIndex: 1, Content: "second"},
	}
	assert.ErrorIs(t, ValidateUnitBatch(mixed), ErrInvalidArgument)
}

func TestVectorRefFromContent(t *testing.T) {
	docID := NewID()
	ref := VectorRefFromContent(docID, 0, "some content")

	assert.NotEmpty(t, ref)
	assert.Equal(t, ref, VectorRefFromContent(docID, 0, "some content"), "same inputs must produce the same ref")
	assert.NotEqual(t, ref, VectorRefFromContent(docID, 1, "some content"))
	assert.NotEqual(t, ref, VectorRefFromContent(docID, 0, "other content"))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "transient_capability_error", ErrorKind(Transient(assert.AnError)))
	assert.Equal(t, "internal", ErrorKind(assert.AnError))
	assert.Equal(t, "", ErrorKind(nil))
	assert.True(t, IsTransient(Transient(assert.AnError)))
	assert.False(t, IsTransient(assert.AnError))
}
