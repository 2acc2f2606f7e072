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


package core

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Id and Filename must not be empty
//   - Status must be a defined lifecycle state
//
// NOT validated:
//   - ErrorDetail (only meaningful for FAILED documents)
//   - SizeBytes (zero is valid for empty uploads)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidArgument)
	}
	if doc.Id == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidArgument)
	}
	if doc.Filename == "" {
		return fmt.Errorf("%w: document filename is empty", ErrInvalidArgument)
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: document status %q", ErrInvalidArgument, doc.Status)
	}
	return nil
}

// ValidateTask validates a Task according to domain rules.
func ValidateTask(task *Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidArgument)
	}
	if task.Id == "" {
		return fmt.Errorf("%w: task id is empty", ErrInvalidArgument)
	}
	if task.Kind == "" {
		return fmt.Errorf("%w: task kind is empty", ErrInvalidArgument)
	}
	if !task.Status.Valid() {
		return fmt.Errorf("%w: task status %q", ErrInvalidArgument, task.Status)
	}
	if task.Progress < 0 || task.Progress > 1 {
		return fmt.Errorf("%w: task progress %v outside [0,1]", ErrInvalidArgument, task.Progress)
	}
	return nil
}

// ValidateUnitBatch validates the units produced by one segmentation
// step. All units must belong to the same document and carry contiguous
// zero-based sequence indices in slice order.
func ValidateUnitBatch(units []*Unit) error {
	for i, unit := range units {
		if unit == nil {
			return fmt.Errorf("%w: unit %d is nil", ErrInvalidArgument, i)
		}
		if unit.Content == "" {
			return fmt.Errorf("%w: unit %d content is empty", ErrInvalidArgument, i)
		}
		if unit.DocumentId == "" {
			return fmt.Errorf("%w: unit %d has no document", ErrInvalidArgument, i)
		}
		if unit.DocumentId != units[0].DocumentId {
			return fmt.Errorf("%w: unit %d belongs to a different document", ErrInvalidArgument, i)
		}
		if unit.SequenceIndex != i {
			return fmt.Errorf("%w: unit %d has sequence index %d", ErrInvalidArgument, i, unit.SequenceIndex)
		}
	}
	return nil
}
