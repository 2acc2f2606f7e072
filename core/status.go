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

// Status is the lifecycle state shared by Documents and Tasks.
//
// Legal transitions:
//
//	PENDING    -> PROCESSING | FAILED
//	PROCESSING -> PROCESSING | COMPLETED | FAILED
//	COMPLETED  -> PENDING
//	FAILED     -> PENDING
//
// COMPLETED and FAILED are terminal for the run that produced them: no
// transition moves a finished run forward again. The only way out is
// back to PENDING, which begins a fresh run when a document is
// re-submitted. PROCESSING -> PROCESSING is a permitted no-op so
// retries can refresh progress and timestamps without a state change.
// PENDING -> FAILED covers cancellation or watchdog expiry before a
// workflow starts.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state that no transition may leave.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to the given state is legal.
func (s Status) CanTransition(to Status) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}

// Transition validates a state change and returns the new state.
// An illegal transition returns ErrInvalidTransition; it indicates a
// programming error in the caller, not a retryable condition.
func Transition(from, to Status) (Status, error) {
	if !from.CanTransition(to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// SetStatus applies a lifecycle transition to the task.
func (t *Task) SetStatus(to Status) error {
	next, err := Transition(t.Status, to)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.Id, err)
	}
	t.Status = next
	return nil
}

// SetStatus applies a lifecycle transition to the document.
func (d *Document) SetStatus(to Status) error {
	next, err := Transition(d.Status, to)
	if err != nil {
		return fmt.Errorf("document %s: %w", d.Id, err)
	}
	d.Status = next
	return nil
}

// AdvanceProgress moves the task's progress forward while it is
// PROCESSING. Progress is monotonically non-decreasing: attempts to move
// it backwards are ignored, values outside [0,1] are clamped.
func (t *Task) AdvanceProgress(p float64) {
	if t.Status != StatusProcessing {
		return
	}
	if p > 1 {
		p = 1
	}
	if p > t.Progress {
		t.Progress = p
	}
}
