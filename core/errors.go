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

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the pipeline or the retrieval
// service wraps exactly one of these so callers and monitoring can
// classify it with errors.Is.
var (
	// ErrInvalidArgument indicates bad caller input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransientCapability indicates a network or timeout failure
	// talking to an external capability. Retried with backoff up to a
	// cap, then escalated.
	ErrTransientCapability = errors.New("transient capability error")

	// ErrData indicates parsing or segmentation produced nothing usable.
	// Deterministic, never retried; surfaces as a task failure.
	ErrData = errors.New("data error")

	// ErrDimensionMismatch indicates an embedding dimension
	// configuration error. Fails fast at startup where possible.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidTransition indicates an illegal lifecycle state change,
	// a programming error that should never occur in correct operation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound indicates a referenced document or task is absent.
	ErrNotFound = errors.New("not found")

	// ErrCancelled indicates a task was cancelled before completion.
	ErrCancelled = errors.New("cancelled")
)

// Transient wraps err as a transient capability error, preserving the
// original cause for unwrapping.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientCapability, err)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientCapability)
}

// ErrorKind returns a stable label for the kind of err, for error
// details and monitoring. Unclassified errors report "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTransientCapability):
		return "transient_capability_error"
	case errors.Is(err, ErrData):
		return "data_error"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "internal"
	}
}
