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


package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a nil store is provided.
	ErrStoreRequired = errors.New("store is required")

	// ErrIndexRequired is returned when a nil vector index is provided.
	ErrIndexRequired = errors.New("vector index is required")

	// ErrProviderRequired is returned when a nil AI provider is provided.
	ErrProviderRequired = errors.New("AI provider is required")

	// ErrFetcherRequired is returned when a nil object fetcher is provided.
	ErrFetcherRequired = errors.New("object fetcher is required")

	// ErrPipelineRequired is returned when a nil pipeline is provided.
	ErrPipelineRequired = errors.New("pipeline is required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrIngestionInFlight is returned when a submission targets a
	// document that already has an unfinished ingestion workflow.
	ErrIngestionInFlight = errors.New("ingestion already in flight for document")

	// ErrDispatcherClosed is returned when submitting to a closed dispatcher.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)
