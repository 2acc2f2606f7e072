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


package mock

import "github.com/poiesic/insightdocs/ai"

// Provider is a test double for ai.Provider.
// It aggregates mock embedder and completer instances.
type Provider struct {
	embedder  *Embedder
	completer *Completer
	model     string
	dimension int
}

// NewProvider creates a new mock provider with default mock services of
// the given embedding dimension.
//
// Returns the concrete type so tests can reach the underlying doubles
// for call-count assertions and behavior injection.
func NewProvider(dimension int) *Provider {
	return &Provider{
		embedder:  NewEmbedder(dimension),
		completer: NewCompleter("mock answer"),
		model:     "mock-embedding",
		dimension: dimension,
	}
}

// Embedder returns the mock embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Completer returns the mock completer.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// EmbeddingModel returns the mock model identifier.
func (p *Provider) EmbeddingModel() string {
	return p.model
}

// Dimension returns the configured embedding dimension.
func (p *Provider) Dimension() int {
	return p.dimension
}

// Close is a no-op for mock provider.
func (p *Provider) Close() error {
	return nil
}

// MockEmbedder returns the underlying mock embedder for test assertions.
func (p *Provider) MockEmbedder() *Embedder {
	return p.embedder
}

// MockCompleter returns the underlying mock completer for test assertions.
func (p *Provider) MockCompleter() *Completer {
	return p.completer
}
