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


package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/insightdocs/ai"
	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/storage"
	"github.com/poiesic/insightdocs/vectorindex"
)

const (
	// NoMatchAnswer is the fixed response when the index has nothing
	// relevant; no completion call is made for it.
	NoMatchAnswer = "No relevant documents found."

	minTopK = 1
	maxTopK = 50
)

// Response is the result of one retrieval query.
type Response struct {
	Answer  string
	Sources []core.QuerySource
	Latency time.Duration

	// Confidence is optional and absent unless a scoring policy is
	// configured; none is by default.
	Confidence *float64
}

// Service answers questions from indexed document content.
// Requests are independent and may run concurrently without ordering.
type Service struct {
	store    storage.Store
	index    vectorindex.Index
	provider ai.Provider
	logger   *slog.Logger

	perSourceChars  int
	answerMaxTokens int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithPerSourceChars caps the characters each retrieved unit may
// contribute to the prompt context.
func WithPerSourceChars(n int) ServiceOption {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("%w: per-source chars %d", core.ErrInvalidArgument, n)
		}
		s.perSourceChars = n
		return nil
	}
}

// WithAnswerMaxTokens bounds the completion length.
func WithAnswerMaxTokens(n int) ServiceOption {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("%w: max tokens %d", core.ErrInvalidArgument, n)
		}
		s.answerMaxTokens = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a retrieval service. The provider and index must
// agree on the embedding dimension; a mismatch fails at construction.
func NewService(store storage.Store, index vectorindex.Index, provider ai.Provider, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if provider.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("%w: provider dimension %d, index dimension %d",
			core.ErrDimensionMismatch, provider.Dimension(), index.Dimension())
	}

	s := &Service{
		store:           store,
		index:           index,
		provider:        provider,
		logger:          slog.Default(),
		perSourceChars:  500,
		answerMaxTokens: 512,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Answer embeds the query, searches the index, and generates an answer
// strictly from the retrieved context. topK is clamped to [1, 50].
//
// When the index returns no matches, Answer returns the fixed
// NoMatchAnswer without calling the completion capability. The query
// record is persisted either way; a persistence failure is logged and
// does not invalidate the answer.
func (s *Service) Answer(ctx context.Context, queryText string, topK int) (*Response, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, fmt.Errorf("%w: query is empty", core.ErrInvalidArgument)
	}
	if topK < minTopK {
		topK = minTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	start := time.Now()

	vector, err := s.provider.Embedder().EmbedText(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	if len(matches) == 0 {
		resp := &Response{Answer: NoMatchAnswer, Sources: []core.QuerySource{}, Latency: 0}
		s.persistRecord(ctx, queryText, resp)
		return resp, nil
	}

	blocks := make([]contextBlock, 0, len(matches))
	sources := make([]core.QuerySource, 0, len(matches))
	for _, match := range matches {
		docID := core.ID(match.Payload["document_id"])
		name := s.documentName(ctx, docID)
		blocks = append(blocks, contextBlock{
			documentName: name,
			text:         truncate(match.Payload["text"], s.perSourceChars),
		})
		sources = append(sources, core.QuerySource{
			DocumentId:   docID,
			DocumentName: name,
			Score:        match.Score,
		})
	}

	answer, err := s.provider.Completer().Complete(ctx, buildPrompt(queryText, blocks), s.answerMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	resp := &Response{
		Answer:  answer,
		Sources: sources,
		Latency: time.Since(start),
	}
	s.persistRecord(ctx, queryText, resp)
	return resp, nil
}

// RecentQueries returns up to limit query records, newest first.
func (s *Service) RecentQueries(ctx context.Context, limit int) ([]*core.QueryRecord, error) {
	return s.store.RecentQueryRecords(ctx, limit)
}

// documentName resolves a source document's filename. A document
// deleted after indexing reports as "unknown", not an error.
func (s *Service) documentName(ctx context.Context, id core.ID) string {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("source document lookup failed", "document_id", id, "error", err)
		}
		return "unknown"
	}
	return doc.Filename
}

func (s *Service) persistRecord(ctx context.Context, queryText string, resp *Response) {
	record := &core.QueryRecord{
		Id:      core.NewID(),
		Query:   queryText,
		Answer:  resp.Answer,
		Latency: resp.Latency,
		Sources: resp.Sources,
	}
	if err := s.store.AddQueryRecord(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Warn("query record persistence failed", "error", err)
	}
}
