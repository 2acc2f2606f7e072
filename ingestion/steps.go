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

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/segment"
	"github.com/poiesic/insightdocs/vectorindex"
)

// workflow carries the intermediate state of one ingestion run between
// steps.
type workflow struct {
	task    *core.Task
	doc     *core.Document
	locator string

	text    string
	units   []*core.Unit
	refs    []string
	vectors [][]float32

	summary          string
	summaryGenerated bool
}

// step is one stage of the ingestion workflow. The orchestrator runs
// steps in a fixed sequence; there is no runtime dispatch by name.
type step interface {
	name() string
	// retryable steps call an external capability; their transient
	// failures are retried with backoff. Non-retryable steps are pure
	// local computation whose failures are deterministic.
	retryable() bool
	run(ctx context.Context, w *workflow) error
}

// ingestStep fetches the raw object and extracts plain text from it.
type ingestStep struct{ p *Pipeline }

func (s ingestStep) name() string    { return "ingest" }
func (s ingestStep) retryable() bool { return true }

func (s ingestStep) run(ctx context.Context, w *workflow) error {
	raw, err := s.p.fetcher.Fetch(ctx, w.locator)
	if err != nil {
		return err
	}
	text, err := ExtractText(w.doc.DeclaredType, raw)
	if err != nil {
		return err
	}
	w.text = text
	return nil
}

// transformStep segments the extracted text into units.
type transformStep struct{ p *Pipeline }

func (s transformStep) name() string    { return "transform" }
func (s transformStep) retryable() bool { return false }

func (s transformStep) run(_ context.Context, w *workflow) error {
	chunks, err := segment.Split(w.text, s.p.targetSize, s.p.overlap)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: document %s produced no units", core.ErrData, w.doc.Id)
	}
	units := make([]*core.Unit, len(chunks))
	for i, chunk := range chunks {
		units[i] = &core.Unit{
			Id:             core.NewID(),
			DocumentId:     w.doc.Id,
			SequenceIndex:  i,
			Content:        chunk,
			EmbeddingModel: s.p.provider.EmbeddingModel(),
			EmbeddingDim:   s.p.provider.Dimension(),
		}
	}
	w.units = units
	return nil
}

// embedStep embeds every unit and writes the vectors to the index. The
// per-unit embedding calls fan out on the bounded worker pool and are
// joined before anything is written, so the batch is all-or-nothing.
type embedStep struct{ p *Pipeline }

func (s embedStep) name() string    { return "embed" }
func (s embedStep) retryable() bool { return true }

func (s embedStep) run(ctx context.Context, w *workflow) error {
	embedder := s.p.provider.Embedder()
	vectors := make([][]float32, len(w.units))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i, unit := range w.units {
		wg.Add(1)
		err := s.p.embedPool.Submit(func() {
			defer wg.Done()
			vec, err := embedder.EmbedText(ctx, unit.Content)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			vectors[i] = vec
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submit embedding work: %w", err)
		}
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	entries := make([]vectorindex.Entry, len(w.units))
	for i, unit := range w.units {
		entries[i] = vectorindex.Entry{
			ExternalID: core.VectorRefFromContent(unit.DocumentId, unit.SequenceIndex, unit.Content),
			Vector:     vectors[i],
			// The unit text rides along in the payload so retrieval can
			// assemble a context without a per-match store lookup.
			Payload: map[string]string{
				"document_id":    string(unit.DocumentId),
				"sequence_index": strconv.Itoa(unit.SequenceIndex),
				"text":           unit.Content,
			},
		}
	}
	refs, err := s.p.index.Upsert(ctx, entries)
	if err != nil {
		return err
	}
	for i, unit := range w.units {
		unit.VectorRef = refs[i]
	}
	w.vectors = vectors
	w.refs = refs
	return nil
}

// persistStep writes the unit batch to the metadata store. On failure
// the vector entries written by embedStep are rolled back best-effort;
// a failed rollback leaves orphan vectors for reconciliation and is
// logged, not escalated.
type persistStep struct{ p *Pipeline }

func (s persistStep) name() string    { return "persist" }
func (s persistStep) retryable() bool { return false }

func (s persistStep) run(ctx context.Context, w *workflow) error {
	if err := s.p.store.AddUnits(ctx, w.units...); err != nil {
		if len(w.refs) > 0 {
			if derr := s.p.index.Delete(context.WithoutCancel(ctx), w.refs); derr != nil {
				s.p.logger.Warn("vector rollback failed, orphan entries remain",
					"document_id", w.doc.Id, "refs", len(w.refs), "error", derr)
			}
		}
		return err
	}
	return nil
}

// summarizeStep asks the completion capability for a short summary of
// the document. It is the one step allowed to degrade gracefully.
type summarizeStep struct{ p *Pipeline }

func (s summarizeStep) name() string    { return "summarize" }
func (s summarizeStep) retryable() bool { return true }

func (s summarizeStep) run(ctx context.Context, w *workflow) error {
	input := w.text
	if input == "" {
		// Idempotent re-run: the extracted text is gone, rebuild it
		// from the persisted units.
		var parts []string
		for _, unit := range w.units {
			parts = append(parts, unit.Content)
		}
		input = joinBounded(parts, s.p.summaryInputChars)
	}
	if len(input) > s.p.summaryInputChars {
		input = input[:s.p.summaryInputChars]
	}
	prompt := fmt.Sprintf(
		"Summarize the following document in at most three sentences. Respond with the summary only.\n\n%s",
		input,
	)
	summary, err := s.p.provider.Completer().Complete(ctx, prompt, s.p.summaryMaxTokens)
	if err != nil {
		return err
	}
	w.summary = summary
	w.summaryGenerated = summary != ""
	return nil
}

func joinBounded(parts []string, maxChars int) string {
	var b []byte
	for _, part := range parts {
		if len(b) >= maxChars {
			break
		}
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, part...)
	}
	if len(b) > maxChars {
		b = b[:maxChars]
	}
	return string(b)
}
