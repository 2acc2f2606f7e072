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


package segment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/poiesic/insightdocs/core"
)

// Split divides text into ordered, overlapping chunks suitable for
// retrieval indexing. Text is first split into sentence-like spans on
// terminal punctuation followed by whitespace; spans are then packed
// into chunks of at most targetSize characters, with up to overlap
// characters of trailing spans carried into the next chunk.
//
// overlap is clamped to [0, targetSize-1] so every chunk makes forward
// progress. A single span longer than targetSize is emitted whole;
// content is never dropped or split mid-span. Empty input yields an
// empty slice.
func Split(text string, targetSize, overlap int) ([]string, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d", core.ErrInvalidArgument, targetSize)
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize - 1
	}

	spans := splitSpans(text)
	if len(spans) == 0 {
		return []string{}, nil
	}

	var chunks []string
	var buf []string
	bufLen := 0

	for _, span := range spans {
		joined := bufLen + len(span)
		if len(buf) > 0 {
			joined++ // join space
		}

		if joined > targetSize && len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, " "))

			// Seed the next buffer with trailing spans of the closed
			// chunk, newest first, as long as they fit in the overlap.
			var seed []string
			seedLen := 0
			for i := len(buf) - 1; i >= 0; i-- {
				add := len(buf[i])
				if seedLen > 0 {
					add++
				}
				if seedLen+add > overlap {
					break
				}
				seed = append([]string{buf[i]}, seed...)
				seedLen += add
			}

			buf = append(seed, span)
			bufLen = seedLen + len(span)
			if seedLen > 0 {
				bufLen++
			}
			continue
		}

		buf = append(buf, span)
		bufLen = joined
	}

	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, " "))
	}
	return chunks, nil
}

// splitSpans breaks text into sentence-like spans. A span ends at a run
// of terminal punctuation (. ! ?) followed by whitespace or end of
// input. Trailing text without terminal punctuation forms a final span.
func splitSpans(text string) []string {
	runes := []rune(text)
	var spans []string
	start := 0

	appendSpan := func(end int) {
		span := strings.TrimSpace(string(runes[start:end]))
		if span != "" {
			spans = append(spans, span)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Absorb a run of terminal punctuation ("...", "?!").
		j := i
		for j+1 < len(runes) && isTerminal(runes[j+1]) {
			j++
		}
		if j+1 >= len(runes) || unicode.IsSpace(runes[j+1]) {
			appendSpan(j + 1)
		}
		i = j
	}
	if start < len(runes) {
		appendSpan(len(runes))
	}
	return spans
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
