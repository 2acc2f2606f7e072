package segment

import (
	"strings"
	"testing"

	"github.com/poiesic/insightdocs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBySentence(t *testing.T) {
	chunks, err := Split("A. B. C.", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.", "B.", "C."}, chunks)
}

func TestSplitEmptyInput(t *testing.T) {
	chunks, err := Split("", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split("   \n\t ", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitInvalidTargetSize(t *testing.T) {
	_, err := Split("some text", 0, 0)
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = Split("some text", -5, 0)
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestSplitOverlapClamping(t *testing.T) {
	text := "One sentence here. Another one follows. And a third. Then a fourth. Finally a fifth."

	clamped, err := Split(text, 40, 39)
	require.NoError(t, err)

	equal, err := Split(text, 40, 40)
	require.NoError(t, err)
	assert.Equal(t, clamped, equal, "overlap == targetSize must behave as targetSize-1")

	beyond, err := Split(text, 40, 1000)
	require.NoError(t, err)
	assert.Equal(t, clamped, beyond, "overlap > targetSize must behave as targetSize-1")

	negative, err := Split(text, 40, -3)
	require.NoError(t, err)
	zero, err := Split(text, 40, 0)
	require.NoError(t, err)
	assert.Equal(t, zero, negative)
}

func TestSplitOverlapSeedsTrailingSpans(t *testing.T) {
	chunks, err := Split("aa. bb. cc. dd.", 7, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"aa. bb.", "bb. cc.", "cc. dd."}, chunks)
}

func TestSplitOversizedSpanEmittedWhole(t *testing.T) {
	chunks, err := Split("Supercalifragilisticexpialidocious.", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Supercalifragilisticexpialidocious."}, chunks)
}

func TestSplitTrailingTextWithoutPunctuation(t *testing.T) {
	chunks, err := Split("Hello world", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world"}, chunks)

	chunks, err = Split("First sentence. trailing fragment", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"First sentence. trailing fragment"}, chunks)
}

func TestSplitPunctuationRuns(t *testing.T) {
	chunks, err := Split("Wait... what?! Yes.", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wait... what?! Yes."}, chunks)

	chunks, err = Split("Wait... what?! Yes.", 8, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wait...", "what?!", "Yes."}, chunks)
}

// With zero overlap, joining all chunks must preserve every
// non-whitespace character of the input exactly once in order.
func TestSplitLosesNothing(t *testing.T) {
	inputs := []string{
		"A. B. C.",
		"The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs! How vexingly quick daft zebras jump?",
		"No terminal punctuation at all just words",
		"Mixed. Content! With? Runs... and a tail",
	}
	for _, input := range inputs {
		for _, target := range []int{5, 20, 64, 1000} {
			chunks, err := Split(input, target, 0)
			require.NoError(t, err)
			got := stripSpace(strings.Join(chunks, " "))
			want := stripSpace(input)
			assert.Equal(t, want, got, "input %q target %d", input, target)
		}
	}
}

func TestSplitOrderingIsStable(t *testing.T) {
	text := "alpha. bravo. charlie. delta. echo."
	chunks, err := Split(text, 15, 6)
	require.NoError(t, err)

	// Every span must first appear in source order.
	pos := -1
	for _, word := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		idx := indexOfChunkContaining(chunks, word)
		require.GreaterOrEqual(t, idx, pos, "span %q out of order", word)
		pos = idx
	}
}

func indexOfChunkContaining(chunks []string, s string) int {
	for i, c := range chunks {
		if strings.Contains(c, s) {
			return i
		}
	}
	return -1
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
