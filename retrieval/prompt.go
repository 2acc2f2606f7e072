package retrieval

import (
	"fmt"
	"strings"
)

// contextBlock is one retrieved unit ready for prompt assembly.
type contextBlock struct {
	documentName string
	text         string
}

// buildPrompt assembles the strict-context answering prompt. Blocks
// arrive in descending score order; each is prefixed with its document
// name so the model can attribute statements.
func buildPrompt(query string, blocks []contextBlock) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so explicitly instead of guessing.\n\nContext:\n")
	for _, block := range blocks {
		fmt.Fprintf(&b, "[%s] %s\n", block.documentName, block.text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
