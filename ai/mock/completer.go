package mock

import (
	"context"
	"sync"
)

// Completer is a test double for ai.Completer.
type Completer struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns Answer.
	CompleteFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

	// Answer is the canned response returned by default.
	Answer string

	mu        sync.Mutex
	callCount int
	prompts   []string
}

// NewCompleter creates a mock completer with a canned answer.
func NewCompleter(answer string) *Completer {
	return &Completer{Answer: answer}
}

// Complete records the prompt and returns the configured answer.
func (m *Completer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, maxTokens)
	}
	return m.Answer, nil
}

// CallCount returns the number of Complete invocations.
func (m *Completer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the most recent prompt, or "" if none.
func (m *Completer) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}
