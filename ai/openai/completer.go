package openai

import (
	"context"
	"log/slog"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/insightdocs/ai"
	"github.com/poiesic/insightdocs/core"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client  llms.Model
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config, breaker *gobreaker.CircuitBreaker) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:  client,
		breaker: breaker,
		logger:  slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config, newCapabilityBreaker("completion"))
}

// Complete generates a completion for the prompt.
// Failures are reported as transient capability errors so the caller's
// retry policy applies.
func (c *Completer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.logger.Debug("generating completion", "promptLength", len(prompt), "maxTokens", maxTokens)

	result, err := c.breaker.Execute(func() (any, error) {
		return llms.GenerateFromSinglePrompt(ctx, c.client, prompt,
			llms.WithMaxTokens(maxTokens),
			llms.WithTemperature(0.2),
		)
	})
	if err != nil {
		c.logger.Error("failed to generate completion", "err", err)
		return "", core.Transient(err)
	}
	return result.(string), nil
}
