// Package openai implements the generation capability against
// OpenAI-compatible HTTP APIs (OpenAI, Ollama, LocalAI, vLLM) via
// langchaingo, with a circuit breaker per capability.
package openai
