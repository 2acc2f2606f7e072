// Package ai defines the generation capability interfaces consumed by
// the ingestion pipeline and the retrieval service: text embedding and
// text completion. Production implementations live in ai/openai; test
// doubles live in ai/mock.
package ai
