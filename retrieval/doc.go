// Package retrieval answers questions over indexed document content:
// embed the query, search the vector index, assemble a bounded context
// from the best matches, and generate an answer constrained to that
// context. Every query is recorded in the audit log.
package retrieval
