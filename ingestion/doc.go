// Package ingestion orchestrates the document workflow: fetch and parse
// the raw object, segment it into units, embed and index the units,
// persist them, optionally summarize, and finalize the task. The
// dispatcher schedules workflows on a bounded worker pool with at most
// one in-flight workflow per document.
package ingestion
