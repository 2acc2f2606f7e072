// Package storage defines the durable metadata repositories for
// documents, units, tasks and query records, including the composite
// queries the pipeline needs: ordered units per document and terminal
// tasks older than a cutoff. The postgres subpackage is the production
// backend; the memory subpackage backs tests and local runs.
package storage
