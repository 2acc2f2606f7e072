// Package core defines the domain model for document ingestion and
// retrieval: documents, their retrievable units, workflow tasks, query
// audit records, the shared lifecycle state machine, and the error kinds
// used to classify failures across the system.
package core
