// Package badger implements a durable local vector index on BadgerDB.
// Entries are stored under per-collection key prefixes with a fixed
// binary value layout; similarity search is a full collection scan.
package badger
