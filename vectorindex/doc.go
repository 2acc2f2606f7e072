// Package vectorindex defines the nearest-neighbor index abstraction
// used for retrieval. Three interchangeable backends implement it: an
// in-memory flat index (memory), a durable local index on BadgerDB
// (badger), and a networked Qdrant index (qdrant). The backend is
// selected by configuration, not by code branching.
package vectorindex
