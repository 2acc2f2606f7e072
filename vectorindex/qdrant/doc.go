// Package qdrant implements the vector index against a Qdrant server
// over its REST API. Entries carry their external reference in the
// point payload so search results can be mapped back to units.
package qdrant
