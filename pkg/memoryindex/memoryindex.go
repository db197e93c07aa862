// Package memoryindex defines the persistent vector index the NLP facade
// can write embeddings to and query for nearest neighbours. The canonical
// implementation is PostgreSQL with pgvector (see the postgres subpackage);
// the index is optional and the facade works without one.
package memoryindex

import (
	"context"
	"time"
)

// Entry is one indexed text with its embedding vector.
type Entry struct {
	ID     string
	Text   string
	Vector []float32

	// Model records which embedding model produced Vector, so entries from
	// different vector spaces can be told apart after a model switch.
	Model string

	// IndexedAt is set by the index on write when zero.
	IndexedAt time.Time
}

// Match is one search result, most similar first.
type Match struct {
	Entry Entry

	// Distance is the cosine distance to the query vector (0 identical,
	// 2 opposite).
	Distance float64
}

// Index is the persistent vector index abstraction.
//
// Implementations must be safe for concurrent use.
type Index interface {
	// Upsert stores the entry, replacing any existing entry with the same ID.
	Upsert(ctx context.Context, entry Entry) error

	// Search returns the limit entries nearest to vector by cosine distance,
	// ordered most similar first.
	Search(ctx context.Context, vector []float32, limit int) ([]Match, error)

	// Delete removes the entry with the given ID. Deleting a missing ID is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the index's resources.
	Close()
}
