// Package store holds chunk embeddings keyed by chunk id.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("entry not found")

// Entry is a stored chunk and its embedding.
type Entry struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float64
}

// Match is a query result.
type Match struct {
	Entry
	Score float64
}

// VectorStore is the interface for storing and querying chunk embeddings.
type VectorStore interface {
	// Add inserts or replaces entries.
	Add(ctx context.Context, entries []Entry) error
	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)
	// Query returns the k entries most similar to embedding, best first.
	Query(ctx context.Context, embedding []float64, k int) ([]Match, error)
	// Delete removes entries by id.
	Delete(ctx context.Context, ids ...string) error
	// Count returns the number of stored entries.
	Count() int
}
