// Package chromem implements store.VectorStore on chromem-go, optionally
// persisted to a directory.
package chromem

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/aqua777/go-ragchat/rag/store"
)

// ChromemStore is a vector store backed by a chromem-go collection.
// chromem normalizes vectors and keeps them as float32, so Get returns the
// unit-length float32 rendition of what was added.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemStore creates a new ChromemStore.
// If persistPath is empty, the store will be in-memory only.
func NewChromemStore(persistPath string, collectionName string) (*ChromemStore, error) {
	var db *chromem.DB
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are always computed by the caller.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
	}, nil
}

// Add adds entries to the collection.
func (s *ChromemStore) Add(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s has no embedding", e.ID)
		}
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Text,
			Metadata:  e.Metadata,
			Embedding: toFloat32(e.Embedding),
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents to chromem collection: %w", err)
	}
	return nil
}

// Get returns a stored entry.
func (s *ChromemStore) Get(ctx context.Context, id string) (*store.Entry, error) {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return &store.Entry{
		ID:        doc.ID,
		Text:      doc.Content,
		Metadata:  doc.Metadata,
		Embedding: toFloat64(doc.Embedding),
	}, nil
}

// Query finds the k entries most similar to the query embedding.
func (s *ChromemStore) Query(ctx context.Context, query []float64, k int) ([]store.Match, error) {
	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k <= 0 || k > n {
		k = n
	}

	res, err := s.collection.QueryEmbedding(ctx, toFloat32(query), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromem collection: %w", err)
	}

	out := make([]store.Match, len(res))
	for i, doc := range res {
		out[i] = store.Match{
			Entry: store.Entry{
				ID:        doc.ID,
				Text:      doc.Content,
				Metadata:  doc.Metadata,
				Embedding: toFloat64(doc.Embedding),
			},
			Score: float64(doc.Similarity),
		}
	}
	return out, nil
}

// Delete removes entries by id.
func (s *ChromemStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete from chromem collection: %w", err)
	}
	return nil
}

// Count returns the number of entries.
func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

var _ store.VectorStore = (*ChromemStore)(nil)
