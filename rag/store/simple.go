package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aqua777/go-ragchat/embedding"
)

// SimpleVectorStore is an in-memory vector store. Embeddings are kept at full precision.
type SimpleVectorStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewSimpleVectorStore creates a new SimpleVectorStore.
func NewSimpleVectorStore() *SimpleVectorStore {
	return &SimpleVectorStore{
		entries: make(map[string]Entry),
	}
}

func (s *SimpleVectorStore) Add(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			return errors.New("entry ID cannot be empty")
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s has no embedding", e.ID)
		}
		s.entries[e.ID] = cloneEntry(e)
	}
	return nil
}

func (s *SimpleVectorStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := cloneEntry(e)
	return &c, nil
}

func (s *SimpleVectorStore) Query(ctx context.Context, query []float64, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vectors := make([][]float64, len(ids))
	for i, id := range ids {
		vectors[i] = s.entries[id].Embedding
	}
	ranked, err := embedding.TopK(query, vectors, k, -1)
	if err != nil {
		return nil, err
	}

	out := make([]Match, len(ranked))
	for i, r := range ranked {
		out[i] = Match{Entry: cloneEntry(s.entries[ids[r.Index]]), Score: r.Score}
	}
	return out, nil
}

func (s *SimpleVectorStore) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *SimpleVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneEntry(e Entry) Entry {
	e.Embedding = append([]float64(nil), e.Embedding...)
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

var _ VectorStore = (*SimpleVectorStore)(nil)
