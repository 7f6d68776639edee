package embedding

import (
	"context"
	"sync"
)

// MockEmbeddingModel is a mock implementation of the EmbeddingModel interface.
// Vectors maps exact texts to vectors; other texts get Embedding.
type MockEmbeddingModel struct {
	Embedding []float64
	Vectors   map[string][]float64
	Err       error

	mu    sync.Mutex
	Calls []string
}

func (m *MockEmbeddingModel) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if v, ok := m.Vectors[text]; ok {
		return cloneVector(v), nil
	}
	return cloneVector(m.Embedding), nil
}

func (m *MockEmbeddingModel) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return m.GetTextEmbedding(ctx, query)
}

// CallCount returns the number of backend calls made so far.
func (m *MockEmbeddingModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
