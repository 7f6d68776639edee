package embedding

import (
	"context"
	"fmt"
	"sync"
)

// CachedEmbedding memoizes an EmbeddingModel by exact text.
// Text and query embeddings share the cache since both call the same backend endpoint.
type CachedEmbedding struct {
	inner EmbeddingModel

	mu    sync.Mutex
	cache map[string][]float64
}

// NewCachedEmbedding wraps inner with an exact-text cache.
func NewCachedEmbedding(inner EmbeddingModel) *CachedEmbedding {
	return &CachedEmbedding{
		inner: inner,
		cache: make(map[string][]float64),
	}
}

func (c *CachedEmbedding) lookup(text string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[text]
	return v, ok
}

func (c *CachedEmbedding) store(text string, v []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[text] = v
}

// GetTextEmbedding returns the cached vector for text or computes it.
func (c *CachedEmbedding) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.lookup(text); ok {
		return cloneVector(v), nil
	}
	v, err := c.inner.GetTextEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, cloneVector(v))
	return v, nil
}

// GetQueryEmbedding returns the cached vector for query or computes it.
func (c *CachedEmbedding) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return c.GetTextEmbedding(ctx, query)
}

// GetTextEmbeddingsBatch forwards only cache misses to the backend.
func (c *CachedEmbedding) GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int
	seen := make(map[string]bool)

	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			out[i] = cloneVector(v)
			continue
		}
		if !seen[t] {
			seen[t] = true
			missing = append(missing, t)
		}
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		var vecs [][]float64
		if batcher, ok := c.inner.(EmbeddingModelWithBatch); ok {
			var err error
			vecs, err = batcher.GetTextEmbeddingsBatch(ctx, missing, nil)
			if err != nil {
				return nil, err
			}
			if len(vecs) != len(missing) {
				return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingShapeMismatch, len(vecs), len(missing))
			}
		} else {
			vecs = make([][]float64, len(missing))
			for i, t := range missing {
				v, err := c.inner.GetTextEmbedding(ctx, t)
				if err != nil {
					return nil, fmt.Errorf("failed to get embedding for text %d: %w", i, err)
				}
				vecs[i] = v
			}
		}
		for i, t := range missing {
			c.store(t, cloneVector(vecs[i]))
		}
		for _, i := range missingIdx {
			v, _ := c.lookup(texts[i])
			out[i] = cloneVector(v)
		}
	}

	if callback != nil {
		callback(len(texts), len(texts))
	}
	return out, nil
}

// Len returns the number of cached texts.
func (c *CachedEmbedding) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

var _ EmbeddingModelWithBatch = (*CachedEmbedding)(nil)
