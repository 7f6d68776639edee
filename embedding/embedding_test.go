package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/ragerr"
)

func TestOllamaEmbedding(t *testing.T) {
	t.Run("NewOllamaEmbedding with options", func(t *testing.T) {
		e := NewOllamaEmbedding(
			WithOllamaEmbeddingModel(OllamaNomicEmbedText),
			WithOllamaEmbeddingBaseURL("http://custom:11434/"),
		)
		assert.Equal(t, OllamaNomicEmbedText, e.model)
		assert.Equal(t, "http://custom:11434", e.baseURL)
		assert.Equal(t, 768, e.Info().Dimensions)
	})

	t.Run("GetTextEmbedding with embed endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/embed", r.URL.Path)

			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			assert.Equal(t, []string{"test text"}, req.Input)

			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{0.1, 0.2, 0.3}}})
		}))
		defer server.Close()

		e := NewOllamaEmbedding(
			WithOllamaEmbeddingBaseURL(server.URL),
			WithOllamaEmbeddingModel("test-model"),
			WithOllamaEmbeddingDimension(3),
		)

		v, err := e.GetTextEmbedding(context.Background(), "test text")
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, v)
	})

	t.Run("accepts legacy single embedding shape", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 2}})
		}))
		defer server.Close()

		e := NewOllamaEmbedding(WithOllamaEmbeddingBaseURL(server.URL), WithOllamaEmbeddingModel("x"))
		v, err := e.GetQueryEmbedding(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, v)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1, 2}}})
		}))
		defer server.Close()

		e := NewOllamaEmbedding(WithOllamaEmbeddingBaseURL(server.URL), WithOllamaEmbeddingDimension(1024))
		_, err := e.GetTextEmbedding(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingShapeMismatch)
	})

	t.Run("server error is unavailable and upstream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("model not loaded"))
		}))
		defer server.Close()

		e := NewOllamaEmbedding(WithOllamaEmbeddingBaseURL(server.URL))
		_, err := e.GetTextEmbedding(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
		assert.ErrorIs(t, err, ragerr.ErrUpstream)
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("batch sends one request", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			var req ollamaEmbedRequest
			json.NewDecoder(r.Body).Decode(&req)
			out := make([][]float64, len(req.Input))
			for i := range req.Input {
				out[i] = []float64{float64(i + 1), 1}
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
		}))
		defer server.Close()

		e := NewOllamaEmbedding(WithOllamaEmbeddingBaseURL(server.URL), WithOllamaEmbeddingDimension(2))
		var progress int
		vecs, err := e.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b", "c"}, func(current, total int) {
			progress = current
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Len(t, vecs, 3)
		assert.Equal(t, []float64{3, 1}, vecs[2])
		assert.Equal(t, 3, progress)
	})
}

func TestCheckVector(t *testing.T) {
	assert.NoError(t, CheckVector([]float64{1, 2}, 2))
	assert.NoError(t, CheckVector([]float64{1, 2}, 0))
	assert.ErrorIs(t, CheckVector(nil, 0), ErrEmbeddingShapeMismatch)
	assert.ErrorIs(t, CheckVector([]float64{1, math.NaN()}, 2), ErrEmbeddingShapeMismatch)
	assert.ErrorIs(t, CheckVector([]float64{math.Inf(1)}, 1), ErrEmbeddingShapeMismatch)
	assert.ErrorIs(t, CheckVector([]float64{1}, 2), ErrEmbeddingShapeMismatch)
}

func TestCosineSimilarity(t *testing.T) {
	s, err := CosineSimilarity([]float64{1, 0}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-12)

	s, err = CosineSimilarity([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-12)

	s, err = CosineSimilarity([]float64{1, 2, 3}, []float64{-1, -2, -3})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, s, 1e-12)

	// Identical non-trivial vectors stay within range.
	v := []float64{0.1, 0.7, 0.3333, 0.9}
	s, err = CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s, 0.9999)
	assert.LessOrEqual(t, s, 1.0)

	_, err = CosineSimilarity([]float64{1}, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, err = CosineSimilarity([]float64{0, 0}, []float64{1, 2})
	assert.Error(t, err)
}

func TestTopK(t *testing.T) {
	query := []float64{1, 0}
	candidates := [][]float64{
		{0, 1},   // 0
		{1, 0},   // 1
		{1, 1},   // ~0.707
		{2, 0},   // 1, ties with index 1
		{1, 0.1}, // ~0.995
	}

	t.Run("sorted, stable and truncated", func(t *testing.T) {
		got, err := TopK(query, candidates, 3, 0.5)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, 3, got[1].Index)
		assert.Equal(t, 4, got[2].Index)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	})

	t.Run("threshold filters everything", func(t *testing.T) {
		got, err := TopK(query, candidates, 5, 1.1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unbounded k", func(t *testing.T) {
		got, err := TopK(query, candidates, 0, 0.5)
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})

	t.Run("empty candidates", func(t *testing.T) {
		got, err := TopK(query, nil, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := TopK(query, [][]float64{{1, 2, 3}}, 5, 0)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestCachedEmbedding(t *testing.T) {
	ctx := context.Background()
	mock := &MockEmbeddingModel{
		Embedding: []float64{0, 1},
		Vectors:   map[string][]float64{"x": {1, 0}},
	}
	c := NewCachedEmbedding(mock)

	v1, err := c.GetTextEmbedding(ctx, "x")
	require.NoError(t, err)
	v2, err := c.GetQueryEmbedding(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, mock.CallCount())

	// Callers may not corrupt the cache.
	v1[0] = 42
	v3, err := c.GetTextEmbedding(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v3)

	vecs, err := c.GetTextEmbeddingsBatch(ctx, []string{"x", "y", "y", "z"}, nil)
	require.NoError(t, err)
	assert.Len(t, vecs, 4)
	assert.Equal(t, []float64{1, 0}, vecs[0])
	assert.Equal(t, []float64{0, 1}, vecs[1])
	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, 3, c.Len())
}

func TestCachedEmbeddingDoesNotCacheErrors(t *testing.T) {
	mock := &MockEmbeddingModel{Err: ErrEmbeddingUnavailable}
	c := NewCachedEmbedding(mock)

	_, err := c.GetTextEmbedding(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, 0, c.Len())
}
