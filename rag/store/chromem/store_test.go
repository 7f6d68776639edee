package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/rag/store"
)

func TestChromemStoreQuery(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("", "chunks")
	require.NoError(t, err)

	require.NoError(t, s.Add(ctx, []store.Entry{
		{ID: "a", Text: "alpha", Embedding: []float64{1, 0, 0}},
		{ID: "b", Text: "beta", Embedding: []float64{0, 1, 0}},
		{ID: "c", Text: "gamma", Embedding: []float64{0.9, 0.1, 0}},
	}))
	assert.Equal(t, 3, s.Count())

	matches, err := s.Query(ctx, []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChromemPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewChromemStore(dir, "chunks")
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []store.Entry{
		{ID: "1", Text: "Hello persistence", Metadata: map[string]string{"document_id": "d1"}, Embedding: []float64{3, 4}},
	}))

	reopened, err := NewChromemStore(dir, "chunks")
	require.NoError(t, err)

	e, err := reopened.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Hello persistence", e.Text)
	assert.Equal(t, "d1", e.Metadata["document_id"])
	// stored normalized
	assert.InDelta(t, 0.6, e.Embedding[0], 1e-6)
	assert.InDelta(t, 0.8, e.Embedding[1], 1e-6)
}
