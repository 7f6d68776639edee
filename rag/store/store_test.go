package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleVectorStore(t *testing.T) {
	ctx := context.Background()
	s := NewSimpleVectorStore()

	require.NoError(t, s.Add(ctx, []Entry{
		{ID: "b", Text: "beta", Embedding: []float64{1, 0}},
		{ID: "a", Text: "alpha", Embedding: []float64{1, 0}},
		{ID: "c", Text: "gamma", Embedding: []float64{0, 1}},
	}))
	assert.Error(t, s.Add(ctx, []Entry{{ID: "x"}}))

	matches, err := s.Query(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID, "ties are ordered by id")
	assert.Equal(t, "b", matches[1].ID)

	e, err := s.Get(ctx, "c")
	require.NoError(t, err)
	e.Embedding[0] = 5
	again, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, again.Embedding)

	require.NoError(t, s.Delete(ctx, "c"))
	_, err = s.Get(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, s.Count())
}
