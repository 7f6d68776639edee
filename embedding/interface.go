package embedding

import (
	"context"
	"errors"
)

// EmbeddingModel is the interface for generating text embeddings.
type EmbeddingModel interface {
	// GetTextEmbedding generates an embedding for a given text.
	GetTextEmbedding(ctx context.Context, text string) ([]float64, error)
	// GetQueryEmbedding generates an embedding for a given query.
	GetQueryEmbedding(ctx context.Context, query string) ([]float64, error)
}

// EmbeddingModelWithInfo extends EmbeddingModel with metadata capabilities.
type EmbeddingModelWithInfo interface {
	EmbeddingModel
	// Info returns information about the model's capabilities.
	Info() EmbeddingInfo
}

// EmbeddingModelWithBatch extends EmbeddingModel with batch processing capabilities.
type EmbeddingModelWithBatch interface {
	EmbeddingModel
	// GetTextEmbeddingsBatch generates embeddings for multiple texts, in input order.
	// The callback is optional and can be used to track progress.
	GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error)
}

var (
	// ErrEmbeddingUnavailable is returned when the embedding backend cannot be reached
	// or answers with a non-success status.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	// ErrEmbeddingShapeMismatch is returned when a vector is empty, has the wrong
	// dimension or contains NaN or Inf values.
	ErrEmbeddingShapeMismatch = errors.New("embedding shape mismatch")
	// ErrDimensionMismatch is returned when two vectors of different length are compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
