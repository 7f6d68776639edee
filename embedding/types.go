package embedding

import (
	"fmt"
	"math"
)

// EmbeddingInfo contains metadata about an embedding model's capabilities.
type EmbeddingInfo struct {
	// ModelName is the name/identifier of the model.
	ModelName string `json:"model_name"`
	// Dimensions is the number of dimensions in the embedding vector.
	Dimensions int `json:"dimensions"`
	// MaxTokens is the maximum number of tokens the model can process.
	MaxTokens int `json:"max_tokens"`
}

// Common Ollama embedding model names.
const (
	OllamaMxbaiEmbedLarge = "mxbai-embed-large"
	OllamaAllMiniLM       = "all-minilm"
	OllamaNomicEmbedText  = "nomic-embed-text"
	OllamaSnowflakeArctic = "snowflake-arctic-embed"
	OllamaBgeM3           = "bge-m3"
)

// KnownEmbeddingInfo returns the capabilities of well-known Ollama models.
// Unknown models report zero dimensions.
func KnownEmbeddingInfo(model string) EmbeddingInfo {
	switch model {
	case OllamaMxbaiEmbedLarge, OllamaSnowflakeArctic:
		return EmbeddingInfo{ModelName: model, Dimensions: 1024, MaxTokens: 512}
	case OllamaBgeM3:
		return EmbeddingInfo{ModelName: model, Dimensions: 1024, MaxTokens: 8192}
	case OllamaAllMiniLM:
		return EmbeddingInfo{ModelName: model, Dimensions: 384, MaxTokens: 256}
	case OllamaNomicEmbedText:
		return EmbeddingInfo{ModelName: model, Dimensions: 768, MaxTokens: 8192}
	default:
		return EmbeddingInfo{ModelName: model}
	}
}

// ProgressCallback is called during batch operations to report progress.
// current is the number of items processed, total is the total number of items.
type ProgressCallback func(current, total int)

// CheckVector verifies that v is non-empty, finite and, when dim > 0, of length dim.
func CheckVector(v []float64, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrEmbeddingShapeMismatch)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: got %d dimensions, expected %d", ErrEmbeddingShapeMismatch, len(v), dim)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrEmbeddingShapeMismatch, i)
		}
	}
	return nil
}
