package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aqua777/go-ragchat/ragerr"
)

const (
	// OllamaDefaultURL is the default Ollama API endpoint.
	OllamaDefaultURL = "http://localhost:11434"
)

// OllamaEmbedding implements the EmbeddingModel interface for Ollama.
type OllamaEmbedding struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger
}

// OllamaEmbeddingOption configures an OllamaEmbedding.
type OllamaEmbeddingOption func(*OllamaEmbedding)

// WithOllamaEmbeddingBaseURL sets the base URL.
func WithOllamaEmbeddingBaseURL(baseURL string) OllamaEmbeddingOption {
	return func(o *OllamaEmbedding) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithOllamaEmbeddingModel sets the model.
func WithOllamaEmbeddingModel(model string) OllamaEmbeddingOption {
	return func(o *OllamaEmbedding) {
		o.model = model
	}
}

// WithOllamaEmbeddingDimension sets the expected vector dimension. Zero disables the check.
func WithOllamaEmbeddingDimension(dim int) OllamaEmbeddingOption {
	return func(o *OllamaEmbedding) {
		o.dimension = dim
	}
}

// WithOllamaEmbeddingHTTPClient sets a custom HTTP client.
func WithOllamaEmbeddingHTTPClient(client *http.Client) OllamaEmbeddingOption {
	return func(o *OllamaEmbedding) {
		o.httpClient = client
	}
}

// WithOllamaEmbeddingLogger sets the logger.
func WithOllamaEmbeddingLogger(logger *slog.Logger) OllamaEmbeddingOption {
	return func(o *OllamaEmbedding) {
		o.logger = logger
	}
}

// NewOllamaEmbedding creates a new Ollama embedding client.
func NewOllamaEmbedding(opts ...OllamaEmbeddingOption) *OllamaEmbedding {
	baseURL := os.Getenv("OLLAMA_API_BASE")
	if baseURL == "" {
		baseURL = OllamaDefaultURL
	}

	o := &OllamaEmbedding{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      OllamaMxbaiEmbedLarge,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.dimension == 0 {
		o.dimension = KnownEmbeddingInfo(o.model).Dimensions
	}

	return o
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse covers both /api/embed and the legacy /api/embeddings shape.
type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Embedding  []float64   `json:"embedding"`
}

func (r *ollamaEmbedResponse) vectors() [][]float64 {
	if len(r.Embeddings) > 0 {
		return r.Embeddings
	}
	if len(r.Embedding) > 0 {
		return [][]float64{r.Embedding}
	}
	return nil
}

// GetTextEmbedding generates an embedding for a given text.
func (o *OllamaEmbedding) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	vecs, err := o.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GetQueryEmbedding generates an embedding for a given query.
func (o *OllamaEmbedding) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return o.GetTextEmbedding(ctx, query)
}

// GetTextEmbeddingsBatch generates embeddings for multiple texts in a single request.
func (o *OllamaEmbedding) GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	o.logger.Info("GetTextEmbeddingsBatch called", "model", o.model, "count", len(texts))

	vecs, err := o.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if callback != nil {
		callback(len(texts), len(texts))
	}
	return vecs, nil
}

// Info returns information about the model's capabilities.
func (o *OllamaEmbedding) Info() EmbeddingInfo {
	info := KnownEmbeddingInfo(o.model)
	info.Dimensions = o.dimension
	return info
}

func (o *OllamaEmbedding) embed(ctx context.Context, texts []string) ([][]float64, error) {
	const op = "embedding.embed"

	jsonBody, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, ragerr.FromTransport(op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, ragerr.FromHTTP(op, resp.StatusCode, string(respBody)))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", ErrEmbeddingUnavailable, err)
	}

	vecs := result.vectors()
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingShapeMismatch, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if err := CheckVector(v, o.dimension); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	return vecs, nil
}

var _ EmbeddingModel = (*OllamaEmbedding)(nil)
var _ EmbeddingModelWithInfo = (*OllamaEmbedding)(nil)
var _ EmbeddingModelWithBatch = (*OllamaEmbedding)(nil)
