package r2r

import (
	"encoding/json"
	"time"
)

// envelope is the response wrapper of every v3 endpoint.
type envelope[T any] struct {
	Results      T   `json:"results"`
	TotalEntries int `json:"total_entries,omitempty"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items []T
	// Total is the number of entries across all pages.
	Total int
}

// Conversation is a conversation overview.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the message payload of a conversation entry.
type Message struct {
	Role     string                 `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MessageEntry is a stored conversation message.
type MessageEntry struct {
	ID        string                 `json:"id"`
	Message   Message                `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ParentID  string                 `json:"parent_id,omitempty"`
	CreatedAt *time.Time             `json:"created_at,omitempty"`
}

// AddMessageRequest is the body of an append.
type AddMessageRequest struct {
	Content  string            `json:"content"`
	Role     string            `json:"role"`
	ParentID string            `json:"parent_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestionStatus is the processing state of a document.
type IngestionStatus string

const (
	IngestionPending   IngestionStatus = "pending"
	IngestionParsing   IngestionStatus = "parsing"
	IngestionEmbedding IngestionStatus = "embedding"
	IngestionStoring   IngestionStatus = "storing"
	IngestionSuccess   IngestionStatus = "success"
	IngestionFailed    IngestionStatus = "failed"
)

// Document is a document overview.
type Document struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title,omitempty"`
	Type            string                 `json:"document_type,omitempty"`
	IngestionStatus IngestionStatus        `json:"ingestion_status,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       *time.Time             `json:"created_at,omitempty"`
}

// Chunk is a stored document chunk.
type Chunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Vector     []float64              `json:"vector,omitempty"`
}

// IngestionMode selects the server-side ingestion pipeline.
type IngestionMode string

const (
	IngestionModeFast   IngestionMode = "fast"
	IngestionModeHiRes  IngestionMode = "hi-res"
	IngestionModeCustom IngestionMode = "custom"
)

// CreateDocumentRequest uploads either a file or pre-split chunks.
type CreateDocumentRequest struct {
	// FilePath is uploaded as multipart file content.
	FilePath string
	// Chunks are sent as pre-chunked text when FilePath is empty.
	Chunks               []string
	ID                   string
	Metadata             map[string]interface{}
	IngestionMode        IngestionMode
	RunWithOrchestration *bool
}

// IngestionResponse acknowledges a document creation.
type IngestionResponse struct {
	Message    string `json:"message"`
	TaskID     string `json:"task_id,omitempty"`
	DocumentID string `json:"document_id"`
}

// ChunkSettings configures chunk search.
type ChunkSettings struct {
	Enabled      bool   `json:"enabled"`
	IndexMeasure string `json:"index_measure"`
}

// SearchSettings configures retrieval.
type SearchSettings struct {
	UseSemanticSearch bool                   `json:"use_semantic_search"`
	Limit             int                    `json:"limit"`
	Offset            int                    `json:"offset"`
	IncludeScores     bool                   `json:"include_scores"`
	SearchStrategy    string                 `json:"search_strategy"`
	ChunkSettings     ChunkSettings          `json:"chunk_settings"`
	Filters           map[string]interface{} `json:"filters,omitempty"`
}

// GenerationConfig configures the answer generation.
type GenerationConfig struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens_to_sample,omitempty"`
	Stream      bool     `json:"stream"`
}

// RAGRequest is the body of a retrieval-augmented generation call.
type RAGRequest struct {
	Query            string           `json:"query"`
	SearchMode       string           `json:"search_mode,omitempty"`
	SearchSettings   SearchSettings   `json:"search_settings"`
	GenerationConfig GenerationConfig `json:"rag_generation_config"`
	TaskPrompt       string           `json:"task_prompt,omitempty"`
}

// ChunkSearchResult is a retrieved chunk.
type ChunkSearchResult struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResults groups retrieval results.
type SearchResults struct {
	ChunkSearchResults []ChunkSearchResult `json:"chunk_search_results"`
}

// RAGResponse is a non-streaming RAG answer.
type RAGResponse struct {
	Completion      string          `json:"completion,omitempty"`
	GeneratedAnswer string          `json:"generated_answer,omitempty"`
	SearchResults   SearchResults   `json:"search_results"`
	Citations       json.RawMessage `json:"citations,omitempty"`
}

// Answer returns the generated text regardless of the server version field name.
func (r *RAGResponse) Answer() string {
	if r.GeneratedAnswer != "" {
		return r.GeneratedAnswer
	}
	return r.Completion
}

// ChunkTexts returns the texts of the retrieved chunks, in rank order.
func (r *RAGResponse) ChunkTexts() []string {
	out := make([]string, 0, len(r.SearchResults.ChunkSearchResults))
	for _, c := range r.SearchResults.ChunkSearchResults {
		out = append(out, c.Text)
	}
	return out
}

// ExportRequest selects the columns and rows of a document export.
type ExportRequest struct {
	Columns       []string               `json:"columns,omitempty"`
	Filters       map[string]interface{} `json:"filters,omitempty"`
	IncludeHeader bool                   `json:"include_header"`
}

// HealthStatus is the service health response.
type HealthStatus struct {
	Message string `json:"message"`
}
