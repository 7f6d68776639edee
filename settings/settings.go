// Package settings loads the process configuration from the environment.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aqua777/go-ragchat/validation"
)

// Environment keys.
const (
	KeyChatModel                  = "CHAT_MODEL"
	KeyEmbeddingModel             = "EMBEDDING_MODEL"
	KeyOllamaAPIBase              = "OLLAMA_API_BASE"
	KeyTemperature                = "TEMPERATURE"
	KeyTopP                       = "TOP_P"
	KeyTopK                       = "TOP_K"
	KeyMaxTokens                  = "MAX_TOKENS"
	KeyContextWindowTokens        = "LLM_CONTEXT_WINDOW_TOKENS"
	KeyChunkSize                  = "CHUNK_SIZE"
	KeyChunkOverlap               = "CHUNK_OVERLAP"
	KeySimilarityThreshold        = "SIMILARITY_THRESHOLD"
	KeyMaxRelevantHistoryMessages = "MAX_RELEVANT_HISTORY_MESSAGES"
	KeyMaxHistorySize             = "MAX_HISTORY_SIZE"
	KeyEmbeddingDimension         = "OLLAMA_EMBEDDING_MODEL_DIMENSION"
	KeyR2RHostname                = "R2R_HOSTNAME"
	KeyR2RPort                    = "R2R_PORT"
	KeyR2RAPIToken                = "R2R_API_TOKEN"
	KeyExportDirectory            = "EXPORT_DIRECTORY"
	KeyFilesDirectory             = "FILES_DIRECTORY"
	KeyPromptsDirectory           = "PROMPTS_DIRECTORY"
	KeyIndicesDirectory           = "INDICES_DIRECTORY"
	KeyJudgeModel                 = "JUDGE_MODEL"
	KeyJudgeAPIBase               = "JUDGE_API_BASE"
	KeyJudgeAPIKey                = "JUDGE_API_KEY"
	KeyJudgeCachePath             = "JUDGE_CACHE_PATH"
	KeyRequestTimeoutSeconds      = "REQUEST_TIMEOUT_SECONDS"
	KeyHealthTimeoutSeconds       = "HEALTH_TIMEOUT_SECONDS"
)

// Defaults.
const (
	DefaultChatModel                  = "llama3.1"
	DefaultEmbeddingModel             = "mxbai-embed-large"
	DefaultOllamaAPIBase              = "http://localhost:11434"
	DefaultTemperature                = 0.1
	DefaultTopP                       = 1.0
	DefaultTopK                       = 5
	DefaultMaxTokens                  = 1024
	DefaultContextWindowTokens        = 8192
	DefaultChunkSize                  = 1024
	DefaultChunkOverlap               = 200
	DefaultSimilarityThreshold        = 0.75
	DefaultMaxRelevantHistoryMessages = 5
	DefaultMaxHistorySize             = 50
	DefaultEmbeddingDimension         = 1024
	DefaultR2RHostname                = "localhost"
	DefaultR2RPort                    = 7272
	DefaultExportDirectory            = "exports"
	DefaultFilesDirectory             = "files"
	DefaultPromptsDirectory           = "prompts"
	DefaultIndicesDirectory           = "indices"
	DefaultRequestTimeout             = 600 * time.Second
	DefaultHealthTimeout              = 5 * time.Second
)

// Settings is the resolved process configuration.
type Settings struct {
	ChatModel      string
	EmbeddingModel string
	OllamaAPIBase  string

	Temperature         float64
	TopP                float64
	TopK                int
	MaxTokens           int
	ContextWindowTokens int

	ChunkSize    int
	ChunkOverlap int

	SimilarityThreshold        float64
	MaxRelevantHistoryMessages int
	MaxHistorySize             int
	EmbeddingDimension         int

	R2RHostname string
	R2RPort     int
	R2RAPIToken string

	ExportDirectory  string
	FilesDirectory   string
	PromptsDirectory string
	IndicesDirectory string

	// Judge backend. An empty JudgeAPIBase means the Ollama runtime is used.
	JudgeModel     string
	JudgeAPIBase   string
	JudgeAPIKey    string
	JudgeCachePath string

	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

// LookupFunc resolves an environment key.
type LookupFunc func(key string) (string, bool)

// Load reads the optional dotenv files, then resolves settings from the process environment.
// Variables already set in the environment take precedence over dotenv values.
// Missing dotenv files are ignored.
func Load(envFiles ...string) (*Settings, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves settings using lookup and validates them.
func FromLookup(lookup LookupFunc) (*Settings, error) {
	r := &reader{lookup: lookup, v: validation.NewValidator()}

	s := &Settings{
		ChatModel:      r.str(KeyChatModel, DefaultChatModel),
		EmbeddingModel: r.str(KeyEmbeddingModel, DefaultEmbeddingModel),
		OllamaAPIBase:  strings.TrimSuffix(r.str(KeyOllamaAPIBase, DefaultOllamaAPIBase), "/"),

		Temperature:         r.float(KeyTemperature, DefaultTemperature),
		TopP:                r.float(KeyTopP, DefaultTopP),
		TopK:                r.int(KeyTopK, DefaultTopK),
		MaxTokens:           r.int(KeyMaxTokens, DefaultMaxTokens),
		ContextWindowTokens: r.int(KeyContextWindowTokens, DefaultContextWindowTokens),

		ChunkSize:    r.int(KeyChunkSize, DefaultChunkSize),
		ChunkOverlap: r.int(KeyChunkOverlap, DefaultChunkOverlap),

		SimilarityThreshold:        r.float(KeySimilarityThreshold, DefaultSimilarityThreshold),
		MaxRelevantHistoryMessages: r.int(KeyMaxRelevantHistoryMessages, DefaultMaxRelevantHistoryMessages),
		MaxHistorySize:             r.int(KeyMaxHistorySize, DefaultMaxHistorySize),
		EmbeddingDimension:         r.int(KeyEmbeddingDimension, DefaultEmbeddingDimension),

		R2RHostname: r.str(KeyR2RHostname, DefaultR2RHostname),
		R2RPort:     r.int(KeyR2RPort, DefaultR2RPort),
		R2RAPIToken: r.str(KeyR2RAPIToken, ""),

		ExportDirectory:  r.str(KeyExportDirectory, DefaultExportDirectory),
		FilesDirectory:   r.str(KeyFilesDirectory, DefaultFilesDirectory),
		PromptsDirectory: r.str(KeyPromptsDirectory, DefaultPromptsDirectory),
		IndicesDirectory: r.str(KeyIndicesDirectory, DefaultIndicesDirectory),

		JudgeAPIBase:   strings.TrimSuffix(r.str(KeyJudgeAPIBase, ""), "/"),
		JudgeAPIKey:    r.str(KeyJudgeAPIKey, ""),
		JudgeCachePath: r.str(KeyJudgeCachePath, ""),

		RequestTimeout: r.seconds(KeyRequestTimeoutSeconds, DefaultRequestTimeout),
		HealthTimeout:  r.seconds(KeyHealthTimeoutSeconds, DefaultHealthTimeout),
	}
	s.JudgeModel = r.str(KeyJudgeModel, s.ChatModel)

	s.validate(r.v)
	if err := r.v.Err("settings.load"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate(v *validation.Validator) {
	v.RequireNotEmpty(s.ChatModel, KeyChatModel)
	v.RequireNotEmpty(s.EmbeddingModel, KeyEmbeddingModel)
	v.RequireNotEmpty(s.OllamaAPIBase, KeyOllamaAPIBase)
	v.RequireInRange(s.Temperature, 0, 2, KeyTemperature)
	v.RequireInRange(s.TopP, 0, 1, KeyTopP)
	v.RequirePositive(s.TopK, KeyTopK)
	v.RequirePositive(s.MaxTokens, KeyMaxTokens)
	v.RequirePositive(s.ContextWindowTokens, KeyContextWindowTokens)
	if s.MaxTokens > 0 && s.ContextWindowTokens > 0 {
		v.RequireLessThan(s.MaxTokens, s.ContextWindowTokens, KeyMaxTokens, KeyContextWindowTokens)
	}
	if err := validation.ValidateChunkParams(s.ChunkSize, s.ChunkOverlap); err != nil {
		v.AddError(KeyChunkSize+"/"+KeyChunkOverlap, err.Error(), nil)
	}
	v.RequireInRange(s.SimilarityThreshold, -1, 1, KeySimilarityThreshold)
	v.RequirePositive(s.MaxRelevantHistoryMessages, KeyMaxRelevantHistoryMessages)
	v.RequireNonNegative(s.MaxHistorySize, KeyMaxHistorySize)
	v.RequirePositive(s.EmbeddingDimension, KeyEmbeddingDimension)
	v.RequireNotEmpty(s.R2RHostname, KeyR2RHostname)
	v.Require(s.R2RPort > 0 && s.R2RPort < 65536, KeyR2RPort, "must be a valid TCP port")
	v.Require(s.RequestTimeout > 0, KeyRequestTimeoutSeconds, "must be positive")
	v.Require(s.HealthTimeout > 0, KeyHealthTimeoutSeconds, "must be positive")
}

// R2RBaseURL returns the RAG service base URL built from hostname and port.
// A hostname that already carries a scheme keeps it.
func (s *Settings) R2RBaseURL() string {
	host := strings.TrimSuffix(s.R2RHostname, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s:%d", host, s.R2RPort)
}

// reader resolves typed values and records parse errors in v.
type reader struct {
	lookup LookupFunc
	v      *validation.Validator
}

func (r *reader) raw(key string) (string, bool) {
	val, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

func (r *reader) str(key, def string) string {
	if val, ok := r.raw(key); ok {
		return val
	}
	return def
}

func (r *reader) int(key string, def int) int {
	val, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		r.v.AddError(key, "must be an integer", val)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	val, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		r.v.AddError(key, "must be a number", val)
		return def
	}
	return f
}

func (r *reader) seconds(key string, def time.Duration) time.Duration {
	val, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		r.v.AddError(key, "must be a number of seconds", val)
		return def
	}
	return time.Duration(f * float64(time.Second))
}
