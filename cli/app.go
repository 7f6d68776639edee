package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aqua777/krait"

	"github.com/aqua777/go-ragchat/chatengine"
	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/memory"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/r2r"
	"github.com/aqua777/go-ragchat/rag"
	"github.com/aqua777/go-ragchat/rag/store/chromem"
	"github.com/aqua777/go-ragchat/settings"
	"github.com/aqua777/go-ragchat/storage/chatstore"
	"github.com/aqua777/go-ragchat/storage/kvstore"
)

const chunkCollection = "chunks"

// App holds the components shared by the subcommands.
type App struct {
	settings   *settings.Settings
	logger     *slog.Logger
	client     *r2r.Client
	embedModel *embedding.CachedEmbedding
	prompts    *prompts.TaskPromptStore
	invoker    *rag.Invoker
	closers    []io.Closer
}

// NewApp resolves settings from krait and the environment and creates the clients.
func NewApp() (*App, error) {
	s, err := settings.FromLookup(layeredLookup(kraitLookup, os.LookupEnv))
	if err != nil {
		return nil, err
	}
	logger := newLogger(krait.GetBool(KeyVerbose))

	client := r2r.NewClient(
		r2r.WithBaseURL(s.R2RBaseURL()),
		r2r.WithToken(s.R2RAPIToken),
		r2r.WithTimeout(s.RequestTimeout),
		r2r.WithHealthTimeout(s.HealthTimeout),
		r2r.WithLogger(logger),
	)

	embedModel := embedding.NewCachedEmbedding(embedding.NewOllamaEmbedding(
		embedding.WithOllamaEmbeddingBaseURL(s.OllamaAPIBase),
		embedding.WithOllamaEmbeddingModel(s.EmbeddingModel),
		embedding.WithOllamaEmbeddingDimension(s.EmbeddingDimension),
		embedding.WithOllamaEmbeddingHTTPClient(&http.Client{Timeout: s.RequestTimeout}),
		embedding.WithOllamaEmbeddingLogger(logger),
	))

	taskPrompts := prompts.NewTaskPromptStore(prompts.WithTaskPromptLogger(logger))
	if err := taskPrompts.LoadDir(s.PromptsDirectory); err != nil {
		return nil, err
	}

	return &App{
		settings:   s,
		logger:     logger,
		client:     client,
		embedModel: embedModel,
		prompts:    taskPrompts,
		invoker:    rag.NewInvoker(client, rag.WithSettings(s), rag.WithInvokerLogger(logger)),
	}, nil
}

// Close releases stores opened by the app.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// ChatLLM returns the Ollama model used for history summaries.
func (a *App) ChatLLM() *llm.OllamaLLM {
	s := a.settings
	return llm.NewOllamaLLM(
		llm.WithOllamaBaseURL(s.OllamaAPIBase),
		llm.WithOllamaModel(s.ChatModel),
		llm.WithOllamaNumCtx(s.ContextWindowTokens),
		llm.WithOllamaHTTPClient(&http.Client{Timeout: s.RequestTimeout}),
		llm.WithOllamaLogger(a.logger),
	)
}

// MessageStore returns the conversation store of the RAG service.
func (a *App) MessageStore() chatstore.MessageStore {
	return chatstore.NewR2RChatStore(a.client,
		chatstore.WithDimension(a.settings.EmbeddingDimension),
		chatstore.WithLogger(a.logger),
	)
}

// ChatEngine wires the conversational engine over store.
func (a *App) ChatEngine(store chatstore.MessageStore) (*chatengine.ConversationalEngine, error) {
	s := a.settings
	summarizer, err := memory.NewContextSummarizer(a.ChatLLM(),
		memory.WithPromptBudget(s.ContextWindowTokens, s.MaxTokens),
		memory.WithSummarizerLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	selector := memory.NewHistorySelector(
		memory.WithThreshold(s.SimilarityThreshold),
		memory.WithMaxMessages(s.MaxRelevantHistoryMessages),
		memory.WithWindow(s.MaxHistorySize),
		memory.WithSelectorLogger(a.logger),
	)
	return chatengine.NewConversationalEngine(store, a.embedModel, summarizer, a.invoker,
		chatengine.WithSelector(selector),
		chatengine.WithTaskPrompts(a.prompts),
		chatengine.WithEngineLogger(a.logger),
	), nil
}

// JudgeLLM returns the judge backend: an OpenAI-compatible endpoint when
// JUDGE_API_BASE is set, the Ollama runtime otherwise.
func (a *App) JudgeLLM() llm.LLM {
	s := a.settings
	if s.JudgeAPIBase != "" {
		return llm.NewOpenAILLM(s.JudgeAPIBase, s.JudgeModel, s.JudgeAPIKey, llm.WithOpenAILogger(a.logger))
	}
	return llm.NewOllamaLLM(
		llm.WithOllamaBaseURL(s.OllamaAPIBase),
		llm.WithOllamaModel(s.JudgeModel),
		llm.WithOllamaNumCtx(s.ContextWindowTokens),
		llm.WithOllamaHTTPClient(&http.Client{Timeout: s.RequestTimeout}),
		llm.WithOllamaLogger(a.logger),
	)
}

// Judge creates the LLM judge. Verdicts are cached in SQLite when
// JUDGE_CACHE_PATH is set and in memory otherwise.
func (a *App) Judge(attempts, seed int) (*evaluation.Judge, error) {
	opts := []evaluation.JudgeOption{
		evaluation.WithJudgeAttempts(attempts),
		evaluation.WithJudgeSeed(seed),
		evaluation.WithJudgeLogger(a.logger),
	}
	if path := a.settings.JudgeCachePath; path != "" {
		if err := ensureDir(path); err != nil {
			return nil, fmt.Errorf("failed to create judge cache directory: %w", err)
		}
		cache, err := kvstore.NewSQLiteKVStore(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache)
		opts = append(opts, evaluation.WithJudgeCache(cache))
	}
	return evaluation.NewJudge(a.JudgeLLM(), opts...), nil
}

// ChunkIndex opens the persistent chunk embedding index.
func (a *App) ChunkIndex() (*chromem.ChromemStore, error) {
	path := ChromemPersistPath(a.settings.IndicesDirectory)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return chromem.NewChromemStore(path, chunkCollection)
}

// Metrics returns every metric known to the evaluation commands.
func (a *App) Metrics(judge *evaluation.Judge, relevance float64) *evaluation.MetricRegistry {
	return evaluation.NewMetricRegistry(
		evaluation.NewAnswerRelevancyMetric(judge),
		evaluation.NewFaithfulnessMetric(judge),
		evaluation.NewContextPrecisionMetric(judge),
		evaluation.NewContextRecallMetric(judge),
		evaluation.NewHallucinationMetric(judge),
		evaluation.NewReciprocalRankMetric(a.embedModel, evaluation.WithRelevanceThreshold(relevance)),
	)
}

// newLogger routes library logs to stderr, at warn level unless verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// kraitLookup returns the resolved value of a settings key exposed as a flag.
func kraitLookup(key string) (string, bool) {
	for _, k := range flagSettings {
		if k != key {
			continue
		}
		v := krait.Get(key)
		if v == nil {
			return "", false
		}
		s := fmt.Sprint(v)
		return s, s != ""
	}
	return "", false
}
