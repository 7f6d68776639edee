// Package rag invokes retrieval-augmented generation on the RAG service and
// turns its event stream into answer text.
package rag

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/aqua777/go-ragchat/r2r"
	"github.com/aqua777/go-ragchat/settings"
)

const (
	// SearchStrategyVanilla is plain semantic search.
	SearchStrategyVanilla = "vanilla"
	// IndexMeasureCosine ranks chunks by cosine distance.
	IndexMeasureCosine = "cosine_distance"
	// SearchModeCustom lets the request's search settings apply unchanged.
	SearchModeCustom = "custom"
)

// Retriever is the part of the RAG service the invoker needs.
type Retriever interface {
	RAG(ctx context.Context, req r2r.RAGRequest) (*r2r.RAGResponse, error)
	RAGStream(ctx context.Context, req r2r.RAGRequest) (*r2r.EventStream, error)
}

// SearchSettings returns semantic search settings ranking by cosine distance,
// returning limit results starting at offset, with scores.
func SearchSettings(limit, offset int) r2r.SearchSettings {
	return r2r.SearchSettings{
		UseSemanticSearch: true,
		Limit:             limit,
		Offset:            offset,
		IncludeScores:     true,
		SearchStrategy:    SearchStrategyVanilla,
		ChunkSettings: r2r.ChunkSettings{
			Enabled:      true,
			IndexMeasure: IndexMeasureCosine,
		},
	}
}

// GenerationConfig returns the generation parameters of a RAG call.
func GenerationConfig(model string, temperature, topP float64, maxTokens int, stream bool) r2r.GenerationConfig {
	return r2r.GenerationConfig{
		Model:       model,
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

// Invoker issues RAG calls with fixed search and generation parameters.
type Invoker struct {
	client      Retriever
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	limit       int
	offset      int
	logger      *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithModel sets the generation model. The service default is used when empty.
func WithModel(model string) InvokerOption {
	return func(i *Invoker) {
		i.model = model
	}
}

// WithTemperature sets the generation temperature.
func WithTemperature(t float64) InvokerOption {
	return func(i *Invoker) {
		i.temperature = t
	}
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) InvokerOption {
	return func(i *Invoker) {
		i.topP = p
	}
}

// WithMaxTokens caps the generated tokens.
func WithMaxTokens(n int) InvokerOption {
	return func(i *Invoker) {
		i.maxTokens = n
	}
}

// WithLimit sets how many chunks are retrieved.
func WithLimit(n int) InvokerOption {
	return func(i *Invoker) {
		i.limit = n
	}
}

// WithOffset sets the search offset.
func WithOffset(n int) InvokerOption {
	return func(i *Invoker) {
		i.offset = n
	}
}

// WithSettings copies model, sampling and retrieval parameters from s.
func WithSettings(s *settings.Settings) InvokerOption {
	return func(i *Invoker) {
		i.model = s.ChatModel
		i.temperature = s.Temperature
		i.topP = s.TopP
		i.maxTokens = s.MaxTokens
		i.limit = s.TopK
	}
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// NewInvoker creates an Invoker over client.
func NewInvoker(client Retriever, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		client:      client,
		temperature: settings.DefaultTemperature,
		topP:        settings.DefaultTopP,
		maxTokens:   settings.DefaultMaxTokens,
		limit:       settings.DefaultTopK,
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// With returns a copy of the invoker with opts applied.
func (i *Invoker) With(opts ...InvokerOption) *Invoker {
	c := *i
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Model returns the generation model.
func (i *Invoker) Model() string {
	return i.model
}

// Request builds the RAG request for query.
func (i *Invoker) Request(query, taskPrompt string, stream bool) r2r.RAGRequest {
	return r2r.RAGRequest{
		Query:            query,
		SearchMode:       SearchModeCustom,
		SearchSettings:   SearchSettings(i.limit, i.offset),
		GenerationConfig: GenerationConfig(i.model, i.temperature, i.topP, i.maxTokens, stream),
		TaskPrompt:       taskPrompt,
	}
}

// Stream starts a streaming RAG call. The caller must Close the stream.
func (i *Invoker) Stream(ctx context.Context, query, taskPrompt string) (*r2r.EventStream, error) {
	i.logger.Info("Stream called", "model", i.model, "limit", i.limit, "query_len", len(query))
	return i.client.RAGStream(ctx, i.Request(query, taskPrompt, true))
}

// Complete runs a non-streaming RAG call.
func (i *Invoker) Complete(ctx context.Context, query, taskPrompt string) (*r2r.RAGResponse, error) {
	i.logger.Info("Complete called", "model", i.model, "limit", i.limit, "query_len", len(query))
	return i.client.RAG(ctx, i.Request(query, taskPrompt, false))
}

// EventSource is a closable stream of RAG events.
type EventSource interface {
	Events() <-chan r2r.Event
	Err() error
	Close() error
}

// ExtractCompletion forwards the answer text of message events, in order.
// Every other event kind is dropped. The channel is closed when the stream
// ends or ctx is done; in the latter case the stream is closed too.
func ExtractCompletion(ctx context.Context, events EventSource) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				events.Close()
				return
			case ev, ok := <-events.Events():
				if !ok {
					return
				}
				text := ev.DeltaText()
				if text == "" {
					continue
				}
				select {
				case out <- text:
				case <-ctx.Done():
					events.Close()
					return
				}
			}
		}
	}()
	return out
}

// Collect accumulates the answer of events, passing each delta to onToken
// when it is not nil. On failure the text received so far is returned with
// the error.
func Collect(ctx context.Context, events EventSource, onToken func(string)) (string, error) {
	defer events.Close()

	var sb strings.Builder
	for delta := range ExtractCompletion(ctx, events) {
		sb.WriteString(delta)
		if onToken != nil {
			onToken(delta)
		}
	}
	if err := ctx.Err(); err != nil {
		return sb.String(), err
	}
	if err := events.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}
