package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/storage/chatstore"
	"github.com/aqua777/go-ragchat/textsplitter"
)

const summaryHeader = "Summarize the parts of the conversation below that are relevant to the current query."

const summaryConstraints = `Constraints:
- Write at most 5 sentences.
- Keep only details relevant to the current query.
- Do not add explanations, preambles or commentary.`

// ContextSummarizer condenses selected history into a preamble for the query.
type ContextSummarizer struct {
	llm           llm.LLM
	temperature   float32
	contextWindow int
	maxTokens     int
	maxSentences  int
	counter       textsplitter.TokenCounter
	sentences     textsplitter.SentenceSplitterStrategy
	postProcess   *llm.PostProcessorRegistry
	logger        *slog.Logger
}

// ContextSummarizerOption configures a ContextSummarizer.
type ContextSummarizerOption func(*ContextSummarizer)

// WithSummaryTemperature sets the generation temperature.
func WithSummaryTemperature(t float32) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.temperature = t
	}
}

// WithPromptBudget bounds the prompt to contextWindow minus maxTokens tokens.
// A zero context window disables the budget.
func WithPromptBudget(contextWindow, maxTokens int) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.contextWindow = contextWindow
		s.maxTokens = maxTokens
	}
}

// WithTokenCounter sets the counter used for the prompt budget.
func WithTokenCounter(c textsplitter.TokenCounter) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.counter = c
	}
}

// WithSentenceStrategy sets the sentence splitter used to clamp summaries.
func WithSentenceStrategy(st textsplitter.SentenceSplitterStrategy) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.sentences = st
	}
}

// WithMaxSentences sets the summary sentence cap. Zero disables clamping.
func WithMaxSentences(n int) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.maxSentences = n
	}
}

// WithPostProcessors sets the registry used to clean model output.
func WithPostProcessors(r *llm.PostProcessorRegistry) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.postProcess = r
	}
}

// WithSummarizerLogger sets the logger.
func WithSummarizerLogger(logger *slog.Logger) ContextSummarizerOption {
	return func(s *ContextSummarizer) {
		s.logger = logger
	}
}

// NewContextSummarizer creates a summarizer over l.
func NewContextSummarizer(l llm.LLM, opts ...ContextSummarizerOption) (*ContextSummarizer, error) {
	s := &ContextSummarizer{
		llm:          l,
		temperature:  DefaultSummaryTemperature,
		maxSentences: DefaultMaxSummarySentences,
		postProcess:  llm.NewPostProcessorRegistry(),
		logger:       slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.contextWindow > 0 && s.counter == nil {
		counter, err := textsplitter.DefaultTokenCounter()
		if err != nil {
			return nil, fmt.Errorf("failed to create token counter: %w", err)
		}
		s.counter = counter
	}
	if s.maxSentences > 0 && s.sentences == nil {
		st, err := textsplitter.NewNeurosnapSplitterStrategy(nil)
		if err != nil {
			return nil, err
		}
		s.sentences = st
	}
	return s, nil
}

// BuildPrompt renders the summarization prompt. History is listed in
// chronological order; when a budget is set the oldest entries are dropped
// until the prompt fits, keeping at least one.
func (s *ContextSummarizer) BuildPrompt(query string, selected []chatstore.Message) string {
	history := chronological(selected)
	prompt := renderSummaryPrompt(query, history)

	budget := s.contextWindow - s.maxTokens
	if s.contextWindow <= 0 || budget <= 0 {
		return prompt
	}
	for len(history) > 1 && s.counter.CountTokens(prompt) > budget {
		history = history[1:]
		prompt = renderSummaryPrompt(query, history)
	}
	return prompt
}

// Summarize asks the model for a short summary of the parts of selected that
// matter for query. An empty selection returns "" without calling the model.
func (s *ContextSummarizer) Summarize(ctx context.Context, query string, selected []chatstore.Message) (string, error) {
	if len(selected) == 0 {
		return "", nil
	}

	prompt := s.BuildPrompt(query, selected)
	model := llm.ModelIDOf(s.llm)
	s.logger.Info("Summarize called", "model", model, "messages", len(selected), "prompt_len", len(prompt))

	out, err := llm.CompleteWith(ctx, s.llm, prompt, (&llm.GenerateOptions{}).WithTemperature(s.temperature))
	if err != nil {
		return "", fmt.Errorf("failed to summarize history: %w", err)
	}

	summary := strings.TrimSpace(s.postProcess.For(model)(out))
	if s.maxSentences > 0 {
		summary = textsplitter.FirstSentences(s.sentences, summary, s.maxSentences)
	}
	return summary, nil
}

// Fuse prefixes query with the summary. An empty summary returns query unchanged.
func Fuse(query, summary string) string {
	if strings.TrimSpace(summary) == "" {
		return query
	}
	return "Relevant conversation context:\n" + summary + "\n\nCurrent query:\n" + query
}

// Enhance summarizes selected and fuses the result into query.
func (s *ContextSummarizer) Enhance(ctx context.Context, query string, selected []chatstore.Message) (*EnhancedQuery, error) {
	if len(selected) == 0 {
		return &EnhancedQuery{Query: query, Prompt: query}, nil
	}
	summary, err := s.Summarize(ctx, query, selected)
	if err != nil {
		return nil, err
	}
	return &EnhancedQuery{Query: query, Summary: summary, Prompt: Fuse(query, summary)}, nil
}

func renderSummaryPrompt(query string, history []chatstore.Message) string {
	var b strings.Builder
	b.WriteString(summaryHeader)
	b.WriteString("\n\nConversation:\n")
	for i, m := range history {
		fmt.Fprintf(&b, "%d. (%s) %s\n", i+1, m.Role, strings.TrimSpace(m.Content))
	}
	b.WriteString("\nCurrent query: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(summaryConstraints)
	b.WriteString("\n\nSummary:")
	return b.String()
}

func chronological(msgs []chatstore.Message) []chatstore.Message {
	out := append([]chatstore.Message(nil), msgs...)
	for _, m := range out {
		if m.CreatedAt.IsZero() {
			return out
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
