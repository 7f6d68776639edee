package llm

import "context"

// LLM is the interface for interacting with Large Language Models.
type LLM interface {
	// Complete generates a completion for a given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// Chat generates a response for a list of chat messages.
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
	// Stream generates a streaming completion for a given prompt.
	Stream(ctx context.Context, prompt string) (<-chan string, error)
}

// LLMWithOptions extends LLM with per-call generation options.
// Judges and the summarizer use it to pin temperature and JSON output.
type LLMWithOptions interface {
	LLM
	// CompleteWithOptions generates a completion, overriding the client defaults with opts.
	CompleteWithOptions(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)
	// ModelID returns the model identifier used for requests.
	ModelID() string
}

// CompleteWith calls CompleteWithOptions when l supports it and falls back to Complete.
func CompleteWith(ctx context.Context, l LLM, prompt string, opts *GenerateOptions) (string, error) {
	if lo, ok := l.(LLMWithOptions); ok {
		return lo.CompleteWithOptions(ctx, prompt, opts)
	}
	return l.Complete(ctx, prompt)
}

// ModelIDOf returns the model identifier of l, or "" when it does not report one.
func ModelIDOf(l LLM) string {
	if lo, ok := l.(LLMWithOptions); ok {
		return lo.ModelID()
	}
	return ""
}
