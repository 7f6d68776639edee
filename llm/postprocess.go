package llm

import (
	"sort"
	"strings"
	"sync"
)

// PostProcessor transforms raw model output before it is stored.
type PostProcessor func(text string) string

// Identity returns text unchanged.
func Identity(text string) string { return text }

// StripThink removes everything up to and including the last </think> tag.
func StripThink(text string) string {
	const closing = "</think>"
	i := strings.LastIndex(text, closing)
	if i < 0 {
		return text
	}
	return strings.TrimLeft(text[i+len(closing):], " \t\r\n")
}

// PostProcessorRegistry maps model id prefixes to post-processors.
// The longest matching prefix wins.
type PostProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]PostProcessor
}

// NewPostProcessorRegistry returns a registry preloaded with the known reasoning models.
func NewPostProcessorRegistry() *PostProcessorRegistry {
	r := &PostProcessorRegistry{processors: make(map[string]PostProcessor)}
	for _, prefix := range []string{"deepseek-r1", "qwen3", "qwq", "phi4-reasoning", "magistral", "cogito"} {
		r.Register(prefix, StripThink)
	}
	return r
}

// Register sets the post-processor for model ids starting with prefix.
func (r *PostProcessorRegistry) Register(prefix string, p PostProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[prefix] = p
}

// For returns the post-processor for model, or Identity.
func (r *PostProcessorRegistry) For(model string) PostProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.processors))
	for p := range r.processors {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, p := range prefixes {
		if strings.HasPrefix(model, p) {
			return r.processors[p]
		}
	}
	return Identity
}
