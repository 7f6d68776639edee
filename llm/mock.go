package llm

import (
	"context"
	"sync"
)

// MockLLM is a mock implementation of the LLM interface.
// Responses are returned in order; once exhausted, Response is returned.
type MockLLM struct {
	// Response is the text response to return.
	Response string
	// Responses is a script of responses consumed one per call.
	Responses []string
	// Tokens is streamed by Stream; defaults to the next response as a single token.
	Tokens []string
	// Err is the error to return (if any).
	Err error
	// Model is reported by ModelID.
	Model string

	mu      sync.Mutex
	Prompts []string
	Options []*GenerateOptions
}

// NewMockLLM creates a new MockLLM with a simple response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a new MockLLM that returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Err: err}
}

// NewScriptedMockLLM creates a MockLLM that answers with responses in order.
func NewScriptedMockLLM(responses ...string) *MockLLM {
	return &MockLLM{Responses: responses}
}

func (m *MockLLM) next(prompt string, opts *GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	m.Options = append(m.Options, opts)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		r := m.Responses[0]
		m.Responses = m.Responses[1:]
		return r, nil
	}
	return m.Response, nil
}

func (m *MockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.next(prompt, nil)
}

func (m *MockLLM) CompleteWithOptions(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	return m.next(prompt, opts)
}

func (m *MockLLM) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	return m.next(prompt, nil)
}

func (m *MockLLM) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	resp, err := m.next(prompt, nil)
	if err != nil {
		return nil, err
	}
	tokens := m.Tokens
	if tokens == nil {
		tokens = []string{resp}
	}
	ch := make(chan string, len(tokens))
	for _, t := range tokens {
		ch <- t
	}
	close(ch)
	return ch, nil
}

// ModelID returns the configured model name.
func (m *MockLLM) ModelID() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// CallCount returns the number of calls made so far.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

var _ LLMWithOptions = (*MockLLM)(nil)
