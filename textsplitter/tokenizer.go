package textsplitter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// EncodingCL100kBase is the fallback encoding for models tiktoken does not know,
// which includes every local Ollama model.
const EncodingCL100kBase = "cl100k_base"

// TokenCounter counts tokens in text.
type TokenCounter interface {
	CountTokens(text string) int
}

// WhitespaceCounter counts whitespace separated words.
type WhitespaceCounter struct{}

func (WhitespaceCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

// TikTokenCounter counts tokens with a tiktoken encoding.
type TikTokenCounter struct {
	encoding     *tiktoken.Tiktoken
	encodingName string
}

// NewTikTokenCounter returns a counter for model, falling back to cl100k_base.
func NewTikTokenCounter(model string) (*TikTokenCounter, error) {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &TikTokenCounter{encoding: enc, encodingName: model}, nil
		}
	}
	enc, err := tiktoken.GetEncoding(EncodingCL100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", EncodingCL100kBase, err)
	}
	return &TikTokenCounter{encoding: enc, encodingName: EncodingCL100kBase}, nil
}

// CountTokens returns the number of tokens in the text.
func (t *TikTokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Truncate returns the longest prefix of text that fits in maxTokens.
func (t *TikTokenCounter) Truncate(text string, maxTokens int) string {
	ids := t.encoding.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	if maxTokens <= 0 {
		return ""
	}
	return t.encoding.Decode(ids[:maxTokens])
}

// EncodingName returns the encoding name.
func (t *TikTokenCounter) EncodingName() string {
	return t.encodingName
}

var (
	defaultCounter     TokenCounter
	defaultCounterOnce sync.Once
	defaultCounterErr  error
)

// DefaultTokenCounter returns a shared cl100k_base counter.
// This is safe for concurrent use.
func DefaultTokenCounter() (TokenCounter, error) {
	defaultCounterOnce.Do(func() {
		defaultCounter, defaultCounterErr = NewTikTokenCounter("")
	})
	return defaultCounter, defaultCounterErr
}

var _ TokenCounter = (*TikTokenCounter)(nil)
var _ TokenCounter = WhitespaceCounter{}
