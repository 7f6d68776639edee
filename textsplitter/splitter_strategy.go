package textsplitter

import (
	"fmt"
	"os"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// SentenceSplitterStrategy splits text into sentences.
type SentenceSplitterStrategy interface {
	Split(text string) []string
}

// RegexSplitterStrategy uses regex for sentence splitting.
type RegexSplitterStrategy struct {
	split func(string) []string
}

func NewRegexSplitterStrategy(regexStr string) *RegexSplitterStrategy {
	if regexStr == "" {
		regexStr = DefaultChunkingRegex
	}
	return &RegexSplitterStrategy{split: SplitByRegex(regexStr)}
}

func (s *RegexSplitterStrategy) Split(text string) []string {
	return s.split(text)
}

// NeurosnapSplitterStrategy uses neurosnap/sentences (Punkt) for sentence splitting.
type NeurosnapSplitterStrategy struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewNeurosnapSplitterStrategy creates a strategy from JSON training data.
// Empty training data selects the bundled English model.
func NewNeurosnapSplitterStrategy(trainingData []byte) (*NeurosnapSplitterStrategy, error) {
	if len(trainingData) == 0 {
		tokenizer, err := english.NewSentenceTokenizer(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load english sentence model: %w", err)
		}
		return &NeurosnapSplitterStrategy{tokenizer: tokenizer}, nil
	}

	storage, err := sentences.LoadTraining(trainingData)
	if err != nil {
		return nil, fmt.Errorf("failed to load training data: %w", err)
	}
	return &NeurosnapSplitterStrategy{tokenizer: sentences.NewSentenceTokenizer(storage)}, nil
}

// NewNeurosnapSplitterStrategyFromFile creates a new strategy by reading training data from a file.
func NewNeurosnapSplitterStrategyFromFile(path string) (*NeurosnapSplitterStrategy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training data from %s: %w", path, err)
	}
	return NewNeurosnapSplitterStrategy(b)
}

// Split returns the trimmed, non-empty sentences of text.
func (s *NeurosnapSplitterStrategy) Split(text string) []string {
	sents := s.tokenizer.Tokenize(text)
	result := make([]string, 0, len(sents))
	for _, sent := range sents {
		if t := strings.TrimSpace(sent.Text); t != "" {
			result = append(result, t)
		}
	}
	return result
}

// FirstSentences keeps at most n sentences of text. Text with n or fewer sentences is returned trimmed.
func FirstSentences(strategy SentenceSplitterStrategy, text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 || text == "" {
		return text
	}
	sents := strategy.Split(text)
	if len(sents) <= n {
		return text
	}
	kept := make([]string, 0, n)
	for _, s := range sents[:n] {
		kept = append(kept, strings.TrimSpace(s))
	}
	return strings.Join(kept, " ")
}
