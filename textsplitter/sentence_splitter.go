// Package textsplitter splits documents into token-bounded chunks and counts tokens.
package textsplitter

import (
	"strings"

	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/validation"
)

const (
	DefaultChunkSize     = 1024
	DefaultChunkOverlap  = 200
	DefaultParagraphSep  = "\n\n\n"
	DefaultSeparator     = " "
	DefaultChunkingRegex = `[^,.;。？！]+[,.;。？！]?|[,.;。？！]`
)

type textSplit struct {
	text       string
	isSentence bool
	tokens     int
}

// SentenceSplitter splits text into chunks of at most ChunkSize tokens,
// preferring whole paragraphs, then whole sentences, then words.
// Consecutive chunks share up to ChunkOverlap tokens of trailing splits.
type SentenceSplitter struct {
	chunkSize          int
	chunkOverlap       int
	paragraphSeparator string
	counter            TokenCounter
	strategy           SentenceSplitterStrategy

	splitFns            []func(string) []string
	subSentenceSplitFns []func(string) []string
}

// SplitterOption configures a SentenceSplitter.
type SplitterOption func(*SentenceSplitter)

// WithTokenCounter sets the token counter. Defaults to WhitespaceCounter.
func WithTokenCounter(c TokenCounter) SplitterOption {
	return func(s *SentenceSplitter) {
		s.counter = c
	}
}

// WithSentenceStrategy sets the sentence splitter. Defaults to RegexSplitterStrategy.
func WithSentenceStrategy(st SentenceSplitterStrategy) SplitterOption {
	return func(s *SentenceSplitter) {
		s.strategy = st
	}
}

// WithParagraphSeparator sets the paragraph separator.
func WithParagraphSeparator(sep string) SplitterOption {
	return func(s *SentenceSplitter) {
		s.paragraphSeparator = sep
	}
}

// NewSentenceSplitter creates a SentenceSplitter.
func NewSentenceSplitter(chunkSize, chunkOverlap int, opts ...SplitterOption) (*SentenceSplitter, error) {
	if err := validation.ValidateChunkParams(chunkSize, chunkOverlap); err != nil {
		return nil, ragerr.Wrap(ragerr.KindValidation, "textsplitter.new", err)
	}

	s := &SentenceSplitter{
		chunkSize:          chunkSize,
		chunkOverlap:       chunkOverlap,
		paragraphSeparator: DefaultParagraphSep,
		counter:            WhitespaceCounter{},
		strategy:           NewRegexSplitterStrategy(DefaultChunkingRegex),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.splitFns = []func(string) []string{
		SplitBySep(s.paragraphSeparator),
		func(text string) []string { return realign(text, s.strategy.Split(text)) },
	}
	s.subSentenceSplitFns = []func(string) []string{
		SplitByRegex(DefaultChunkingRegex),
		SplitBySep(DefaultSeparator),
		SplitByChar(),
	}
	return s, nil
}

// SplitText splits the text into trimmed, non-empty chunks.
func (s *SentenceSplitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	chunks := s.merge(s.split(text))

	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *SentenceSplitter) split(text string) []textSplit {
	n := s.counter.CountTokens(text)
	if n <= s.chunkSize {
		return []textSplit{{text: text, isSentence: true, tokens: n}}
	}

	parts, isSentence := s.splitByFns(text)
	if len(parts) <= 1 {
		// Indivisible; emit oversized.
		return []textSplit{{text: text, isSentence: false, tokens: n}}
	}
	var out []textSplit
	for _, p := range parts {
		n := s.counter.CountTokens(p)
		if n <= s.chunkSize {
			out = append(out, textSplit{text: p, isSentence: isSentence, tokens: n})
			continue
		}
		out = append(out, s.split(p)...)
	}
	return out
}

func (s *SentenceSplitter) splitByFns(text string) ([]string, bool) {
	for _, fn := range s.splitFns {
		if parts := fn(text); len(parts) > 1 {
			return parts, true
		}
	}
	var parts []string
	for _, fn := range s.subSentenceSplitFns {
		if parts = fn(text); len(parts) > 1 {
			break
		}
	}
	return parts, false
}

func (s *SentenceSplitter) merge(splits []textSplit) []string {
	var chunks []string
	var cur []textSplit
	curLen := 0
	// fresh is true while cur holds only the overlap carried from the previous chunk.
	fresh := true

	flush := func() {
		chunks = append(chunks, joinSplits(cur))
		prev := cur
		cur, curLen, fresh = nil, 0, true
		for i := len(prev) - 1; i >= 0; i-- {
			if curLen+prev[i].tokens > s.chunkOverlap {
				break
			}
			curLen += prev[i].tokens
			cur = append([]textSplit{prev[i]}, cur...)
		}
	}

	for i := 0; i < len(splits); {
		sp := splits[i]
		if curLen+sp.tokens > s.chunkSize && !fresh {
			flush()
			continue
		}
		// A fresh chunk always takes at least one split.
		cur = append(cur, sp)
		curLen += sp.tokens
		fresh = false
		i++
	}
	if !fresh {
		chunks = append(chunks, joinSplits(cur))
	}
	return chunks
}

func joinSplits(splits []textSplit) string {
	var sb strings.Builder
	for _, sp := range splits {
		sb.WriteString(sp.text)
	}
	return sb.String()
}

// realign maps trimmed sentences back onto text so that concatenating them reproduces text.
// Sentences that cannot be located are returned unchanged.
func realign(text string, parts []string) []string {
	if len(parts) < 2 {
		return parts
	}
	starts := make([]int, 0, len(parts))
	pos := 0
	for _, p := range parts {
		i := strings.Index(text[pos:], p)
		if i < 0 {
			return parts
		}
		starts = append(starts, pos+i)
		pos += i + len(p)
	}
	out := make([]string, len(parts))
	for k := range starts {
		start, end := starts[k], len(text)
		if k == 0 {
			start = 0
		}
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		out[k] = text[start:end]
	}
	return out
}
