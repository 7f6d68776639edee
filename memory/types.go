// Package memory selects the prior conversation turns relevant to a query and
// condenses them into a context preamble for retrieval.
package memory

import (
	"github.com/aqua777/go-ragchat/storage/chatstore"
)

const (
	// DefaultSimilarityThreshold is the minimum cosine score of a selected message.
	DefaultSimilarityThreshold = 0.75
	// DefaultMaxRelevantMessages caps the number of selected messages.
	DefaultMaxRelevantMessages = 5
	// DefaultSummaryTemperature keeps summaries close to the source turns.
	DefaultSummaryTemperature = 0.1
	// DefaultMaxSummarySentences bounds the summary length.
	DefaultMaxSummarySentences = 5
)

// ScoredMessage is a history message with its similarity to the query.
type ScoredMessage struct {
	Message chatstore.Message
	Score   float64
}

// Messages returns the messages of scored, in the same order.
func Messages(scored []ScoredMessage) []chatstore.Message {
	out := make([]chatstore.Message, len(scored))
	for i, s := range scored {
		out[i] = s.Message
	}
	return out
}

// EnhancedQuery is the query sent to retrieval. It is never persisted.
type EnhancedQuery struct {
	// Query is the original user query.
	Query string
	// Summary is the condensed relevant history, empty when nothing was selected.
	Summary string
	// Prompt is the text sent to the RAG service.
	Prompt string
}
