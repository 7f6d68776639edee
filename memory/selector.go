package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/storage/chatstore"
)

// HistorySelector picks the prior messages most similar to a query embedding.
type HistorySelector struct {
	threshold   float64
	maxMessages int
	window      int
	logger      *slog.Logger
}

// HistorySelectorOption configures a HistorySelector.
type HistorySelectorOption func(*HistorySelector)

// WithThreshold sets the minimum cosine score.
func WithThreshold(tau float64) HistorySelectorOption {
	return func(s *HistorySelector) {
		s.threshold = tau
	}
}

// WithMaxMessages caps the number of selected messages. Zero or less means unbounded.
func WithMaxMessages(k int) HistorySelectorOption {
	return func(s *HistorySelector) {
		s.maxMessages = k
	}
}

// WithWindow restricts candidates to the last n messages of the history. Zero means all.
func WithWindow(n int) HistorySelectorOption {
	return func(s *HistorySelector) {
		s.window = n
	}
}

// WithSelectorLogger sets the logger.
func WithSelectorLogger(logger *slog.Logger) HistorySelectorOption {
	return func(s *HistorySelector) {
		s.logger = logger
	}
}

// NewHistorySelector creates a new HistorySelector.
func NewHistorySelector(opts ...HistorySelectorOption) *HistorySelector {
	s := &HistorySelector{
		threshold:   DefaultSimilarityThreshold,
		maxMessages: DefaultMaxRelevantMessages,
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select scores the user and assistant messages of history against query and
// returns those scoring at least the threshold, best first. Equal scores keep
// history order. Messages without an embedding are skipped.
func (s *HistorySelector) Select(query []float64, history []chatstore.Message) ([]ScoredMessage, error) {
	const op = "memory.select"

	if s.window > 0 && len(history) > s.window {
		history = history[len(history)-s.window:]
	}

	candidates := make([]chatstore.Message, 0, len(history))
	vectors := make([][]float64, 0, len(history))
	for _, m := range history {
		if m.Role != llm.MessageRoleUser && m.Role != llm.MessageRoleAssistant {
			continue
		}
		if len(m.Embedding) == 0 {
			s.logger.Warn("Skipping message without embedding", "message_id", m.ID)
			continue
		}
		if len(m.Embedding) != len(query) {
			return nil, ragerr.Wrap(ragerr.KindValidation, op,
				fmt.Errorf("%w: message %s has %d dimensions, query has %d", embedding.ErrDimensionMismatch, m.ID, len(m.Embedding), len(query)))
		}
		candidates = append(candidates, m)
		vectors = append(vectors, m.Embedding)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ranked, err := embedding.TopK(query, vectors, s.maxMessages, s.threshold)
	if err != nil {
		if errors.Is(err, embedding.ErrDimensionMismatch) {
			return nil, ragerr.Wrap(ragerr.KindValidation, op, err)
		}
		return nil, fmt.Errorf("failed to score history: %w", err)
	}

	out := make([]ScoredMessage, len(ranked))
	for i, r := range ranked {
		out[i] = ScoredMessage{Message: candidates[r.Index], Score: r.Score}
	}
	s.logger.Info("History selected", "candidates", len(candidates), "selected", len(out), "threshold", s.threshold)
	return out, nil
}
