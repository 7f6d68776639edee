package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/storage/chatstore"
	"github.com/aqua777/go-ragchat/textsplitter"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func msg(id string, role llm.MessageRole, content string, v ...float64) chatstore.Message {
	return chatstore.Message{ID: id, Role: role, Content: content, Embedding: v}
}

func TestSelectOrdersAndFilters(t *testing.T) {
	s := NewHistorySelector(WithThreshold(0.5), WithMaxMessages(2), WithSelectorLogger(quiet()))
	history := []chatstore.Message{
		msg("sys", llm.MessageRoleSystem, "be nice", 1, 0),
		msg("far", llm.MessageRoleUser, "unrelated", 0, 1),
		msg("mid", llm.MessageRoleAssistant, "related", 0.8, 0.6),
		msg("same", llm.MessageRoleUser, "same", 1, 0),
		msg("close", llm.MessageRoleAssistant, "close", 0.9, 0.1),
	}

	got, err := s.Select([]float64{1, 0}, history)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "same", got[0].Message.ID)
	assert.GreaterOrEqual(t, got[0].Score, 0.9999)
	assert.Equal(t, "close", got[1].Message.ID)
	for _, g := range got {
		assert.GreaterOrEqual(t, g.Score, 0.5)
	}
}

func TestSelectEdgeCases(t *testing.T) {
	s := NewHistorySelector(WithSelectorLogger(quiet()))

	got, err := s.Select([]float64{1, 0}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Select([]float64{1, 0}, []chatstore.Message{msg("a", llm.MessageRoleUser, "x", 0, 1)})
	require.NoError(t, err)
	assert.Empty(t, got, "all scores below threshold")

	_, err = s.Select([]float64{1, 0}, []chatstore.Message{msg("a", llm.MessageRoleUser, "x", 1, 0, 0)})
	assert.ErrorIs(t, err, ragerr.ErrValidation)
}

func TestSelectTiesKeepHistoryOrder(t *testing.T) {
	s := NewHistorySelector(WithThreshold(0.1), WithMaxMessages(0), WithSelectorLogger(quiet()))
	history := []chatstore.Message{
		msg("first", llm.MessageRoleUser, "a", 1, 1),
		msg("second", llm.MessageRoleAssistant, "b", 1, 1),
		msg("third", llm.MessageRoleUser, "c", 1, 1),
	}
	got, err := s.Select([]float64{1, 1}, history)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Message.ID, got[1].Message.ID, got[2].Message.ID})
}

func TestSelectWindow(t *testing.T) {
	s := NewHistorySelector(WithThreshold(0.5), WithWindow(1), WithSelectorLogger(quiet()))
	history := []chatstore.Message{
		msg("old", llm.MessageRoleUser, "a", 1, 0),
		msg("new", llm.MessageRoleAssistant, "b", 1, 0.1),
	}
	got, err := s.Select([]float64{1, 0}, history)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Message.ID)
}

func newSummarizer(t *testing.T, l llm.LLM, opts ...ContextSummarizerOption) *ContextSummarizer {
	t.Helper()
	s, err := NewContextSummarizer(l, append([]ContextSummarizerOption{WithSummarizerLogger(quiet())}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestFuse(t *testing.T) {
	assert.Equal(t, "q", Fuse("q", ""))
	assert.Equal(t, "Relevant conversation context:\nS\n\nCurrent query:\nq", Fuse("q", "S"))
}

func TestEnhanceEmptySelectionSkipsModel(t *testing.T) {
	mock := llm.NewMockLLM("unused")
	s := newSummarizer(t, mock)

	eq, err := s.Enhance(context.Background(), "what is MRR?", nil)
	require.NoError(t, err)
	assert.Equal(t, "what is MRR?", eq.Prompt)
	assert.Empty(t, eq.Summary)
	assert.Zero(t, mock.CallCount())
}

func TestEnhanceSummarizes(t *testing.T) {
	mock := llm.NewMockLLM("Cosine similarity was defined as the normalized dot product.")
	s := newSummarizer(t, mock)

	selected := []chatstore.Message{
		msg("a1", llm.MessageRoleAssistant, "Cosine similarity is the normalized dot product.", 1, 0),
	}
	eq, err := s.Enhance(context.Background(), "how is it computed?", selected)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(eq.Prompt, "Relevant conversation context:\n"))
	assert.True(t, strings.HasSuffix(eq.Prompt, "\n\nCurrent query:\nhow is it computed?"))
	require.Equal(t, 1, mock.CallCount())

	prompt := mock.Prompts[0]
	assert.Contains(t, prompt, "1. (assistant) Cosine similarity is the normalized dot product.")
	assert.Contains(t, prompt, "at most 5 sentences")
	assert.Contains(t, prompt, "only details relevant")
	assert.Contains(t, prompt, "Do not add explanations")
	require.NotNil(t, mock.Options[0].Temperature)
	assert.InDelta(t, 0.1, *mock.Options[0].Temperature, 1e-6)
}

func TestSummaryClampAndThinkStripping(t *testing.T) {
	mock := llm.NewMockLLM("<think>let me see</think>One. Two. Three. Four. Five. Six. Seven.")
	mock.Model = "deepseek-r1:8b"
	s := newSummarizer(t, mock, WithSentenceStrategy(textsplitter.NewRegexSplitterStrategy("")))

	summary, err := s.Summarize(context.Background(), "q", []chatstore.Message{msg("m", llm.MessageRoleUser, "x", 1)})
	require.NoError(t, err)
	assert.Equal(t, "One. Two. Three. Four. Five.", summary)
}

func TestSummarizeError(t *testing.T) {
	boom := errors.New("boom")
	s := newSummarizer(t, llm.NewMockLLMWithError(boom))

	_, err := s.Enhance(context.Background(), "q", []chatstore.Message{msg("m", llm.MessageRoleUser, "x", 1)})
	assert.ErrorIs(t, err, boom)
}

func TestBuildPromptBudgetDropsOldest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := msg("old", llm.MessageRoleUser, strings.Repeat("old ", 50), 1)
	older.CreatedAt = base
	newer := msg("new", llm.MessageRoleAssistant, "recent answer", 1)
	newer.CreatedAt = base.Add(time.Minute)

	unbounded := newSummarizer(t, llm.NewMockLLM(""), WithTokenCounter(textsplitter.WhitespaceCounter{}))
	full := unbounded.BuildPrompt("q", []chatstore.Message{newer, older})
	assert.Less(t, strings.Index(full, "(user) old"), strings.Index(full, "(assistant) recent answer"), "listed oldest first")

	limit := textsplitter.WhitespaceCounter{}.CountTokens(full) - 10
	bounded := newSummarizer(t, llm.NewMockLLM(""),
		WithTokenCounter(textsplitter.WhitespaceCounter{}),
		WithPromptBudget(limit+100, 100))
	prompt := bounded.BuildPrompt("q", []chatstore.Message{newer, older})
	assert.NotContains(t, prompt, "(user) old")
	assert.Contains(t, prompt, "1. (assistant) recent answer")
}
