package questiongen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/evaluation/dataset"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/ragerr"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGenerator(mock *llm.MockLLM) *LLMQuestionGenerator {
	judge := evaluation.NewJudge(mock, evaluation.WithJudgeLogger(quiet()))
	return NewLLMQuestionGenerator(judge, WithQuestionGenLogger(quiet()))
}

const golden = `{"input": " What does MRR average? ", "expected_output": "Reciprocal ranks."}`

func TestGenerate(t *testing.T) {
	mock := llm.NewMockLLM(golden)
	g := newGenerator(mock)
	assert.Equal(t, "LLMQuestionGenerator", g.Name())

	passages := []string{"MRR averages reciprocal ranks.", "RR is 1/p."}
	s, err := g.Generate(context.Background(), passages)
	require.NoError(t, err)

	assert.Equal(t, "What does MRR average?", s.Input)
	assert.Equal(t, "Reciprocal ranks.", s.Reference)
	assert.Equal(t, passages, s.ReferenceContext)
	assert.NotEmpty(t, s.ID)

	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Prompts[0], "MRR averages reciprocal ranks.")
	require.NotNil(t, mock.Options[0].Temperature)
	assert.InDelta(t, DefaultSynthesisTemperature, *mock.Options[0].Temperature, 1e-6)
	assert.True(t, mock.Options[0].JSON)
}

func TestGenerateRejectsEmptyFields(t *testing.T) {
	mock := llm.NewMockLLM(`{"input": "  ", "expected_output": "x"}`)
	g := newGenerator(mock)

	_, err := g.Generate(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ragerr.ErrParseFailure)
	assert.Equal(t, evaluation.DefaultJudgeAttempts, mock.CallCount())

	_, err = g.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ragerr.ErrValidation)
}

func TestGenerateAllSkipsUnusableContexts(t *testing.T) {
	mock := llm.NewScriptedMockLLM(golden, "not json", "still not json", golden)
	g := newGenerator(mock)

	samples, skipped, err := g.GenerateAll(context.Background(), [][]string{{"first"}, {"second"}, {"third"}})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, samples, 2)
	assert.Equal(t, []string{"first"}, samples[0].ReferenceContext)
	assert.Equal(t, []string{"third"}, samples[1].ReferenceContext)
}

func TestGenerateFile(t *testing.T) {
	dir := t.TempDir()
	contextsPath := filepath.Join(dir, "contexts.json")
	out := filepath.Join(dir, "goldens.jsonl")
	require.NoError(t, dataset.WriteContexts(contextsPath, [][]string{{"a", "b"}, {"c", "d"}}))

	n, skipped, err := newGenerator(llm.NewMockLLM(golden)).GenerateFile(context.Background(), contextsPath, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, skipped)

	samples, err := dataset.ReadSamples(out)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, []string{"c", "d"}, samples[1].ReferenceContext)
	assert.Empty(t, samples[1].ActualOutput)
}

func TestGenerateFileAbortsOnUpstreamError(t *testing.T) {
	dir := t.TempDir()
	contextsPath := filepath.Join(dir, "contexts.json")
	out := filepath.Join(dir, "goldens.jsonl")
	require.NoError(t, dataset.WriteContexts(contextsPath, [][]string{{"a"}}))

	boom := errors.New("connection refused")
	_, _, err := newGenerator(llm.NewMockLLMWithError(boom)).GenerateFile(context.Background(), contextsPath, out)
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, out)
}
