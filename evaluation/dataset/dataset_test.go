package dataset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/r2r"
	"github.com/aqua777/go-ragchat/rag"
	"github.com/aqua777/go-ragchat/ragerr"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":       "alpha one.\n\nalpha two.",
		"b.md":        "beta one.\n\nbeta two.",
		"README.md":   "readme one.",
		"notes.csv":   "x,y",
		".hidden.txt": "hidden one.",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func corpusEmbeddings() *embedding.MockEmbeddingModel {
	return &embedding.MockEmbeddingModel{Embedding: []float64{1, 1, 1}, Vectors: map[string][]float64{
		"alpha one.": {1, 0, 0},
		"alpha two.": {0.9, 0.1, 0},
		"beta one.":  {0, 1, 0},
		"beta two.":  {0, 0.9, 0.1},
	}}
}

func TestContextBuilderBuild(t *testing.T) {
	dir := writeCorpus(t)
	corpus := NewMockCorpus(r2r.Document{ID: "old-1"}, r2r.Document{ID: "old-2"})
	embedModel := corpusEmbeddings()
	builder := NewContextBuilder(corpus, embedModel,
		WithChunksPerDocument(1),
		WithContextSize(2),
		WithSeed(7),
		WithBuilderLogger(quiet()))

	contexts, err := builder.Build(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"old-1", "old-2"}, corpus.Deleted)
	require.Len(t, corpus.Created, 2)
	assert.Equal(t, DocumentID("a.txt"), corpus.Created[0].ID)
	assert.Equal(t, DocumentID("b.md"), corpus.Created[1].ID)
	assert.Equal(t, filepath.Join(dir, "a.txt"), corpus.Created[0].FilePath)
	assert.Equal(t, []string{DocumentID("a.txt"), DocumentID("b.md")}, corpus.Waited)

	require.Len(t, contexts, 2)
	assert.ElementsMatch(t, []string{"alpha one.", "alpha two."}, contexts[0])
	assert.ElementsMatch(t, []string{"beta one.", "beta two."}, contexts[1])
	assert.Equal(t, 4, embedModel.CallCount())

	again, err := builder.Build(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, contexts, again, "same seed, same contexts")
	assert.Equal(t, 4, embedModel.CallCount(), "embeddings cached by chunk id")
}

func TestContextBuilderChunksMode(t *testing.T) {
	dir := writeCorpus(t)
	corpus := NewMockCorpus()
	builder := NewContextBuilder(corpus, corpusEmbeddings(),
		WithIngestMode(IngestChunks),
		WithChunking(64, 8),
		WithChunksPerDocument(5),
		WithContextSize(1),
		WithBuilderLogger(quiet()))

	contexts, err := builder.Build(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, corpus.Created, 2)
	for _, req := range corpus.Created {
		assert.Empty(t, req.FilePath)
		assert.NotEmpty(t, req.Chunks)
	}
	assert.Contains(t, strings.Join(corpus.Created[0].Chunks, " "), "alpha one.")

	total := len(corpus.Created[0].Chunks) + len(corpus.Created[1].Chunks)
	assert.Len(t, contexts, total, "every chunk drawn when N exceeds the document size")
	for _, c := range contexts {
		assert.Len(t, c, 1)
	}
}

func TestContextBuilderFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("too few chunks", func(t *testing.T) {
		builder := NewContextBuilder(NewMockCorpus(), corpusEmbeddings(), WithContextSize(10), WithBuilderLogger(quiet()))
		_, err := builder.Build(ctx, writeCorpus(t))
		assert.ErrorIs(t, err, ragerr.ErrValidation)
	})

	t.Run("ingestion failed", func(t *testing.T) {
		corpus := NewMockCorpus()
		corpus.FailIngestion = true
		builder := NewContextBuilder(corpus, corpusEmbeddings(), WithBuilderLogger(quiet()))
		_, err := builder.Build(ctx, writeCorpus(t))
		assert.ErrorIs(t, err, ragerr.ErrUpstream)
	})

	t.Run("no eligible documents", func(t *testing.T) {
		builder := NewContextBuilder(NewMockCorpus(), corpusEmbeddings(), WithBuilderLogger(quiet()))
		_, err := builder.Build(ctx, t.TempDir())
		assert.ErrorIs(t, err, ragerr.ErrValidation)
	})

	t.Run("zero chunk vector", func(t *testing.T) {
		embedModel := corpusEmbeddings()
		embedModel.Vectors["alpha one."] = []float64{0, 0, 0}
		builder := NewContextBuilder(NewMockCorpus(), embedModel, WithBuilderLogger(quiet()))
		_, err := builder.Build(ctx, writeCorpus(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to rank neighbours")
		assert.NotContains(t, err.Error(), "texts, want")
	})

	t.Run("embedding unavailable", func(t *testing.T) {
		embedModel := &embedding.MockEmbeddingModel{Err: embedding.ErrEmbeddingUnavailable}
		builder := NewContextBuilder(NewMockCorpus(), embedModel, WithBuilderLogger(quiet()))
		_, err := builder.Build(ctx, writeCorpus(t))
		assert.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)
	})
}

func TestCheckContexts(t *testing.T) {
	assert.NoError(t, CheckContexts([][]string{{"s", "n"}}, []string{"s"}, 2))
	assert.ErrorIs(t, CheckContexts([][]string{{"s"}}, []string{"s"}, 2), ragerr.ErrValidation)
	assert.ErrorIs(t, CheckContexts([][]string{{"n", "s"}}, []string{"s"}, 2), ragerr.ErrValidation)
	assert.ErrorIs(t, CheckContexts([][]string{{"s", "n"}}, nil, 2), ragerr.ErrValidation)
}

func TestContextsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "contexts.json")
	contexts := [][]string{{"a", "b"}, {"c", "d"}}
	require.NoError(t, WriteContexts(path, contexts))

	got, err := ReadContexts(path)
	require.NoError(t, err)
	assert.Equal(t, contexts, got)
}

func TestSamplesJSONL(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "goldens.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(
		`{"input": "q1", "expected_output": "a1", "context": ["c1"]}`+"\n\n"+
			`{"input": "q2", "reference": "a2"}`+"\n"), 0644))

	samples, err := ReadSamples(in)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "a1", samples[0].Reference)
	assert.Equal(t, []string{"c1"}, samples[0].ReferenceContext)

	require.NoError(t, os.WriteFile(in, []byte("{\"input\": \"q1\"}\nnot json\n"), 0644))
	_, err = ReadSamples(in)
	assert.ErrorIs(t, err, ragerr.ErrParseFailure)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadSamples(filepath.Join(dir, "missing.jsonl"))
	assert.ErrorIs(t, err, ragerr.ErrNotFound)
}

func newFiller(retriever rag.Retriever, model string) *Filler {
	invoker := rag.NewInvoker(retriever, rag.WithModel(model), rag.WithLimit(4), rag.WithInvokerLogger(quiet()))
	return NewFiller(invoker, WithFillerLogger(quiet()))
}

func TestFillerFill(t *testing.T) {
	retriever := &rag.MockRetriever{Responses: map[string]*r2r.RAGResponse{
		"q1": {
			GeneratedAnswer: "<think>the context says so</think>\nMRR is a mean.",
			SearchResults: r2r.SearchResults{ChunkSearchResults: []r2r.ChunkSearchResult{
				{Text: "c1"}, {Text: "c2"},
			}},
		},
	}}
	filler := newFiller(retriever, "deepseek-r1:8b")

	golden := &evaluation.Sample{Input: "q1", Reference: "a1"}
	filled, err := filler.Fill(context.Background(), []*evaluation.Sample{golden})
	require.NoError(t, err)
	require.Len(t, filled, 1)

	assert.Equal(t, "MRR is a mean.", filled[0].ActualOutput)
	assert.Equal(t, []string{"c1", "c2"}, filled[0].RetrievedContext)
	assert.Equal(t, "a1", filled[0].Reference)
	assert.NotEmpty(t, filled[0].ID)
	assert.Empty(t, golden.ActualOutput, "input samples are not modified")

	require.Len(t, retriever.Requests, 1)
	req := retriever.Requests[0]
	assert.Equal(t, prompts.EvalRAGTemplate, req.TaskPrompt)
	assert.Equal(t, 4, req.SearchSettings.Limit)
	assert.False(t, req.GenerationConfig.Stream)
	assert.Equal(t, "deepseek-r1:8b", req.GenerationConfig.Model)
}

func TestFillerFileAbortsOnError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "goldens.jsonl")
	out := filepath.Join(dir, "filled.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(`{"input": "q1", "expected_output": "a1"}`+"\n"), 0644))

	boom := ragerr.Upstream("retrieval.rag", 502, "bad gateway")
	_, err := newFiller(&rag.MockRetriever{Err: boom}, "llama3.1").FillFile(context.Background(), in, out)
	assert.True(t, errors.Is(err, ragerr.ErrUpstream))
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "nothing written")

	retriever := &rag.MockRetriever{Response: &r2r.RAGResponse{Completion: "answer"}}
	n, err := newFiller(retriever, "llama3.1").FillFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	samples, err := ReadSamples(out)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "answer", samples[0].ActualOutput)
	assert.Equal(t, "a1", samples[0].Reference)
}

func TestFillerFileRepeatable(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "goldens.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(
		`{"input": "q1", "expected_output": "a1", "context": ["c1", "c2"]}`+"\n"+
			`{"input": "q2", "expected_output": "a2", "context": ["c3"]}`+"\n"), 0644))

	retriever := &rag.MockRetriever{Responses: map[string]*r2r.RAGResponse{
		"q1": {
			GeneratedAnswer: "MRR is a mean.",
			SearchResults: r2r.SearchResults{ChunkSearchResults: []r2r.ChunkSearchResult{
				{Text: "c1"}, {Text: "c2"},
			}},
		},
		"q2": {
			GeneratedAnswer: "Recall counts attributed statements.",
			SearchResults: r2r.SearchResults{ChunkSearchResults: []r2r.ChunkSearchResult{
				{Text: "c3"},
			}},
		},
	}}

	first := filepath.Join(dir, "first.jsonl")
	second := filepath.Join(dir, "second.jsonl")
	_, err := newFiller(retriever, "llama3.1").FillFile(context.Background(), in, first)
	require.NoError(t, err)
	_, err = newFiller(retriever, "llama3.1").FillFile(context.Background(), in, second)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "outputs differ:\n%s\n%s", a, b)
	assert.Contains(t, string(a), `"id":`)
}
