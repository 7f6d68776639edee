package plot

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/ragerr"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExperimentOrdering(t *testing.T) {
	names := []string{"baseline.jsonl", "10_rerank.jsonl", "2_chunks.json", "alpha.json", "02_a.jsonl"}
	sort.SliceStable(names, func(i, j int) bool { return ExperimentLess(names[i], names[j]) })
	assert.Equal(t, []string{"02_a.jsonl", "2_chunks.json", "10_rerank.jsonl", "alpha.json", "baseline.jsonl"}, names)

	n, ok := NumericPrefix("007_run.jsonl")
	assert.True(t, ok)
	assert.Equal(t, 7, n)
	_, ok = NumericPrefix("run.jsonl")
	assert.False(t, ok)
}

func TestMetricsAndColors(t *testing.T) {
	exps := []Experiment{
		{Name: "a", Means: map[string]evaluation.Score{"zeta": 1, "faithfulness": 1}},
		{Name: "b", Means: map[string]evaluation.Score{"answer_relevancy": 0.5, "beta": 0}},
	}
	assert.Equal(t, []string{"answer_relevancy", "faithfulness", "beta", "zeta"}, Metrics(exps))
	assert.Equal(t, MetricColor("faithfulness"), MetricColor("faithfulness"))
	assert.NotEqual(t, MetricColor("faithfulness"), MetricColor("answer_relevancy"))
}

func writeResults(t *testing.T, dir, name string, scores ...evaluation.Score) {
	t.Helper()
	res := evaluation.NewExperimentResults(name)
	for i, s := range scores {
		res.Add("answer_relevancy", string(rune('a'+i)), &evaluation.MetricResult{Value: s})
		res.Add("reciprocal_rank", string(rune('a'+i)), &evaluation.MetricResult{Value: s})
	}
	require.NoError(t, res.WriteFile(filepath.Join(dir, name+".jsonl")))
}

func TestAggregatorRun(t *testing.T) {
	dir := t.TempDir()
	writeResults(t, dir, "2_rerank", 1, evaluation.NaN(), 0.5)
	writeResults(t, dir, "1_baseline", 0.2, 0.4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"),
		[]byte(`{"faithfulness": [{"sample_id": "a", "score": 0.9}, {"sample_id": "b", "score": null}]}`), 0644))

	agg := NewAggregator(WithAggregatorLogger(quiet()))
	out := filepath.Join(t.TempDir(), "charts", "results.png")
	exps, err := agg.Run(dir, out)
	require.NoError(t, err)

	require.Len(t, exps, 3)
	assert.Equal(t, "1_baseline", exps[0].Name)
	assert.Equal(t, "2_rerank", exps[1].Name)
	assert.Equal(t, "legacy", exps[2].Name)

	assert.InDelta(t, 0.75, float64(exps[1].Means["answer_relevancy"]), 1e-9, "NaN excluded from the mean")
	assert.InDelta(t, 0.75, float64(exps[1].Means[evaluation.MeanReciprocalRankName]), 1e-9)
	assert.InDelta(t, 0.9, float64(exps[2].Means["faithfulness"]), 1e-9)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestAggregatorErrors(t *testing.T) {
	agg := NewAggregator(WithAggregatorLogger(quiet()))

	_, err := agg.Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	err = agg.Render(nil, filepath.Join(t.TempDir(), "x.png"))
	assert.ErrorIs(t, err, ragerr.ErrValidation)
}
