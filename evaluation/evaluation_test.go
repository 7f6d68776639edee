package evaluation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/storage/kvstore"
)

type EvaluationTestSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func (s *EvaluationTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *EvaluationTestSuite) judge(l llm.LLM, opts ...JudgeOption) *Judge {
	return NewJudge(l, append([]JudgeOption{WithJudgeLogger(s.logger)}, opts...)...)
}

func (s *EvaluationTestSuite) sample() *Sample {
	return &Sample{
		Input:            "What does MRR measure?",
		Reference:        "MRR is the mean of reciprocal ranks. It rewards early hits. It ignores later hits.",
		ReferenceContext: []string{"MRR averages reciprocal ranks.", "Reciprocal rank is 1/p."},
		ActualOutput:     "MRR averages the reciprocal rank of the first relevant result.",
		RetrievedContext: []string{"a", "b", "c", "d"},
	}
}

func (s *EvaluationTestSuite) TestWeightedContextPrecision() {
	mock := llm.NewMockLLM(`{"verdicts": [
		{"verdict": "yes", "reason": "r1"},
		{"verdict": "no", "reason": "r2"},
		{"verdict": " YES ", "reason": "r3"},
		{"verdict": "no", "reason": "r4"}]}`)
	metric := NewContextPrecisionMetric(s.judge(mock))

	res, err := metric.Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.InDelta((1.0+2.0/3.0)/2, float64(res.Value), 1e-9)
	s.Equal("r1 r2 r3 r4", res.Reason)

	s.Require().Len(mock.Options, 1)
	s.True(mock.Options[0].JSON)
	s.InDelta(0.0, *mock.Options[0].Temperature, 1e-9)
	s.True(strings.HasSuffix(mock.Prompts[0], "JSON:"))
}

func (s *EvaluationTestSuite) TestWeightedPrecisionBounds() {
	s.Equal(0.0, WeightedPrecision([]bool{false, false}))
	s.Equal(0.0, WeightedPrecision(nil))
	s.Equal(1.0, WeightedPrecision([]bool{true, true, false}))
	s.Equal(1.0, WeightedPrecision([]bool{true}))
	s.InDelta(0.5, WeightedPrecision([]bool{false, true}), 1e-9)
}

func (s *EvaluationTestSuite) TestContextPrecisionVerdictCountMismatch() {
	mock := llm.NewMockLLM(`{"verdicts": [{"verdict": "yes", "reason": "r"}]}`)
	_, err := NewContextPrecisionMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.ErrorIs(err, ragerr.ErrParseFailure)
	s.Equal(2, mock.CallCount())
}

func (s *EvaluationTestSuite) TestContextRecall() {
	mock := llm.NewScriptedMockLLM(
		`{"statements": ["MRR is the mean of reciprocal ranks.", "MRR rewards early hits.", "MRR ignores later hits."]}`,
		`{"verdicts": [
			{"statement": "MRR is the mean of reciprocal ranks.", "attributed": 1, "reason": "stated"},
			{"statement": "MRR rewards early hits.", "attributed": 1, "reason": "implied"},
			{"statement": "MRR ignores later hits.", "attributed": 0, "reason": "missing"}]}`,
	)
	res, err := NewContextRecallMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.InDelta(2.0/3.0, float64(res.Value), 1e-9)

	s.Require().Equal(2, mock.CallCount())
	s.InDelta(1.0, *mock.Options[0].Temperature, 1e-9)
	s.InDelta(0.0, *mock.Options[1].Temperature, 1e-9)
	s.Contains(mock.Prompts[1], "MRR rewards early hits.")
}

func (s *EvaluationTestSuite) TestContextRecallEmptyDecomposition() {
	mock := llm.NewMockLLM(`{"statements": []}`)
	_, err := NewContextRecallMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.ErrorIs(err, ragerr.ErrParseFailure)
	s.Equal(2, mock.CallCount(), "classification never runs")
}

func (s *EvaluationTestSuite) TestFaithfulness() {
	mock := llm.NewScriptedMockLLM(
		`{"claims": ["c1", "c2", "c3"]}`,
		`{"verdicts": [{"verdict": "yes", "reason": "a"}, {"verdict": "no", "reason": "b"}, {"verdict": "idk", "reason": "c"}]}`,
	)
	res, err := NewFaithfulnessMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.InDelta(0.5, float64(res.Value), 1e-9)
	s.Equal(1, res.Auxiliary["supported"])
	s.Equal(1, res.Auxiliary["contradicted"])
}

func (s *EvaluationTestSuite) TestFaithfulnessNoClaims() {
	mock := llm.NewMockLLM(`{"claims": []}`)
	res, err := NewFaithfulnessMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.Equal(Score(1), res.Value)
	s.Equal(1, mock.CallCount())
}

func (s *EvaluationTestSuite) TestFaithfulnessEmptyRetrieval() {
	sample := s.sample()
	sample.RetrievedContext = nil

	mock := llm.NewMockLLM(`{"claims": ["MRR averages reciprocal ranks."]}`)
	res, err := NewFaithfulnessMetric(s.judge(mock)).Measure(s.ctx, sample)
	s.Require().NoError(err)
	s.Equal(Score(0), res.Value)
	s.Equal(1, mock.CallCount(), "no verdicts are requested")

	none := llm.NewMockLLM(`{"claims": []}`)
	res, err = NewFaithfulnessMetric(s.judge(none)).Measure(s.ctx, sample)
	s.Require().NoError(err)
	s.Equal(Score(1), res.Value)
}

func (s *EvaluationTestSuite) TestRunnerScoresEmptyRetrieval() {
	mock := llm.NewMockLLM(`{"claims": ["c1"]}`)
	j := s.judge(mock)
	runner := NewRunner([]Metric{NewFaithfulnessMetric(j), NewContextPrecisionMetric(j)}, WithRunnerLogger(s.logger))

	sample := s.sample()
	sample.RetrievedContext = nil
	results, err := runner.Run(s.ctx, "empty", []*Sample{sample})
	s.Require().NoError(err)
	s.Equal([]Score{0}, results.Scores("faithfulness"))
	s.Equal([]Score{0}, results.Scores(prompts.ContextPrecisionName))
}

func (s *EvaluationTestSuite) TestJudgeSendsSeed() {
	mock := llm.NewScriptedMockLLM(
		`{"claims": ["c1"]}`,
		`{"verdicts": [{"verdict": "yes", "reason": "ok"}]}`,
	)
	_, err := NewFaithfulnessMetric(s.judge(mock, WithJudgeSeed(7))).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.Require().Len(mock.Options, 2)
	for i, want := range []float32{DecompositionTemperature, ClassificationTemperature} {
		s.Require().NotNil(mock.Options[i].Seed)
		s.Equal(7, *mock.Options[i].Seed)
		s.Require().NotNil(mock.Options[i].Temperature)
		s.Equal(want, *mock.Options[i].Temperature)
	}
	s.Equal(DefaultJudgeSeed, s.judge(mock).Seed())
}

func (s *EvaluationTestSuite) TestFaithfulnessRetriesOnce() {
	mock := llm.NewScriptedMockLLM(
		`{"claims": ["c1"]}`,
		`I think the claim is supported.`,
		`Sure! {"verdicts": [{"verdict": "yes", "reason": "ok"}]} Hope this helps.`,
	)
	res, err := NewFaithfulnessMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.Equal(Score(1), res.Value)
	s.Equal(3, mock.CallCount())
	s.Equal(mock.Prompts[1], mock.Prompts[2], "retry uses the same prompt")
}

func (s *EvaluationTestSuite) TestHallucination() {
	mock := llm.NewMockLLM(`{"verdicts": [{"verdict": "yes", "reason": "agrees"}, {"verdict": "no", "reason": "contradicts"}]}`)
	metric := NewHallucinationMetric(s.judge(mock))

	res, err := metric.Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.InDelta(0.5, float64(res.Value), 1e-9)

	sample := s.sample()
	sample.ReferenceContext = nil
	_, err = metric.Measure(s.ctx, sample)
	s.ErrorIs(err, ragerr.ErrValidation)
}

func (s *EvaluationTestSuite) TestAnswerRelevancy() {
	mock := llm.NewMockLLM(`{"score": 0.8, "reason": "mostly answers"}`)
	res, err := NewAnswerRelevancyMetric(s.judge(mock)).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.InDelta(0.8, float64(res.Value), 1e-9)
	s.Equal("mostly answers", res.Reason)
}

func (s *EvaluationTestSuite) TestReciprocalRank() {
	sample := s.sample()
	sample.RetrievedContext = []string{"first", "second", "third"}
	model := &embedding.MockEmbeddingModel{Vectors: map[string][]float64{
		sample.Reference: {1, 0},
		"first":          {0.1, math.Sqrt(1 - 0.01)},
		"second":         {0.8, 0.6},
		"third":          {0.2, math.Sqrt(1 - 0.04)},
	}}

	res, err := NewReciprocalRankMetric(model, WithRelevanceThreshold(0.75)).Measure(s.ctx, sample)
	s.Require().NoError(err)
	s.InDelta(0.5, float64(res.Value), 1e-9)

	res, err = NewReciprocalRankMetric(model, WithRelevanceThreshold(0.9)).Measure(s.ctx, sample)
	s.Require().NoError(err)
	s.Equal(Score(0), res.Value)
}

func (s *EvaluationTestSuite) TestMeanReciprocalRank() {
	s.InDelta(0.75, float64(MeanReciprocalRank([]Score{1, 0.5, NaN()})), 1e-9)
	s.True(MeanReciprocalRank([]Score{NaN()}).IsNaN())
	s.True(MeanReciprocalRank(nil).IsNaN())
}

func (s *EvaluationTestSuite) TestJudgeParseFailureRecordsNaN() {
	mock := llm.NewMockLLM("not json")
	runner := NewRunner([]Metric{NewAnswerRelevancyMetric(s.judge(mock))}, WithRunnerLogger(s.logger))

	decided := s.sample()
	decided.Input = "Is this decided?"
	results, err := runner.Run(s.ctx, "exp", []*Sample{s.sample()})
	s.Require().NoError(err)
	s.Equal(2, mock.CallCount())

	scores := results.Scores(prompts.AnswerRelevancyName)
	s.Require().Len(scores, 1)
	s.True(scores[0].IsNaN())
	s.True(results.Summary()[prompts.AnswerRelevancyName].IsNaN())

	mock.Response = `{"score": 0.6, "reason": "ok"}`
	more, err := runner.Run(s.ctx, "exp", []*Sample{decided})
	s.Require().NoError(err)
	results.Add(prompts.AnswerRelevancyName, decided.ID, &MetricResult{Value: more.Scores(prompts.AnswerRelevancyName)[0]})
	s.InDelta(0.6, float64(results.Summary()[prompts.AnswerRelevancyName]), 1e-9, "NaN excluded from the mean")
}

func (s *EvaluationTestSuite) TestJudgeCacheHit() {
	mock := llm.NewMockLLM(`{"score": 1, "reason": "direct"}`)
	cache, err := kvstore.NewSQLiteKVStore(":memory:")
	s.Require().NoError(err)
	defer cache.Close()

	metric := NewAnswerRelevancyMetric(s.judge(mock, WithJudgeCache(cache)))
	_, err = metric.Measure(s.ctx, s.sample())
	s.Require().NoError(err)

	again := llm.NewMockLLM("unused")
	res, err := NewAnswerRelevancyMetric(s.judge(again, WithJudgeCache(cache))).Measure(s.ctx, s.sample())
	s.Require().NoError(err)
	s.Equal(Score(1), res.Value)
	s.Equal(1, mock.CallCount())
	s.Zero(again.CallCount())
}

func (s *EvaluationTestSuite) TestCacheKey() {
	s.NotEqual(CacheKey("p", "m", 0, 42), CacheKey("p", "m", 1, 42))
	s.NotEqual(CacheKey("p", "m", 0, 42), CacheKey("p", "n", 0, 42))
	s.NotEqual(CacheKey("p", "m", 0, 42), CacheKey("p", "m", 0, 7))
	s.Equal(CacheKey("p", "m", 0.5, 42), CacheKey("p", "m", 0.5, 42))
}

type failingMetric struct {
	failAt int
	calls  int
	err    error
}

func (m *failingMetric) Name() string { return "failing" }

func (m *failingMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	m.calls++
	if m.calls-1 == m.failAt {
		return nil, m.err
	}
	return &MetricResult{MetricName: m.Name(), Value: 1}, nil
}

func (s *EvaluationTestSuite) TestRunnerAbortsWithSampleIndex() {
	boom := ragerr.Upstream("llm.complete", 500, "boom")
	var progress bytes.Buffer
	runner := NewRunner([]Metric{&failingMetric{failAt: 1, err: boom}},
		WithProgressWriter(&progress), WithRunnerLogger(s.logger))

	_, err := runner.Run(s.ctx, "exp", []*Sample{s.sample(), {Input: "second"}, {Input: "third"}})
	var sampleErr *SampleError
	s.Require().True(errors.As(err, &sampleErr))
	s.Equal(1, sampleErr.Index)
	s.Equal("failing", sampleErr.Metric)
	s.ErrorIs(err, ragerr.ErrUpstream)
	s.Equal(1, strings.Count(progress.String(), "\n"), "only the finished sample is reported")
}

func (s *EvaluationTestSuite) TestRunnerSavesFinishedSamplesBeforeAbort() {
	boom := ragerr.Upstream("llm.complete", 503, "unavailable")
	path := filepath.Join(s.T().TempDir(), "results", "02_abort.jsonl")
	runner := NewRunner([]Metric{&failingMetric{failAt: 1, err: boom}},
		WithResultsPath(path), WithRunnerLogger(s.logger))

	first := s.sample()
	first.ID = "s0"
	results, err := runner.Run(s.ctx, "02_abort", []*Sample{first, {ID: "s1", Input: "second"}})
	var sampleErr *SampleError
	s.Require().True(errors.As(err, &sampleErr))
	s.Equal(1, sampleErr.Index)
	s.Len(results.Scores("failing"), 1, "the aborted sample is not recorded")

	saved, err := ReadResults(path)
	s.Require().NoError(err)
	s.Require().Len(saved.Metrics, 1)
	s.Require().Len(saved.Metrics[0].Scores, 1)
	s.Equal("s0", saved.Metrics[0].Scores[0].SampleID)
	s.Equal(Score(1), saved.Metrics[0].Scores[0].Score)
}

func (s *EvaluationTestSuite) TestResultsRoundTrip() {
	results := NewExperimentResults("01_baseline")
	results.Add("reciprocal_rank", "s1", &MetricResult{Value: 1})
	results.Add("reciprocal_rank", "s2", &MetricResult{Value: NaN(), Reason: "judge failed"})
	results.Add("reciprocal_rank", "s3", &MetricResult{Value: 0.5})

	path := filepath.Join(s.T().TempDir(), "results", "01_baseline.jsonl")
	s.Require().NoError(results.WriteFile(path))

	raw, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Contains(string(raw), `"score":null`)
	s.Equal(1, strings.Count(string(raw), "\n"))

	loaded, err := ReadResults(path)
	s.Require().NoError(err)
	s.Equal("01_baseline", loaded.Name)
	scores := loaded.Scores("reciprocal_rank")
	s.Require().Len(scores, 3)
	s.True(scores[1].IsNaN())

	summary := loaded.Summary()
	s.InDelta(0.75, float64(summary["reciprocal_rank"]), 1e-9)
	s.InDelta(0.75, float64(summary[MeanReciprocalRankName]), 1e-9)
}

func (s *EvaluationTestSuite) TestReadConsolidatedResults() {
	data := []byte(`{
		"faithfulness": [{"sample_id": "s1", "score": 1}, {"sample_id": "s2", "score": null}],
		"answer_relevancy": [{"sample_id": "s1", "score": 0.5, "reason": "partial"}]
	}`)
	res, err := ParseResults("legacy", data)
	s.Require().NoError(err)
	s.Equal([]string{"answer_relevancy", "faithfulness"}, res.MetricNames())
	s.InDelta(1.0, float64(res.Summary()["faithfulness"]), 1e-9)

	_, err = ParseResults("broken", []byte(`{"metric": `))
	s.ErrorIs(err, ragerr.ErrParseFailure)

	_, err = ReadResults(filepath.Join(s.T().TempDir(), "missing.jsonl"))
	s.ErrorIs(err, ragerr.ErrNotFound)
}

func (s *EvaluationTestSuite) TestSampleAliases() {
	var sample Sample
	err := sample.UnmarshalJSON([]byte(`{
		"input": "q",
		"expected_output": "a",
		"context": ["c1"],
		"retrieval_context": ["r1", "r2"]
	}`))
	s.Require().NoError(err)
	s.Equal("a", sample.Reference)
	s.Equal([]string{"c1"}, sample.ReferenceContext)
	s.Equal([]string{"r1", "r2"}, sample.RetrievedContext)

	id := sample.EnsureID()
	s.NotEmpty(id)
	other := Sample{Input: "q", Reference: "a"}
	s.Equal(id, other.EnsureID())
}

func (s *EvaluationTestSuite) TestMetricRegistry() {
	j := s.judge(llm.NewMockLLM(""))
	registry := NewMetricRegistry(NewAnswerRelevancyMetric(j), NewFaithfulnessMetric(j))
	s.Equal([]string{"answer_relevancy", "faithfulness"}, registry.List())

	metrics, unknown := registry.Select("faithfulness", "nope")
	s.Len(metrics, 1)
	s.Equal([]string{"nope"}, unknown)
}

func TestEvaluationTestSuite(t *testing.T) {
	suite.Run(t, new(EvaluationTestSuite))
}
