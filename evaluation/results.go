package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/aqua777/go-ragchat/ragerr"
)

// SampleScore is one sample's score for a metric.
type SampleScore struct {
	SampleID string `json:"sample_id"`
	Score    Score  `json:"score"`
	Reason   string `json:"reason,omitempty"`
}

// MetricScores is one line of a results file.
type MetricScores struct {
	Metric string        `json:"metric"`
	Scores []SampleScore `json:"scores"`
}

// ExperimentResults holds every metric's scores for one experiment, in metric order.
type ExperimentResults struct {
	Name    string
	Metrics []*MetricScores
}

// NewExperimentResults creates an empty result set.
func NewExperimentResults(name string) *ExperimentResults {
	return &ExperimentResults{Name: name}
}

func (r *ExperimentResults) ensure(metric string) *MetricScores {
	for _, m := range r.Metrics {
		if m.Metric == metric {
			return m
		}
	}
	m := &MetricScores{Metric: metric, Scores: []SampleScore{}}
	r.Metrics = append(r.Metrics, m)
	return m
}

// Add records a metric result for a sample.
func (r *ExperimentResults) Add(metric, sampleID string, res *MetricResult) {
	m := r.ensure(metric)
	m.Scores = append(m.Scores, SampleScore{SampleID: sampleID, Score: res.Value, Reason: res.Reason})
}

// MetricNames returns the metric names in file order.
func (r *ExperimentResults) MetricNames() []string {
	names := make([]string, len(r.Metrics))
	for i, m := range r.Metrics {
		names[i] = m.Metric
	}
	return names
}

// Scores returns the scores of a metric, or nil when it is absent.
func (r *ExperimentResults) Scores(metric string) []Score {
	for _, m := range r.Metrics {
		if m.Metric != metric {
			continue
		}
		out := make([]Score, len(m.Scores))
		for i, s := range m.Scores {
			out[i] = s.Score
		}
		return out
	}
	return nil
}

// Summary returns the NaN-safe mean of each metric. When reciprocal ranks
// are present the mean reciprocal rank is included as well.
func (r *ExperimentResults) Summary() map[string]Score {
	out := make(map[string]Score, len(r.Metrics)+1)
	for _, m := range r.Metrics {
		out[m.Metric] = Mean(r.Scores(m.Metric))
	}
	if rr := r.Scores("reciprocal_rank"); rr != nil {
		out[MeanReciprocalRankName] = MeanReciprocalRank(rr)
	}
	return out
}

// MarshalJSONL encodes one MetricScores object per line.
func (r *ExperimentResults) MarshalJSONL() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range r.Metrics {
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", m.Metric, err)
		}
	}
	return buf.Bytes(), nil
}

// WriteFile writes the results as JSONL. The file is replaced atomically.
func (r *ExperimentResults) WriteFile(path string) error {
	data, err := r.MarshalJSONL()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// ReadResults reads a results file. Both the JSONL layout and a single JSON
// object mapping metric names to score lists are accepted.
func ReadResults(path string) (*ExperimentResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerr.NotFound("evaluation.read_results", path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res, err := ParseResults(name, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// ParseResults decodes results in either supported layout.
func ParseResults(name string, data []byte) (*ExperimentResults, error) {
	res := NewExperimentResults(name)
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, ragerr.ParseFailure("evaluation.parse_results", err)
		}
		if isMetricLine(raw) {
			var line MetricScores
			if err := json.Unmarshal(mustMarshal(raw), &line); err != nil {
				return nil, ragerr.ParseFailure("evaluation.parse_results", err)
			}
			m := res.ensure(line.Metric)
			m.Scores = append(m.Scores, line.Scores...)
			continue
		}

		metrics := make([]string, 0, len(raw))
		for metric := range raw {
			metrics = append(metrics, metric)
		}
		sort.Strings(metrics)
		for _, metric := range metrics {
			var scores []SampleScore
			if err := json.Unmarshal(raw[metric], &scores); err != nil {
				return nil, ragerr.ParseFailure("evaluation.parse_results", fmt.Errorf("metric %s: %w", metric, err))
			}
			m := res.ensure(metric)
			m.Scores = append(m.Scores, scores...)
		}
	}
	return res, nil
}

func isMetricLine(raw map[string]json.RawMessage) bool {
	_, hasMetric := raw["metric"]
	_, hasScores := raw["scores"]
	return hasMetric && hasScores && len(raw) == 2
}

func mustMarshal(raw map[string]json.RawMessage) []byte {
	data, _ := json.Marshal(raw)
	return data
}

// WriteFileAtomic replaces path with data in one rename, creating parent
// directories. Readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
