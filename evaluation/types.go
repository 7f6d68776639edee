// Package evaluation scores RAG answers with LLM judges and embedding
// metrics and stores per-experiment results.
package evaluation

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// sampleNamespace seeds deterministic sample ids.
var sampleNamespace = uuid.MustParse("6f1d3c52-5a0e-4d55-9a7c-2b8e1f0c9d41")

// Score is a metric value that encodes NaN as JSON null.
type Score float64

// NaN returns an undecided score.
func NaN() Score {
	return Score(math.NaN())
}

// IsNaN reports whether the score is undecided.
func (s Score) IsNaN() bool {
	return math.IsNaN(float64(s))
}

func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NaN()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Score(f)
	return nil
}

// Sample is one golden, optionally augmented with the system's answer.
type Sample struct {
	ID               string           `json:"id,omitempty"`
	Input            string           `json:"input"`
	Reference        string           `json:"reference,omitempty"`
	ReferenceContext []string         `json:"reference_context,omitempty"`
	ActualOutput     string           `json:"actual_output,omitempty"`
	RetrievedContext []string         `json:"retrieved_context,omitempty"`
	Scores           map[string]Score `json:"scores,omitempty"`
}

// UnmarshalJSON accepts both the canonical field names and the
// expected_output / context / retrieval_context spellings.
func (s *Sample) UnmarshalJSON(data []byte) error {
	type canonical Sample
	aux := struct {
		canonical
		ExpectedOutput   *string  `json:"expected_output"`
		Context          []string `json:"context"`
		RetrievalContext []string `json:"retrieval_context"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Sample(aux.canonical)
	if s.Reference == "" && aux.ExpectedOutput != nil {
		s.Reference = *aux.ExpectedOutput
	}
	if s.ReferenceContext == nil {
		s.ReferenceContext = aux.Context
	}
	if s.RetrievedContext == nil {
		s.RetrievedContext = aux.RetrievalContext
	}
	return nil
}

// EnsureID assigns a deterministic id derived from the input and reference when none is set.
func (s *Sample) EnsureID() string {
	if s.ID == "" {
		s.ID = uuid.NewSHA1(sampleNamespace, []byte(s.Input+"\x00"+s.Reference)).String()
	}
	return s.ID
}

// MetricResult is one metric's verdict on one sample.
type MetricResult struct {
	MetricName string                 `json:"metric"`
	Value      Score                  `json:"score"`
	Reason     string                 `json:"reason,omitempty"`
	Auxiliary  map[string]interface{} `json:"auxiliary,omitempty"`
}

// Metric scores samples.
type Metric interface {
	// Name returns the metric name used in result files.
	Name() string
	// Measure scores one sample. A ParseFailure error means the judge could
	// not decide; any other error aborts the run.
	Measure(ctx context.Context, sample *Sample) (*MetricResult, error)
}

// MetricRegistry holds metrics by name.
type MetricRegistry struct {
	metrics map[string]Metric
}

// NewMetricRegistry creates a registry holding metrics.
func NewMetricRegistry(metrics ...Metric) *MetricRegistry {
	r := &MetricRegistry{metrics: make(map[string]Metric)}
	for _, m := range metrics {
		r.Register(m)
	}
	return r
}

// Register adds a metric to the registry.
func (r *MetricRegistry) Register(m Metric) {
	r.metrics[m.Name()] = m
}

// Get returns a metric by name.
func (r *MetricRegistry) Get(name string) (Metric, bool) {
	m, ok := r.metrics[name]
	return m, ok
}

// List returns the registered metric names, sorted.
func (r *MetricRegistry) List() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named metrics in order; unknown names are reported.
func (r *MetricRegistry) Select(names ...string) ([]Metric, []string) {
	var out []Metric
	var unknown []string
	for _, name := range names {
		if m, ok := r.metrics[name]; ok {
			out = append(out, m)
		} else {
			unknown = append(unknown, name)
		}
	}
	return out, unknown
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
