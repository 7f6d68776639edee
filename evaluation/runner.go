package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aqua777/go-ragchat/ragerr"
)

// SampleError reports the sample that aborted a run.
type SampleError struct {
	Index    int
	SampleID string
	Metric   string
	Err      error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %d (%s) metric %s: %v", e.Index, e.SampleID, e.Metric, e.Err)
}

func (e *SampleError) Unwrap() error {
	return e.Err
}

// Progress is written once per finished sample.
type Progress struct {
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	SampleID string           `json:"sample_id"`
	Scores   map[string]Score `json:"scores"`
	Elapsed  float64          `json:"elapsed_seconds"`
}

// Runner scores samples one at a time. A finished sample is saved and
// reported before the next one starts.
type Runner struct {
	metrics     []Metric
	progress    io.Writer
	resultsPath string
	logger      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProgressWriter receives one JSON line per finished sample.
func WithProgressWriter(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.progress = w
	}
}

// WithResultsPath rewrites the results file at path after every finished
// sample, so an aborted run leaves the scored prefix on disk.
func WithResultsPath(path string) RunnerOption {
	return func(r *Runner) {
		r.resultsPath = path
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner over metrics, applied in order.
func NewRunner(metrics []Metric, opts ...RunnerOption) *Runner {
	r := &Runner{
		metrics: metrics,
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scores every sample with every metric. A judge that cannot produce a
// usable verdict yields NaN for that sample; any other error stops the run
// and is returned as a *SampleError. The returned results hold every sample
// finished before the failure. Sample scores are recorded on the samples.
func (r *Runner) Run(ctx context.Context, name string, samples []*Sample) (*ExperimentResults, error) {
	results := NewExperimentResults(name)
	for _, m := range r.metrics {
		results.ensure(m.Name())
	}

	start := time.Now()
	for i, sample := range samples {
		if err := ctx.Err(); err != nil {
			return results, &SampleError{Index: i, SampleID: sample.ID, Err: err}
		}
		id := sample.EnsureID()
		if sample.Scores == nil {
			sample.Scores = make(map[string]Score, len(r.metrics))
		}

		scored := make([]*MetricResult, 0, len(r.metrics))
		for _, m := range r.metrics {
			res, err := m.Measure(ctx, sample)
			if err != nil {
				if ragerr.KindOf(err) != ragerr.KindParseFailure {
					r.logger.Error("metric failed", "metric", m.Name(), "sample", i, "error", err)
					return results, &SampleError{Index: i, SampleID: id, Metric: m.Name(), Err: err}
				}
				r.logger.Warn("judge could not decide, recording NaN", "metric", m.Name(), "sample", i, "error", err)
				res = &MetricResult{MetricName: m.Name(), Value: NaN(), Reason: err.Error()}
			}
			sample.Scores[m.Name()] = res.Value
			scored = append(scored, res)
		}
		for j, m := range r.metrics {
			results.Add(m.Name(), id, scored[j])
		}

		if r.resultsPath != "" {
			if err := results.WriteFile(r.resultsPath); err != nil {
				return results, &SampleError{Index: i, SampleID: id, Err: err}
			}
		}
		r.logger.Info("sample scored", "index", i, "total", len(samples), "sample_id", id)
		if err := r.report(Progress{
			Index:    i,
			Total:    len(samples),
			SampleID: id,
			Scores:   sample.Scores,
			Elapsed:  time.Since(start).Seconds(),
		}); err != nil {
			return results, &SampleError{Index: i, SampleID: id, Err: err}
		}
	}
	return results, nil
}

func (r *Runner) report(p Progress) error {
	if r.progress == nil {
		return nil
	}
	line, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := r.progress.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}
	return nil
}
