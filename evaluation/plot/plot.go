// Package plot aggregates experiment result files into a grouped bar chart.
package plot

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/ragerr"
)

// metricOrder fixes bar order and colour for the known metrics.
var metricOrder = []string{
	"answer_relevancy",
	"faithfulness",
	"context_precision",
	"context_recall",
	"hallucination",
	"reciprocal_rank",
	evaluation.MeanReciprocalRankName,
}

// Experiment is the per-metric summary of one results file.
type Experiment struct {
	Name  string
	Means map[string]evaluation.Score
}

// Aggregator renders experiment summaries.
type Aggregator struct {
	width  vg.Length
	height vg.Length
	title  string
	logger *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithSize sets the image size.
func WithSize(width, height vg.Length) AggregatorOption {
	return func(a *Aggregator) {
		a.width = width
		a.height = height
	}
}

// WithTitle sets the chart title.
func WithTitle(title string) AggregatorOption {
	return func(a *Aggregator) {
		a.title = title
	}
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		width:  10 * vg.Inch,
		height: 5 * vg.Inch,
		title:  "Evaluation results",
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load summarizes every .jsonl and .json file of dir, ordered by ExperimentLess.
func (a *Aggregator) Load(dir string) ([]Experiment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerr.NotFound("plot.load", dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".jsonl" && ext != ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.SliceStable(names, func(i, j int) bool { return ExperimentLess(names[i], names[j]) })

	experiments := make([]Experiment, 0, len(names))
	for _, name := range names {
		res, err := evaluation.ReadResults(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, Experiment{Name: res.Name, Means: res.Summary()})
		a.logger.Info("experiment loaded", "file", name, "metrics", len(res.Metrics))
	}
	return experiments, nil
}

// NumericPrefix returns the leading integer of a file name.
func NumericPrefix(name string) (int, bool) {
	base := filepath.Base(name)
	end := strings.IndexFunc(base, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(base)
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExperimentLess orders files by numeric prefix; files without one come last, by name.
func ExperimentLess(a, b string) bool {
	na, oka := NumericPrefix(a)
	nb, okb := NumericPrefix(b)
	switch {
	case oka && okb && na != nb:
		return na < nb
	case oka != okb:
		return oka
	default:
		return a < b
	}
}

// Metrics lists the metrics present in experiments, known metrics first.
func Metrics(experiments []Experiment) []string {
	seen := make(map[string]bool)
	for _, e := range experiments {
		for m := range e.Means {
			seen[m] = true
		}
	}

	var out []string
	for _, m := range metricOrder {
		if seen[m] {
			out = append(out, m)
			delete(seen, m)
		}
	}
	var rest []string
	for m := range seen {
		rest = append(rest, m)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// MetricColor returns the colour used for a metric in every chart.
func MetricColor(metric string) color.Color {
	for i, m := range metricOrder {
		if m == metric {
			return plotutil.Color(i)
		}
	}
	h := fnv.New32a()
	h.Write([]byte(metric))
	return plotutil.Color(len(metricOrder) + int(h.Sum32()%64))
}

// Render draws one group per experiment and one bar per metric and saves
// the chart to path. The image format follows the file extension. Metrics
// with no decided sample are drawn at zero.
func (a *Aggregator) Render(experiments []Experiment, path string) error {
	const op = "plot.render"
	if len(experiments) == 0 {
		return ragerr.Validation(op, "no experiments to plot")
	}
	metrics := Metrics(experiments)
	if len(metrics) == 0 {
		return ragerr.Validation(op, "experiments contain no metrics")
	}

	p := plot.New()
	p.Title.Text = a.title
	p.Y.Label.Text = "Mean score"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true

	groupWidth := a.width * 0.8 / vg.Length(len(experiments))
	barWidth := groupWidth / vg.Length(len(metrics)+1)

	for i, metric := range metrics {
		values := make(plotter.Values, len(experiments))
		for j, e := range experiments {
			mean, ok := e.Means[metric]
			if ok && !mean.IsNaN() {
				values[j] = float64(mean)
			}
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return fmt.Errorf("failed to build bars for %s: %w", metric, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = MetricColor(metric)
		bars.Offset = barWidth * (vg.Length(i) - vg.Length(len(metrics)-1)/2)
		p.Add(bars)
		p.Legend.Add(metric, bars)
	}

	names := make([]string, len(experiments))
	for i, e := range experiments {
		names[i] = e.Name
	}
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := p.Save(a.width, a.height, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	a.logger.Info("chart saved", "path", path, "experiments", len(experiments), "metrics", len(metrics))
	return nil
}

// Run loads dir and renders the chart to out.
func (a *Aggregator) Run(dir, out string) ([]Experiment, error) {
	experiments, err := a.Load(dir)
	if err != nil {
		return nil, err
	}
	if err := a.Render(experiments, out); err != nil {
		return nil, err
	}
	return experiments, nil
}
