package evaluation

import (
	"context"
	"strings"

	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
)

// ContextPrecisionMetric rewards rankings that place relevant nodes first.
type ContextPrecisionMetric struct {
	judge *Judge
}

// NewContextPrecisionMetric creates the context_precision metric.
func NewContextPrecisionMetric(judge *Judge) *ContextPrecisionMetric {
	return &ContextPrecisionMetric{judge: judge}
}

func (m *ContextPrecisionMetric) Name() string {
	return prompts.ContextPrecisionName
}

func (m *ContextPrecisionMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	if len(sample.RetrievedContext) == 0 {
		return &MetricResult{MetricName: m.Name(), Value: 0, Reason: "nothing was retrieved"}, nil
	}
	if sample.Reference == "" {
		return nil, ragerr.Validation("evaluation.context_precision", "sample has no reference answer")
	}

	out, err := m.judge.Evaluate(ctx, prompts.ContextPrecisionTemplate, map[string]interface{}{
		"input":             sample.Input,
		"expected_output":   sample.Reference,
		"retrieval_context": sample.RetrievedContext,
	}, ClassificationTemperature, expectCount("verdicts", len(sample.RetrievedContext)))
	if err != nil {
		return nil, err
	}

	verdicts := verdictsOf(out, "verdict")
	relevant := make([]bool, len(verdicts))
	for i, v := range verdicts {
		relevant[i] = v == "yes"
	}
	return &MetricResult{
		MetricName: m.Name(),
		Value:      Score(WeightedPrecision(relevant)),
		Reason:     strings.Join(reasonsOf(out), " "),
		Auxiliary:  map[string]interface{}{"verdicts": verdicts},
	}, nil
}

// WeightedPrecision averages precision@k over the ranks k holding a relevant node.
// It is 0 when nothing is relevant.
func WeightedPrecision(relevant []bool) float64 {
	var hits int
	var sum float64
	for k, rel := range relevant {
		if !rel {
			continue
		}
		hits++
		sum += float64(hits) / float64(k+1)
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(hits)
}

var _ Metric = (*ContextPrecisionMetric)(nil)
