package evaluation

import (
	"context"
	"strings"

	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
)

// HallucinationMetric is the fraction of reference contexts the answer contradicts.
// Lower is better.
type HallucinationMetric struct {
	judge *Judge
}

// NewHallucinationMetric creates the hallucination metric.
func NewHallucinationMetric(judge *Judge) *HallucinationMetric {
	return &HallucinationMetric{judge: judge}
}

func (m *HallucinationMetric) Name() string {
	return prompts.HallucinationName
}

func (m *HallucinationMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	contexts := sample.ReferenceContext
	if len(contexts) == 0 {
		return nil, ragerr.Validation("evaluation.hallucination", "sample has no reference context")
	}

	out, err := m.judge.Evaluate(ctx, prompts.HallucinationTemplate, map[string]interface{}{
		"input":         sample.Input,
		"actual_output": sample.ActualOutput,
		"context":       contexts,
	}, ClassificationTemperature, expectCount("verdicts", len(contexts)))
	if err != nil {
		return nil, err
	}

	verdicts := verdictsOf(out, "verdict")
	var contradicted int
	for _, v := range verdicts {
		if v == "no" {
			contradicted++
		}
	}
	return &MetricResult{
		MetricName: m.Name(),
		Value:      Score(float64(contradicted) / float64(len(contexts))),
		Reason:     strings.Join(reasonsOf(out), " "),
		Auxiliary:  map[string]interface{}{"verdicts": verdicts},
	}, nil
}

var _ Metric = (*HallucinationMetric)(nil)
