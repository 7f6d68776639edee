package evaluation

import (
	"context"
	"strings"

	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
)

// ContextRecallMetric measures how much of the reference answer the retrieved context covers.
type ContextRecallMetric struct {
	judge *Judge
}

// NewContextRecallMetric creates the context_recall metric.
func NewContextRecallMetric(judge *Judge) *ContextRecallMetric {
	return &ContextRecallMetric{judge: judge}
}

func (m *ContextRecallMetric) Name() string {
	return "context_recall"
}

func (m *ContextRecallMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	if sample.Reference == "" {
		return nil, ragerr.Validation("evaluation.context_recall", "sample has no reference answer")
	}

	out, err := m.judge.Evaluate(ctx, prompts.ContextRecallStatementsTemplate, map[string]interface{}{
		"expected_output": sample.Reference,
	}, DecompositionTemperature, expectNonEmpty("statements"))
	if err != nil {
		return nil, err
	}
	statements := stringsOf(out, "statements")

	if len(sample.RetrievedContext) == 0 {
		return &MetricResult{
			MetricName: m.Name(),
			Value:      0,
			Reason:     "nothing was retrieved",
			Auxiliary:  map[string]interface{}{"statements": statements},
		}, nil
	}

	out, err = m.judge.Evaluate(ctx, prompts.ContextRecallAttributionTemplate, map[string]interface{}{
		"statements":        statements,
		"retrieval_context": sample.RetrievedContext,
	}, ClassificationTemperature, expectCount("verdicts", len(statements)))
	if err != nil {
		return nil, err
	}

	verdicts := verdictsOf(out, "attributed")
	var attributed int
	for _, v := range verdicts {
		if v == "1" {
			attributed++
		}
	}
	return &MetricResult{
		MetricName: m.Name(),
		Value:      Score(float64(attributed) / float64(len(statements))),
		Reason:     strings.Join(reasonsOf(out), " "),
		Auxiliary: map[string]interface{}{
			"statements": statements,
			"attributed": attributed,
		},
	}, nil
}

var _ Metric = (*ContextRecallMetric)(nil)
