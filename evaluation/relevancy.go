package evaluation

import (
	"context"

	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
)

// AnswerRelevancyMetric scores how directly the answer addresses the question.
type AnswerRelevancyMetric struct {
	judge       *Judge
	temperature float32
}

// NewAnswerRelevancyMetric creates the answer_relevancy metric.
func NewAnswerRelevancyMetric(judge *Judge) *AnswerRelevancyMetric {
	return &AnswerRelevancyMetric{judge: judge}
}

func (m *AnswerRelevancyMetric) Name() string {
	return prompts.AnswerRelevancyName
}

func (m *AnswerRelevancyMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	if sample.Input == "" {
		return nil, ragerr.Validation("evaluation.answer_relevancy", "sample has no input")
	}
	out, err := m.judge.Evaluate(ctx, prompts.AnswerRelevancyTemplate, map[string]interface{}{
		"input":         sample.Input,
		"actual_output": sample.ActualOutput,
	}, m.temperature, nil)
	if err != nil {
		return nil, err
	}

	score, _ := out["score"].(float64)
	reason, _ := out["reason"].(string)
	return &MetricResult{
		MetricName: m.Name(),
		Value:      Score(clamp01(score)),
		Reason:     reason,
	}, nil
}

var _ Metric = (*AnswerRelevancyMetric)(nil)
