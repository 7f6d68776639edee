package evaluation

import (
	"context"
	"strings"

	"github.com/aqua777/go-ragchat/prompts"
)

// Decomposition runs hot so that claim enumeration is complete; verdicts run cold.
const (
	DecompositionTemperature  float32 = 1.0
	ClassificationTemperature float32 = 0.0
)

// FaithfulnessMetric checks the answer's claims against the retrieved context.
// Claims the context neither supports nor contradicts are left out of the score.
// An answer without claims scores 1; claims with nothing retrieved score 0.
type FaithfulnessMetric struct {
	judge *Judge
}

// NewFaithfulnessMetric creates the faithfulness metric.
func NewFaithfulnessMetric(judge *Judge) *FaithfulnessMetric {
	return &FaithfulnessMetric{judge: judge}
}

func (m *FaithfulnessMetric) Name() string {
	return "faithfulness"
}

func (m *FaithfulnessMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	out, err := m.judge.Evaluate(ctx, prompts.FaithfulnessClaimsTemplate, map[string]interface{}{
		"actual_output": sample.ActualOutput,
	}, DecompositionTemperature, nil)
	if err != nil {
		return nil, err
	}
	claims := stringsOf(out, "claims")
	if len(claims) == 0 {
		return &MetricResult{MetricName: m.Name(), Value: 1, Reason: "the answer makes no claims"}, nil
	}
	if len(sample.RetrievedContext) == 0 {
		return &MetricResult{
			MetricName: m.Name(),
			Value:      0,
			Reason:     "nothing was retrieved to support the claims",
			Auxiliary:  map[string]interface{}{"claims": claims, "supported": 0, "contradicted": 0},
		}, nil
	}

	out, err = m.judge.Evaluate(ctx, prompts.FaithfulnessVerdictsTemplate, map[string]interface{}{
		"claims":            claims,
		"retrieval_context": sample.RetrievedContext,
	}, ClassificationTemperature, expectCount("verdicts", len(claims)))
	if err != nil {
		return nil, err
	}

	verdicts := verdictsOf(out, "verdict")
	var supported, contradicted int
	for _, v := range verdicts {
		switch v {
		case "yes":
			supported++
		case "no":
			contradicted++
		}
	}

	score := 1.0
	if decided := supported + contradicted; decided > 0 {
		score = float64(supported) / float64(decided)
	}
	return &MetricResult{
		MetricName: m.Name(),
		Value:      Score(score),
		Reason:     strings.Join(reasonsOf(out), " "),
		Auxiliary: map[string]interface{}{
			"claims":       claims,
			"verdicts":     verdicts,
			"supported":    supported,
			"contradicted": contradicted,
		},
	}, nil
}

var _ Metric = (*FaithfulnessMetric)(nil)
