package evaluation

import (
	"context"
	"fmt"
	"math"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/ragerr"
)

// DefaultRelevanceThreshold is the cosine similarity at which a retrieved chunk counts as relevant.
const DefaultRelevanceThreshold = 0.75

// MeanReciprocalRankName names the aggregate of reciprocal_rank in summaries.
const MeanReciprocalRankName = "mean_reciprocal_rank"

// ReciprocalRankMetric scores 1/p for the first retrieved chunk whose embedding
// is close enough to the reference answer.
type ReciprocalRankMetric struct {
	embedModel embedding.EmbeddingModel
	threshold  float64
}

// ReciprocalRankOption configures a ReciprocalRankMetric.
type ReciprocalRankOption func(*ReciprocalRankMetric)

// WithRelevanceThreshold sets the similarity threshold.
func WithRelevanceThreshold(t float64) ReciprocalRankOption {
	return func(m *ReciprocalRankMetric) {
		m.threshold = t
	}
}

// NewReciprocalRankMetric creates the reciprocal_rank metric.
func NewReciprocalRankMetric(embedModel embedding.EmbeddingModel, opts ...ReciprocalRankOption) *ReciprocalRankMetric {
	m := &ReciprocalRankMetric{
		embedModel: embedModel,
		threshold:  DefaultRelevanceThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ReciprocalRankMetric) Name() string {
	return "reciprocal_rank"
}

func (m *ReciprocalRankMetric) Measure(ctx context.Context, sample *Sample) (*MetricResult, error) {
	if sample.Reference == "" {
		return nil, ragerr.Validation("evaluation.reciprocal_rank", "sample has no reference answer")
	}

	ref, err := m.embedModel.GetTextEmbedding(ctx, sample.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to embed reference: %w", err)
	}

	similarities := make([]float64, 0, len(sample.RetrievedContext))
	rank := 0
	for i, chunk := range sample.RetrievedContext {
		vec, err := m.embedModel.GetTextEmbedding(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed context %d: %w", i, err)
		}
		sim, err := embedding.CosineSimilarity(ref, vec)
		if err != nil {
			return nil, fmt.Errorf("context %d: %w", i, err)
		}
		similarities = append(similarities, sim)
		if sim >= m.threshold {
			rank = i + 1
			break
		}
	}

	result := &MetricResult{
		MetricName: m.Name(),
		Auxiliary:  map[string]interface{}{"similarities": similarities, "threshold": m.threshold},
	}
	if rank == 0 {
		result.Value = 0
		result.Reason = fmt.Sprintf("no retrieved chunk reaches similarity %.2f", m.threshold)
		return result, nil
	}
	result.Value = Score(1 / float64(rank))
	result.Reason = fmt.Sprintf("first relevant chunk at rank %d", rank)
	return result, nil
}

// MeanReciprocalRank averages the non-NaN reciprocal ranks. It is NaN when none are set.
func MeanReciprocalRank(ranks []Score) Score {
	return Mean(ranks)
}

// Mean averages the non-NaN scores. It is NaN when none are set.
func Mean(scores []Score) Score {
	var sum float64
	var n int
	for _, s := range scores {
		if s.IsNaN() || math.IsInf(float64(s), 0) {
			continue
		}
		sum += float64(s)
		n++
	}
	if n == 0 {
		return NaN()
	}
	return Score(sum / float64(n))
}

var _ Metric = (*ReciprocalRankMetric)(nil)
