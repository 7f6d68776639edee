package embedding

import (
	"fmt"
	"math"
	"sort"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vectors must not be empty")
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("vectors must not be zero vectors")
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors slightly past 1.
	return math.Max(-1, math.Min(1, sim)), nil
}

// ScoredIndex is a candidate position and its similarity to the query.
type ScoredIndex struct {
	Index int
	Score float64
}

// ScoreAll computes the cosine similarity of query against every candidate, in order.
func ScoreAll(query []float64, candidates [][]float64) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		s, err := CosineSimilarity(query, c)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

// TopK returns the candidates whose similarity to query is at least threshold,
// sorted by descending score and truncated to k. Equal scores keep candidate order.
// k <= 0 returns every candidate above the threshold.
func TopK(query []float64, candidates [][]float64, k int, threshold float64) ([]ScoredIndex, error) {
	scores, err := ScoreAll(query, candidates)
	if err != nil {
		return nil, err
	}
	return RankScores(scores, k, threshold), nil
}

// RankScores applies the TopK selection to precomputed scores.
func RankScores(scores []float64, k int, threshold float64) []ScoredIndex {
	kept := make([]ScoredIndex, 0, len(scores))
	for i, s := range scores {
		if s >= threshold {
			kept = append(kept, ScoredIndex{Index: i, Score: s})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if k > 0 && len(kept) > k {
		kept = kept[:k]
	}
	return kept
}
