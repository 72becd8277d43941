package rag

import "github.com/hyperjump/kotae/internal/models"

// DefaultThreshold is the minimum similarity for a passage to ground an answer.
const DefaultThreshold = 0.55

// Gate keeps hits whose score reaches the threshold.
type Gate struct {
	Threshold float64
}

// Filter returns the retained hits in their original order and whether any were retained.
func (g Gate) Filter(hits []models.SearchHit) ([]models.SearchHit, bool) {
	var kept []models.SearchHit
	for _, h := range hits {
		if h.Score >= g.Threshold {
			kept = append(kept, h)
		}
	}
	return kept, len(kept) > 0
}
