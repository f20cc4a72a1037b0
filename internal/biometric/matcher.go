// Package biometric compares face feature vectors.
package biometric

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMatchThreshold is the similarity bar for ad-hoc verification.
// Attendance marking uses a stricter threshold set in config.
const DefaultMatchThreshold = 0.6

var ErrDegenerateVector = errors.New("degenerate feature vector")

type MatchResult struct {
	Similarity float64 `json:"similarity"`
	IsMatch    bool    `json:"is_match"`
}

// Compare computes the cosine similarity of two feature vectors. Similarity
// is in [-1,1]; IsMatch requires strictly greater than threshold. A zero-norm
// vector has no defined direction, so it is an error rather than a silent 0.
func Compare(a, b []float64, threshold float64) (MatchResult, error) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return MatchResult{}, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return MatchResult{}, ErrDegenerateVector
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return MatchResult{Similarity: sim, IsMatch: sim > threshold}, nil
}
