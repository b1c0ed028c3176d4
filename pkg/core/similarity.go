package core

import (
	"fmt"
	"math"
)

// CosineSimilarity calculates cosine similarity between two vectors:
// dot(a,b) / (|a| * |b|). Defined for any finite vectors, not only
// normalized ones. Vectors of unequal length fail with ErrDimensionMismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64

	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	// Handle zero vectors
	if normA == 0.0 || normB == 0.0 {
		return 0.0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
