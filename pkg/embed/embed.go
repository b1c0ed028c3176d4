// Package embed provides embedding generator implementations for the memory
// service: an ONNX Runtime embedder for real inference over a local
// sentence-transformer model, and a deterministic hash embedder that needs
// no model files. Both produce L2-normalized vectors, so self-similarity is
// 1 and typical cross-similarities fall in [0, 1].
package embed

import (
	"errors"
	"math"
)

// ErrEmptyText is returned when an empty text string is provided.
var ErrEmptyText = errors.New("empty text provided")

// l2Normalize scales a vector to unit length. Zero vectors pass through.
func l2Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
