package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder maps text to a bag-of-words vector by hashing each token
// into a bucket. It is deterministic, needs no model files, and texts that
// share tokens score high cosine similarity against each other. Used by
// tests and as an inference-free fallback when no ONNX model is configured.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder. Non-positive dimensions fall
// back to the MiniLM size so vectors stay interchangeable with the ONNX
// embedder's.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes each lowercased token into a bucket and L2-normalizes the
// accumulated counts.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	vector := make([]float32, e.dimensions)
	for _, token := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vector[h.Sum32()%uint32(e.dimensions)]++
	}

	return l2Normalize(vector), nil
}

// Dimensions returns the embedding vector size.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// tokenize lowercases and splits on non-letter, non-digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
