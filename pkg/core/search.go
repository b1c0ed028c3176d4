package core

import (
	"context"
	"fmt"
	"sort"
)

// Embedder converts text into a fixed-dimension vector. Implementations
// live in pkg/embed; the ONNX embedder loads its model lazily, at most once
// per process.
type Embedder interface {
	// Embed converts a single text into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector size produced by this embedder.
	Dimensions() int
}

// Searcher ranks candidate memories against a query string by cosine
// similarity of their embeddings.
type Searcher struct {
	embedder Embedder
}

// NewSearcher creates a searcher backed by the given embedder.
func NewSearcher(embedder Embedder) *Searcher {
	return &Searcher{embedder: embedder}
}

// Rank embeds the query once, scores every candidate that carries an
// embedding, keeps scores at or above the threshold, sorts descending
// (ties keep the candidates' input order, which is recency order from the
// store), and truncates to the limit. Candidates without an embedding do
// not participate; an empty result is not an error.
func (s *Searcher) Rank(ctx context.Context, query string, candidates []*Memory, opts SearchOptions) ([]SearchResult, error) {
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, wrapError("search", fmt.Errorf("%w: got %v", ErrInvalidThreshold, opts.Threshold))
	}
	if opts.Limit < 0 {
		return nil, wrapError("search", fmt.Errorf("%w: got %d", ErrInvalidLimit, opts.Limit))
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrapError("search", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, m := range candidates {
		if m.Embedding == nil {
			continue
		}

		similarity, err := CosineSimilarity(queryVector, m.Embedding.Vector)
		if err != nil {
			return nil, wrapError("search", err)
		}
		if similarity < opts.Threshold {
			continue
		}

		results = append(results, SearchResult{Memory: m, Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}
