// Package search implements the higher-level search composers built on
// top of collection.Search: semantic search with threshold
// filtering and optional reranking, contextual payload boosting, multi-
// collection fan-out, intelligent search with query expansion and MMR,
// hybrid dense+sparse fusion via Reciprocal Rank Fusion, and file-content
// reconstruction from overlapping chunks.
package search

import (
	"context"
	"sort"

	"github.com/halcyonlabs/vecstore/pkg/collection"
)

// CandidateMultiplier and MinCandidates control over-fetching before a
// reranker or threshold filter narrows results down (5x multiplier,
// floor of 50).
const (
	CandidateMultiplier = 5
	MinCandidates       = 50
)

func candidateK(maxResults int) int {
	k := maxResults * CandidateMultiplier
	if k < MinCandidates {
		k = MinCandidates
	}
	return k
}

// Reranker reorders a result set using signals beyond vector similarity.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []collection.SearchResult) ([]collection.SearchResult, error)
}

// RerankerFunc adapts a plain function to the Reranker interface.
type RerankerFunc func(ctx context.Context, query string, results []collection.SearchResult) ([]collection.SearchResult, error)

// Rerank implements Reranker.
func (f RerankerFunc) Rerank(ctx context.Context, query string, results []collection.SearchResult) ([]collection.SearchResult, error) {
	return f(ctx, query, results)
}

// ScoreNormalizationReranker rescales scores into [0,1] by min-max
// normalization across the result set, leaving relative order unchanged
// unless scores were already bounded. Useful as a neutral default when a
// caller asks for "optional reranking" without supplying one.
var ScoreNormalizationReranker Reranker = RerankerFunc(func(_ context.Context, _ string, results []collection.SearchResult) ([]collection.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	span := max - min
	if span == 0 {
		return results, nil
	}
	out := make([]collection.SearchResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].Score = (out[i].Score - min) / span
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
})
