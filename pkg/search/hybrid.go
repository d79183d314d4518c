package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
)

// RRFConstant is the "k" in 1/(k+rank): a large-ish constant that
// tempers how much rank-1 dominates rank-50.
const RRFConstant = 60

// FusionMode selects how HybridSearch combines its two rankings.
type FusionMode int

const (
	// FusionRRF combines rankings by reciprocal rank, ignoring raw scores.
	FusionRRF FusionMode = iota
	// FusionWeighted blends normalized raw scores by Alpha (dense weight).
	FusionWeighted
)

// HybridOptions configures HybridSearch.
type HybridOptions struct {
	MaxResults int
	Mode       FusionMode
	Alpha      float32 // FusionWeighted only: dense weight, 0..1, default 0.5
}

// DefaultHybridOptions returns the baseline option set.
func DefaultHybridOptions() HybridOptions {
	return HybridOptions{MaxResults: 10, Mode: FusionRRF, Alpha: 0.5}
}

// HybridSearch retrieves candidate*CandidateMultiplier hits from a dense
// and a sparse provider concurrently, then fuses the two rankings into one
// ordered result set.
func HybridSearch(ctx context.Context, coll *collection.Collection, dense, sparse embedding.Provider, query string, opts HybridOptions) ([]collection.SearchResult, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	fetchK := candidateK(opts.MaxResults)

	var denseHits, sparseHits []collection.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := retrieve(gctx, coll, dense, query, fetchK)
		denseHits = hits
		return err
	})
	g.Go(func() error {
		hits, err := retrieve(gctx, coll, sparse, query, fetchK)
		sparseHits = hits
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fused []collection.SearchResult
	switch opts.Mode {
	case FusionWeighted:
		fused = weightedFuse(denseHits, sparseHits, opts.Alpha)
	default:
		fused = rrfFuse(denseHits, sparseHits)
	}

	if len(fused) > opts.MaxResults {
		fused = fused[:opts.MaxResults]
	}
	return fused, nil
}

func retrieve(ctx context.Context, coll *collection.Collection, provider embedding.Provider, query string, k int) ([]collection.SearchResult, error) {
	vec, err := provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return coll.Search(vec, k)
}

// rrfFuse combines two rankings by reciprocal rank fusion: score(id) =
// sum over rankings containing id of 1/(RRFConstant + rank).
func rrfFuse(rankings ...[]collection.SearchResult) []collection.SearchResult {
	scores := make(map[string]float32)
	payloads := make(map[string]map[string]any)
	for _, ranking := range rankings {
		for rank, r := range ranking {
			scores[r.ID] += 1.0 / float32(RRFConstant+rank+1)
			if _, ok := payloads[r.ID]; !ok {
				payloads[r.ID] = r.Payload
			}
		}
	}
	out := make([]collection.SearchResult, 0, len(scores))
	for id, s := range scores {
		out = append(out, collection.SearchResult{ID: id, Score: s, Payload: payloads[id]})
	}
	sortByScoreDesc(out)
	return out
}

// weightedFuse min-max normalizes each ranking's raw scores, then blends
// them id-wise as alpha*dense + (1-alpha)*sparse, treating an id absent
// from a ranking as contributing zero.
func weightedFuse(dense, sparse []collection.SearchResult, alpha float32) []collection.SearchResult {
	dScores := normalizeScores(dense)
	sScores := normalizeScores(sparse)
	payloads := make(map[string]map[string]any)
	ids := make(map[string]struct{})
	for _, r := range dense {
		ids[r.ID] = struct{}{}
		payloads[r.ID] = r.Payload
	}
	for _, r := range sparse {
		ids[r.ID] = struct{}{}
		if _, ok := payloads[r.ID]; !ok {
			payloads[r.ID] = r.Payload
		}
	}

	out := make([]collection.SearchResult, 0, len(ids))
	for id := range ids {
		score := alpha*dScores[id] + (1-alpha)*sScores[id]
		out = append(out, collection.SearchResult{ID: id, Score: score, Payload: payloads[id]})
	}
	sortByScoreDesc(out)
	return out
}

func normalizeScores(results []collection.SearchResult) map[string]float32 {
	out := make(map[string]float32, len(results))
	if len(results) == 0 {
		return out
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
	for _, r := range results {
		if span == 0 {
			out[r.ID] = 1
		} else {
			out[r.ID] = (r.Score - min) / span
		}
	}
	return out
}
