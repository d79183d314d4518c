package search

import (
	"context"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
)

// IntelligentOptions configures IntelligentSearch.
type IntelligentOptions struct {
	MaxResults int
	// Variations are additional query phrasings; query itself is always
	// included. Nil means "auto-expand": GenerateVariations produces up to
	// five rule-based rewrites (definition/feature/architecture/API/
	// performance form). Pass a non-nil empty slice to disable expansion.
	Variations []string
	Lambda     float32 // MMR tradeoff, default 0.7 (favor relevance over diversity)
	Reranker   Reranker
}

// DefaultIntelligentOptions returns the baseline option set.
func DefaultIntelligentOptions() IntelligentOptions {
	return IntelligentOptions{MaxResults: 10, Lambda: 0.7}
}

// IntelligentSearch embeds query plus any supplied variations, over-fetches
// at 4x max_results per variation, dedupes by id keeping the best score,
// fetches each surviving candidate's vector, and diversifies the merged
// pool with MMR before an optional final rerank.
func IntelligentSearch(ctx context.Context, coll *collection.Collection, provider embedding.Provider, query string, opts IntelligentOptions) ([]collection.SearchResult, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Lambda == 0 {
		opts.Lambda = 0.7
	}
	fetchK := opts.MaxResults * 4

	variations := opts.Variations
	if variations == nil {
		variations = GenerateVariations(query)
	}
	queries := append([]string{query}, variations...)
	best := make(map[string]collection.SearchResult)
	for _, q := range queries {
		vec, err := provider.Embed(ctx, q)
		if err != nil {
			continue
		}
		hits, err := coll.Search(vec, fetchK)
		if err != nil {
			continue
		}
		for _, h := range hits {
			existing, ok := best[h.ID]
			if !ok || h.Score > existing.Score {
				best[h.ID] = h
			}
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	candidates := make([]collection.SearchResult, 0, len(best))
	vectors := make(map[string][]float32, len(best))
	for id, r := range best {
		candidates = append(candidates, r)
		if v, err := coll.Get(id); err == nil {
			vectors[id] = v.Data
		}
	}

	diversified := MMR(candidates, vectors, opts.MaxResults, opts.Lambda)

	if opts.Reranker != nil {
		reranked, err := opts.Reranker.Rerank(ctx, query, diversified)
		if err == nil {
			diversified = reranked
		}
	}
	if len(diversified) > opts.MaxResults {
		diversified = diversified[:opts.MaxResults]
	}
	return diversified, nil
}

// IntelligentMultiSearch runs the same expand/over-fetch/MMR pipeline
// across every named collection at once: each variation is searched
// against each collection, hits are deduped by (collection, id) keeping
// the best score, and the merged pool is diversified together so the
// final results balance relevance and novelty across collections, not
// just within one.
func IntelligentMultiSearch(ctx context.Context, collections map[string]*collection.Collection, provider embedding.Provider, query string, names []string, opts IntelligentOptions) ([]TaggedResult, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Lambda == 0 {
		opts.Lambda = 0.7
	}
	fetchK := opts.MaxResults * 4

	variations := opts.Variations
	if variations == nil {
		variations = GenerateVariations(query)
	}
	queries := append([]string{query}, variations...)

	best := make(map[string]TaggedResult)
	vectors := make(map[string][]float32)
	for _, name := range names {
		c, ok := collections[name]
		if !ok {
			continue
		}
		for _, q := range queries {
			vec, err := provider.Embed(ctx, q)
			if err != nil {
				continue
			}
			hits, err := c.Search(vec, fetchK)
			if err != nil {
				continue
			}
			for _, h := range hits {
				key := name + "\x00" + h.ID
				if existing, ok := best[key]; !ok || h.Score > existing.Score {
					best[key] = TaggedResult{Collection: name, SearchResult: h}
				}
				if _, ok := vectors[key]; !ok {
					if v, err := c.Get(h.ID); err == nil {
						vectors[key] = v.Data
					}
				}
			}
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	// MMR identifies candidates by ID, and ids may repeat across
	// collections, so candidates carry their (collection, id) key as the
	// ID and are mapped back afterwards.
	candidates := make([]collection.SearchResult, 0, len(best))
	for key, r := range best {
		cand := r.SearchResult
		cand.ID = key
		candidates = append(candidates, cand)
	}

	diversified := MMR(candidates, vectors, opts.MaxResults, opts.Lambda)

	out := make([]TaggedResult, 0, len(diversified))
	for _, d := range diversified {
		out = append(out, best[d.ID])
	}

	if opts.Reranker != nil {
		plain := make([]collection.SearchResult, len(out))
		for i, r := range out {
			plain[i] = r.SearchResult
		}
		reranked, err := opts.Reranker.Rerank(ctx, query, plain)
		if err == nil {
			for i := range out {
				if i < len(reranked) {
					out[i].SearchResult = reranked[i]
				}
			}
		}
	}
	if len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out, nil
}
