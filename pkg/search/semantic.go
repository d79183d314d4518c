package search

import (
	"context"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
)

// SemanticOptions configures SemanticSearch.
type SemanticOptions struct {
	MaxResults         int
	SimilarityThreshold float32 // default 0.1
	Reranker           Reranker // nil disables reranking
}

// DefaultSemanticOptions returns the baseline option set.
func DefaultSemanticOptions() SemanticOptions {
	return SemanticOptions{MaxResults: 10, SimilarityThreshold: 0.1}
}

// SemanticSearch embeds query with provider, searches coll with k = 2x
// max_results, filters by similarity_threshold, optionally reranks, and
// returns the top max_results.
func SemanticSearch(ctx context.Context, coll *collection.Collection, provider embedding.Provider, query string, opts SemanticOptions) ([]collection.SearchResult, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	vec, err := provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := coll.Search(vec, opts.MaxResults*2)
	if err != nil {
		return nil, err
	}

	filtered := make([]collection.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Score >= opts.SimilarityThreshold {
			filtered = append(filtered, h)
		}
	}

	if opts.Reranker != nil {
		filtered, err = opts.Reranker.Rerank(ctx, query, filtered)
		if err != nil {
			return nil, err
		}
	}

	if len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}
	return filtered, nil
}

// ContextualOptions extends SemanticOptions with payload-field predicates
// and a relevance boost for results whose payload matches them.
type ContextualOptions struct {
	SemanticOptions
	Context      map[string]any // payload fields to match
	ContextWeight float32        // 0..1, boosts matching results
}

// ContextualSearch runs SemanticSearch then boosts results by the fraction
// of payload-field predicates they match and re-sorts. Results matching no
// predicate are kept with their score unchanged.
func ContextualSearch(ctx context.Context, coll *collection.Collection, provider embedding.Provider, query string, opts ContextualOptions) ([]collection.SearchResult, error) {
	results, err := SemanticSearch(ctx, coll, provider, query, opts.SemanticOptions)
	if err != nil {
		return nil, err
	}
	if len(opts.Context) == 0 {
		return results, nil
	}

	boosted := make([]collection.SearchResult, 0, len(results))
	for _, r := range results {
		matches := 0
		for k, v := range opts.Context {
			if r.Payload[k] == v {
				matches++
			}
		}
		if matches == 0 {
			boosted = append(boosted, r)
			continue
		}
		frac := float32(matches) / float32(len(opts.Context))
		r.Score += opts.ContextWeight * frac
		boosted = append(boosted, r)
	}
	sortByScoreDesc(boosted)
	return boosted, nil
}

// MultiCollectionOptions configures MultiCollectionSearch.
type MultiCollectionOptions struct {
	MaxTotalResults int
	Reranker        Reranker
}

// MultiCollectionSearch runs SemanticSearch across every named collection,
// merges results (tagging each with its source collection), optionally
// reranks globally, and returns the top max_total_results, deduped by
// (collection, id).
func MultiCollectionSearch(ctx context.Context, collections map[string]*collection.Collection, provider embedding.Provider, query string, names []string, opts MultiCollectionOptions) ([]TaggedResult, error) {
	if opts.MaxTotalResults <= 0 {
		opts.MaxTotalResults = 10
	}

	seen := make(map[string]struct{})
	var merged []TaggedResult
	for _, name := range names {
		coll, ok := collections[name]
		if !ok {
			continue
		}
		hits, err := SemanticSearch(ctx, coll, provider, query, SemanticOptions{MaxResults: opts.MaxTotalResults * candidateFactor})
		if err != nil {
			continue
		}
		for _, h := range hits {
			key := name + "\x00" + h.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, TaggedResult{Collection: name, SearchResult: h})
		}
	}

	sortTaggedByScoreDesc(merged)

	if opts.Reranker != nil {
		plain := make([]collection.SearchResult, len(merged))
		for i, m := range merged {
			plain[i] = m.SearchResult
		}
		reranked, err := opts.Reranker.Rerank(ctx, query, plain)
		if err == nil {
			for i := range merged {
				if i < len(reranked) {
					merged[i].SearchResult = reranked[i]
				}
			}
		}
	}

	if len(merged) > opts.MaxTotalResults {
		merged = merged[:opts.MaxTotalResults]
	}
	return merged, nil
}

const candidateFactor = 2

// TaggedResult is a SearchResult annotated with the collection it came
// from, used by multi-collection and intelligent search.
type TaggedResult struct {
	Collection string
	collection.SearchResult
}
