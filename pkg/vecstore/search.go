package vecstore

import (
	"context"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
	"github.com/halcyonlabs/vecstore/pkg/search"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

func (s *VectorStore) providerFor(c *collection.Collection) (embedding.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, err := s.providers.Get(c.Config().EmbeddingProvider); err == nil {
		return p, nil
	}
	return s.providers.Default()
}

// SemanticSearch embeds query against name's collection provider and
// returns the top opts.MaxResults results above opts.SimilarityThreshold.
func (s *VectorStore) SemanticSearch(ctx context.Context, name, query string, opts search.SemanticOptions) ([]collection.SearchResult, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return nil, err
	}
	provider, err := s.providerFor(c)
	if err != nil {
		return nil, err
	}
	return search.SemanticSearch(ctx, c, provider, query, opts)
}

// IntelligentSearch runs query-expansion plus MMR-diversified retrieval
// against name's collection.
func (s *VectorStore) IntelligentSearch(ctx context.Context, name, query string, opts search.IntelligentOptions) ([]collection.SearchResult, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return nil, err
	}
	provider, err := s.providerFor(c)
	if err != nil {
		return nil, err
	}
	return search.IntelligentSearch(ctx, c, provider, query, opts)
}

// IntelligentMultiSearch fans the query-expansion + MMR pipeline out
// across names, deduping by (collection, id) and diversifying the merged
// pool. An empty names list means every registered collection.
func (s *VectorStore) IntelligentMultiSearch(ctx context.Context, names []string, query string, opts search.IntelligentOptions) ([]search.TaggedResult, error) {
	if len(names) == 0 {
		names = s.ListCollections()
	}

	s.mu.RLock()
	subset := make(map[string]*collection.Collection, len(names))
	for _, n := range names {
		if c, ok := s.collections[n]; ok {
			subset[n] = c
		}
	}
	s.mu.RUnlock()

	if len(subset) == 0 {
		return nil, verrors.NotFound("vecstore.intelligent_multi_search", verrors.ErrCollectionNotFound)
	}

	var provider embedding.Provider
	for _, c := range subset {
		p, err := s.providerFor(c)
		if err != nil {
			return nil, err
		}
		provider = p
		break
	}
	return search.IntelligentMultiSearch(ctx, subset, provider, query, names, opts)
}

// ContextualSearch runs SemanticSearch against name's collection, then
// boosts and re-ranks results whose payload matches opts.Context.
func (s *VectorStore) ContextualSearch(ctx context.Context, name, query string, opts search.ContextualOptions) ([]collection.SearchResult, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return nil, err
	}
	provider, err := s.providerFor(c)
	if err != nil {
		return nil, err
	}
	return search.ContextualSearch(ctx, c, provider, query, opts)
}

// MultiCollectionSearch fans SemanticSearch out across names, merges, and
// optionally reranks globally.
func (s *VectorStore) MultiCollectionSearch(ctx context.Context, names []string, query string, opts search.MultiCollectionOptions) ([]search.TaggedResult, error) {
	s.mu.RLock()
	subset := make(map[string]*collection.Collection, len(names))
	for _, n := range names {
		if c, ok := s.collections[n]; ok {
			subset[n] = c
		}
	}
	s.mu.RUnlock()

	if len(subset) == 0 {
		return nil, verrors.NotFound("vecstore.multi_collection_search", verrors.ErrCollectionNotFound)
	}

	var provider embedding.Provider
	for _, c := range subset {
		p, err := s.providerFor(c)
		if err != nil {
			return nil, err
		}
		provider = p
		break
	}
	return search.MultiCollectionSearch(ctx, subset, provider, query, names, opts)
}

// HybridSearch fuses dense and sparse retrieval from two named embedding
// providers against a single collection.
func (s *VectorStore) HybridSearch(ctx context.Context, name, denseProvider, sparseProvider, query string, opts search.HybridOptions) ([]collection.SearchResult, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return nil, err
	}
	dense, err := s.providers.Get(denseProvider)
	if err != nil {
		return nil, err
	}
	sparse, err := s.providers.Get(sparseProvider)
	if err != nil {
		return nil, err
	}
	return search.HybridSearch(ctx, c, dense, sparse, query, opts)
}

// Discover runs the discovery pipeline across every collection whose name
// matches namePattern (or every collection, if namePattern is empty):
// candidate scoring by probe query, rule-based query expansion, broad
// MMR-diversified retrieval, a semantic-focus pass on the best-scoring
// collection, README promotion, citation compression, and a rendered
// answer plan/prompt.
func (s *VectorStore) Discover(ctx context.Context, namePattern, query string, opts search.DiscoveryOptions) (*search.DiscoveryResult, error) {
	s.mu.RLock()
	all := make(map[string]*collection.Collection, len(s.collections))
	for name, c := range s.collections {
		all[name] = c
	}
	s.mu.RUnlock()

	if len(all) == 0 {
		return nil, verrors.NotFound("vecstore.discover", verrors.ErrCollectionNotFound)
	}
	return search.Discover(ctx, all, s.providerFor, namePattern, query, opts)
}

// GetFileContent reconstructs a file's original text from its stored
// chunks in name's collection.
func (s *VectorStore) GetFileContent(name, filePath string) (string, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return "", err
	}
	return search.GetFileContent(c, filePath)
}
