package vecstore

import (
	"context"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
	"github.com/halcyonlabs/vecstore/pkg/ingest"
)

// WorkspaceConfig configures LoadWorkspace and StartWatching:
// the roots to discover/watch and the routing rules layered on top of the
// store's own defaults.
type WorkspaceConfig struct {
	Roots             []string
	ExcludePatterns   []string
	CollectionMapping map[string]string
	IncludePatterns   map[string][]string
	DefaultCollection string
}

// collectionSource resolves name to a registered collection, auto-creating
// it with the default embedding provider's dimension if this is the first
// time anything has routed a file to it — the loader never synthesizes a
// name, but it does need somewhere to put a file the caller
// routed to a name that doesn't exist yet.
func (s *VectorStore) collectionSource() ingest.CollectionSource {
	return func(name string) (*collection.Collection, error) {
		if c, err := s.GetCollection(name); err == nil {
			return c, nil
		}

		s.mu.RLock()
		provider, err := s.providers.Get(s.cfg.DefaultEmbeddingProvider)
		s.mu.RUnlock()
		if err != nil {
			provider, err = s.providers.Default()
			if err != nil {
				return nil, err
			}
		}

		cfg := collection.DefaultConfig(name, provider.Dimension())
		cfg.EmbeddingProvider = provider.Name()
		cfg.MaxChunkSize = s.cfg.MaxChunkSize
		cfg.ChunkOverlap = s.cfg.ChunkOverlap
		cfg.QuantizationMode = s.cfg.QuantizationMode
		return s.CreateCollection(name, cfg)
	}
}

func (s *VectorStore) loaderConfig(ws WorkspaceConfig) ingest.Config {
	defaultCollection := ws.DefaultCollection
	if defaultCollection == "" {
		defaultCollection = s.cfg.DefaultCollection
	}
	return ingest.Config{
		Roots:             ws.Roots,
		DataDirectory:     s.cfg.DataDirectory,
		ExcludePatterns:   append(append([]string{}, s.cfg.ExcludePatterns...), ws.ExcludePatterns...),
		IncludePatterns:   ws.IncludePatterns,
		CollectionMapping: ws.CollectionMapping,
		DefaultCollection: defaultCollection,
		MaxChunkSize:      s.cfg.MaxChunkSize,
		ChunkOverlap:      s.cfg.ChunkOverlap,
		Logger:            s.logger,
	}
}

// LoadWorkspace discovers and indexes every file under ws.Roots, routing
// each to a collection by the routing precedence, skipping unchanged
// files via content-hash comparison.
func (s *VectorStore) LoadWorkspace(ctx context.Context, ws WorkspaceConfig) ([]ingest.Result, error) {
	loader := ingest.New(s.loaderConfig(ws), s.fileIdx, s.providers, s.collectionSource())
	return loader.LoadWorkspace(ctx)
}

// ReindexFile re-runs incremental reindex for a single path, as a direct
// entry point for a caller that already knows which file changed
// without walking the whole workspace.
func (s *VectorStore) ReindexFile(ctx context.Context, ws WorkspaceConfig, path string) (ingest.Result, error) {
	loader := ingest.New(s.loaderConfig(ws), s.fileIdx, s.providers, s.collectionSource())
	return loader.LoadFile(ctx, path)
}

// RegisterEmbeddingProvider adds a provider to the store's shared
// embedding registry. Must be called before the provider's
// name is referenced by any collection config.
func (s *VectorStore) RegisterEmbeddingProvider(p embedding.Provider) {
	s.providers.Register(p)
}
