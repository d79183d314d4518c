package vecstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/distance"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
	"github.com/halcyonlabs/vecstore/pkg/fileindex"
	"github.com/halcyonlabs/vecstore/pkg/persistence"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
	"github.com/halcyonlabs/vecstore/pkg/vlog"
)

// VectorStore owns the collection namespace: creation, lookup, deletion,
// stats, and cleanup, plus the shared embedding registry and
// file-descriptor index that ingest and the watcher both read.
type VectorStore struct {
	mu          sync.RWMutex
	cfg         Config
	collections map[string]*collection.Collection
	providers   *embedding.Manager
	fileIdx     *fileindex.Index
	logger      vlog.Logger

	watchMu sync.Mutex
	watcherStop func()

	closed bool
}

// New constructs a VectorStore from cfg, creating data_directory and
// opening the shared file-descriptor index. Collections are not loaded
// from disk unless cfg.AutoLoadCollections is set.
func New(cfg Config) (*VectorStore, error) {
	cfg = mergeDefaults(cfg)
	if cfg.Logger == nil {
		cfg.Logger = vlog.Nop()
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, verrors.Resource("vecstore.new", fmt.Errorf("create data directory: %w", err))
	}

	idxPath := filepath.Join(cfg.DataDirectory, "filewatcher.db")
	idx, err := fileindex.OpenIndex(context.Background(), idxPath)
	if err != nil {
		return nil, err
	}

	s := &VectorStore{
		cfg:         cfg,
		collections: make(map[string]*collection.Collection),
		providers:   embedding.NewDefaultManager(),
		fileIdx:     idx,
		logger:      cfg.Logger,
	}

	if cfg.AutoLoadCollections {
		if err := s.loadAllFromDisk(); err != nil {
			s.logger.Warn("auto-load collections failed", "err", err)
		}
	}

	return s, nil
}

// mergeDefaults fills the zero-valued string and integer Config fields
// from DefaultConfig, field by field. Boolean fields and QuantizationMode
// are taken as given: a false left by the caller is not replaced by
// DefaultConfig's true.
func mergeDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = d.DataDirectory
	}
	if cfg.DebounceMs == 0 {
		cfg.DebounceMs = d.DebounceMs
	}
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = d.DefaultCollection
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = d.MaxChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = d.ChunkOverlap
	}
	if cfg.DefaultEmbeddingProvider == "" {
		cfg.DefaultEmbeddingProvider = d.DefaultEmbeddingProvider
	}
	if cfg.SnapshotRetentionHours == 0 {
		cfg.SnapshotRetentionHours = d.SnapshotRetentionHours
	}
	return cfg
}

// NewAuto probes for nothing beyond what this process can always offer
// (this library has no accelerated backend distinct from CPU HNSW) and
// constructs a store with DefaultConfig, never silently overwriting a
// valid on-disk collection with an empty in-memory one — that
// guarantee lives in pkg/persistence's checkOverwriteSafety, exercised
// identically regardless of how the store was constructed.
func NewAuto() (*VectorStore, error) {
	return New(DefaultConfig())
}

// CreateCollection constructs an empty collection under name and registers
// it, failing with Conflict if one already exists.
func (s *VectorStore) CreateCollection(name string, cfg collection.Config) (*collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[name]; exists {
		return nil, verrors.Conflict("vecstore.create_collection", verrors.ErrCollectionAlreadyExists)
	}

	cfg.Name = name
	if cfg.Metric == "" {
		cfg.Metric = distance.Cosine
	}
	if cfg.EmbeddingProvider == "" {
		cfg.EmbeddingProvider = s.cfg.DefaultEmbeddingProvider
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = s.cfg.MaxChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = s.cfg.ChunkOverlap
	}
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}

	c, err := collection.New(cfg)
	if err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// GetCollection returns the named collection, loading it from disk first
// if it is known to exist there but not yet resident.
func (s *VectorStore) GetCollection(name string) (*collection.Collection, error) {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	if !persistence.Exists(s.cfg.DataDirectory, name) {
		return nil, verrors.NotFound("vecstore.get_collection", verrors.ErrCollectionNotFound)
	}
	return s.LoadCollection(name)
}

// ListCollections returns every registered collection name in
// deterministic alphabetical order.
func (s *VectorStore) ListCollections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := maps.Keys(s.collections)
	sort.Strings(names)
	return names
}

// DeleteCollection removes name from the registry. In-flight readers that
// already hold a reference complete against their snapshot; the map entry
// simply stops being handed out to new callers.
func (s *VectorStore) DeleteCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return verrors.NotFound("vecstore.delete_collection", verrors.ErrCollectionNotFound)
	}
	delete(s.collections, name)
	return nil
}

// CollectionStats mirrors collection.Stats, exposed at the store level for
// callers that only know a collection by name.
type CollectionStats = collection.Stats

// GetCollectionStats returns name's stats snapshot.
func (s *VectorStore) GetCollectionStats(name string) (CollectionStats, error) {
	c, err := s.GetCollection(name)
	if err != nil {
		return CollectionStats{}, err
	}
	return c.Stats(), nil
}

// ListEmptyCollections returns the names of every registered collection
// whose vector_count is zero.
func (s *VectorStore) ListEmptyCollections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, c := range s.collections {
		if c.IsEmpty() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CleanupResult reports what CleanupEmptyCollections did or would do.
type CleanupResult struct {
	Removed         []string
	FreedBytesEstimate int64
}

// CleanupEmptyCollections removes every empty collection under a write
// lock. With dryRun set, it reports what would be removed without
// mutating anything.
func (s *VectorStore) CleanupEmptyCollections(dryRun bool) CleanupResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result CleanupResult
	for name, c := range s.collections {
		if !c.IsEmpty() {
			continue
		}
		result.Removed = append(result.Removed, name)
		result.FreedBytesEstimate += emptyCollectionByteEstimate
	}
	sort.Strings(result.Removed)

	if dryRun {
		return result
	}
	for _, name := range result.Removed {
		delete(s.collections, name)
	}
	return result
}

// emptyCollectionByteEstimate approximates the resident bookkeeping cost
// of a collection with zero vectors (index headers, maps), used only for
// CleanupResult's reporting, never for an actual allocation accounting.
const emptyCollectionByteEstimate = 512
