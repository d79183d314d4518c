package vecstore

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/distance"
	"github.com/halcyonlabs/vecstore/pkg/persistence"
	"github.com/halcyonlabs/vecstore/pkg/quantization"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

func (s *VectorStore) vocabPath(name string) string {
	return filepath.Join(s.cfg.DataDirectory, name+".vocab.json")
}

// SaveCollection atomically writes name's current state to data_directory,
// refusing to clobber a non-empty on-disk file with an empty in-memory
// collection (the hard safety block, enforced inside
// pkg/persistence.Save). The collection's embedding provider writes its
// vocabulary sidecar alongside.
func (s *VectorStore) SaveCollection(name string) error {
	c, err := s.GetCollection(name)
	if err != nil {
		return err
	}
	if err := persistence.Save(s.cfg.DataDirectory, c); err != nil {
		return err
	}
	if provider, err := s.providers.Get(c.Config().EmbeddingProvider); err == nil {
		if err := provider.SaveVocabulary(s.vocabPath(name)); err != nil {
			s.logger.Warn("save vocabulary failed", "collection", name, "err", err)
		}
	}
	return nil
}

// LoadCollection reads name's vecdb file from data_directory, rebuilds it
// with a header-derived config, registers it, and returns it.
func (s *VectorStore) LoadCollection(name string) (*collection.Collection, error) {
	header, err := persistence.HeaderFor(s.cfg.DataDirectory, name)
	if err != nil {
		return nil, err
	}

	cfg := collection.Config{
		Name:              name,
		Dimension:         header.Dimension,
		Metric:            distance.Metric(header.Metric),
		QuantizationMode:  quantization.Mode(header.QuantizationMode),
		EmbeddingProvider: header.EmbeddingProvider,
		M:                 16,
		EfConstruction:    200,
		EfSearch:          64,
		RebuildThreshold:  0.2,
		MaxChunkSize:      s.cfg.MaxChunkSize,
		ChunkOverlap:      s.cfg.ChunkOverlap,
		Logger:            s.logger,
	}

	c, err := persistence.Load(s.cfg.DataDirectory, name, cfg)
	if err != nil {
		return nil, err
	}

	// Restore the provider's vocabulary before any embed call against
	// this collection can be issued.
	if provider, err := s.providers.Get(header.EmbeddingProvider); err == nil {
		if _, statErr := os.Stat(s.vocabPath(name)); statErr == nil {
			if err := provider.LoadVocabulary(s.vocabPath(name)); err != nil {
				s.logger.Warn("load vocabulary failed", "collection", name, "err", err)
			}
		}
	}

	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
	return c, nil
}

// loadAllFromDisk loads every <name>.vecdb found directly under
// data_directory, used by New when cfg.AutoLoadCollections is set.
func (s *VectorStore) loadAllFromDisk() error {
	entries, err := os.ReadDir(s.cfg.DataDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return verrors.Resource("vecstore.load_all", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".vecdb") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".vecdb")
		if _, err := s.LoadCollection(name); err != nil {
			s.logger.Warn("auto-load collection failed", "name", name, "err", err)
		}
	}
	return nil
}

// SnapshotAll takes an hourly-rotation snapshot of every registered
// collection currently saved to disk. A collection that has
// never been saved has nothing to snapshot and is skipped.
func (s *VectorStore) SnapshotAll() error {
	if !s.cfg.SnapshotEnabled {
		return nil
	}
	now := time.Now()
	for _, name := range s.ListCollections() {
		if !persistence.Exists(s.cfg.DataDirectory, name) {
			continue
		}
		if err := persistence.Snapshot(s.cfg.DataDirectory, name, now); err != nil {
			return err
		}
		if _, err := persistence.PruneSnapshots(s.cfg.DataDirectory, name, s.cfg.SnapshotRetention(), now); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the file watcher if running, saves every registered
// collection, and releases the shared file-descriptor index. It takes
// no snapshot; closed is sticky so a double-Close is a no-op.
func (s *VectorStore) Close() error {
	s.StopWatching()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var firstErr error
	for name, c := range s.collections {
		if err := persistence.Save(s.cfg.DataDirectory, c); err != nil {
			s.logger.Error("save on close failed", "collection", name, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if provider, err := s.providers.Get(c.Config().EmbeddingProvider); err == nil {
			if err := provider.SaveVocabulary(s.vocabPath(name)); err != nil {
				s.logger.Warn("save vocabulary failed", "collection", name, "err", err)
			}
		}
	}

	if err := s.fileIdx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.closed = true
	s.logger.Info("vector store closed")
	return firstErr
}
