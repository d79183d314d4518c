// Package vecstore is the top-level facade tying together collections,
// persistence, ingest, and the file watcher into the public library
// surface: VectorStore owns the collection namespace and its
// lifecycle, as a registry of in-memory HNSW collections.
package vecstore

import (
	"time"

	"github.com/halcyonlabs/vecstore/pkg/quantization"
	"github.com/halcyonlabs/vecstore/pkg/vlog"
)

// Config holds every recognized store-level option, all optional with
// defaults filled in by DefaultConfig. A plain struct literal rather
// than functional options.
type Config struct {
	DataDirectory        string
	AutoLoadCollections  bool
	Logger               vlog.Logger

	FileWatcherEnabled   bool
	DebounceMs           int
	DefaultCollection    string
	CollectionMapping    map[string]string // glob -> collection

	MaxChunkSize int
	ChunkOverlap int

	DefaultEmbeddingProvider string
	QuantizationMode         quantization.Mode

	NormalizeCRLF           bool
	CollapseMultipleNewlines bool

	SnapshotEnabled       bool
	SnapshotRetentionHours int

	ExcludePatterns []string
}

// DefaultConfig returns the baseline configuration used when a caller
// leaves fields zero-valued.
func DefaultConfig() Config {
	return Config{
		DataDirectory:            "./data",
		AutoLoadCollections:      false,
		FileWatcherEnabled:       false,
		DebounceMs:               1000,
		DefaultCollection:        "workspace-default",
		MaxChunkSize:             2048,
		ChunkOverlap:             256,
		DefaultEmbeddingProvider: "bm25",
		QuantizationMode:         quantization.ModeNone,
		NormalizeCRLF:            true,
		CollapseMultipleNewlines: true,
		SnapshotEnabled:          true,
		SnapshotRetentionHours:   48,
	}
}

// SnapshotRetention is the config's retention expressed as a duration,
// for callers wiring PruneSnapshots directly.
func (c Config) SnapshotRetention() time.Duration {
	return time.Duration(c.SnapshotRetentionHours) * time.Hour
}
