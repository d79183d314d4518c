// Package collection implements the named, dimension-homogeneous vector
// container: it coordinates an HNSW index, a payload map, optional
// quantized storage, and the persistent vector counter, under a
// single-writer/multi-reader lock discipline.
package collection

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/halcyonlabs/vecstore/pkg/distance"
	"github.com/halcyonlabs/vecstore/pkg/index"
	"github.com/halcyonlabs/vecstore/pkg/quantization"
	"github.com/halcyonlabs/vecstore/pkg/textnorm"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
	"github.com/halcyonlabs/vecstore/pkg/vlog"
)

// Config holds the per-collection configuration fixed at creation time and
// persisted alongside it.
type Config struct {
	Name              string
	Dimension         int
	Metric            distance.Metric
	M                 int
	EfConstruction    int
	EfSearch          int
	Seed              int64
	RebuildThreshold  float64
	QuantizationMode  quantization.Mode
	EmbeddingProvider string
	MaxChunkSize      int
	ChunkOverlap      int
	Logger            vlog.Logger
}

// DefaultConfig returns a fresh Config for name and dimension with the
// defaults: 2048/256 chunking, no quantization, bm25 provider, cosine metric.
func DefaultConfig(name string, dimension int) Config {
	return Config{
		Name:              name,
		Dimension:         dimension,
		Metric:            distance.Cosine,
		M:                 16,
		EfConstruction:    200,
		EfSearch:          64,
		RebuildThreshold:  index.DefaultRebuildThreshold,
		QuantizationMode:  quantization.ModeNone,
		EmbeddingProvider: "bm25",
		MaxChunkSize:      2048,
		ChunkOverlap:      256,
	}
}

// codecAdapter bridges quantization.Codec's Quantize/Reconstruct naming to
// the index package's Encode/Decode Quantizer contract.
type codecAdapter struct{ codec quantization.Codec }

func (a codecAdapter) Encode(vec []float32) ([]byte, error)    { return a.codec.Quantize(vec) }
func (a codecAdapter) Decode(encoded []byte) ([]float32, error) { return a.codec.Reconstruct(encoded) }

// Vector is a stored vector plus its normalized payload.
type Vector struct {
	ID      string
	Data    []float32
	Payload map[string]any
}

// SearchResult is one hit from Search, descending by Score.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Stats is a read-only snapshot of collection state (the
// CollectionStats).
type Stats struct {
	Name         string
	VectorCount  int64
	FileCount    int
	SizeBytes    int64
	CreatedAt    time.Time
	ModifiedAt   time.Time
	IsEmpty      bool
}

// Collection owns its index, payload map, and an auxiliary file->ids
// lookup (never owned by the watcher, per the invariant).
type Collection struct {
	mu     sync.RWMutex
	config Config
	index  *index.HNSW
	codec  quantization.Codec

	// floats holds the authoritative full vector when quantization is
	// disabled or the codec hasn't compressed it yet; quantized-only
	// vectors have a nil entry here and are reconstructed from the index
	// node's stored code on demand.
	floats   map[string][]float32
	payloads map[string]map[string]any
	fileIdx  map[string]map[string]struct{} // file_path -> set of vector ids

	counter    int64
	createdAt  time.Time
	modifiedAt time.Time
	logger     vlog.Logger
}

// New constructs an empty collection per cfg.
func New(cfg Config) (*Collection, error) {
	if cfg.Name == "" {
		return nil, verrors.Validation("collection.new", fmt.Errorf("%w: name required", verrors.ErrInvalidConfiguration))
	}
	if cfg.Dimension <= 0 {
		return nil, verrors.Validation("collection.new", fmt.Errorf("%w: dimension must be positive", verrors.ErrInvalidConfiguration))
	}
	if cfg.Logger == nil {
		cfg.Logger = vlog.Nop()
	}

	idx := index.New(index.Config{
		Dimension:        cfg.Dimension,
		M:                cfg.M,
		EfConstruction:   cfg.EfConstruction,
		EfSearch:         cfg.EfSearch,
		Seed:             cfg.Seed,
		RebuildThreshold: cfg.RebuildThreshold,
		DistFunc:         distance.ForMetric(cfg.Metric),
	})

	var codec quantization.Codec
	if cfg.QuantizationMode != "" && cfg.QuantizationMode != quantization.ModeNone {
		c, err := quantization.New(cfg.QuantizationMode, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		codec = c
		idx.SetQuantizer(codecAdapter{codec})
	}

	now := time.Now()
	return &Collection{
		config:     cfg,
		index:      idx,
		codec:      codec,
		floats:     make(map[string][]float32),
		payloads:   make(map[string]map[string]any),
		fileIdx:    make(map[string]map[string]struct{}),
		createdAt:  now,
		modifiedAt: now,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.config.Name }

// Config returns the collection's fixed configuration.
func (c *Collection) Config() Config { return c.config }

// Index exposes the underlying HNSW index for persistence and advanced
// callers (search composers needing explicit-ef search).
func (c *Collection) Index() *index.HNSW { return c.index }

// Codec exposes the quantization codec, nil when quantization is disabled.
func (c *Collection) Codec() quantization.Codec { return c.codec }

// trainable is implemented by every quantization.Codec to learn its
// parameters (ranges, centroids, thresholds) from a corpus sample.
type trainable interface {
	Train(vectors [][]float32) error
}

// TrainQuantizer fits the collection's quantization codec from sample, a
// representative subset of vectors (PQ centroids are trained by k-means
// on a corpus sample). A no-op when quantization is disabled.
// Quantize/Reconstruct return NotFitted until this has run once.
func (c *Collection) TrainQuantizer(sample [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codec == nil {
		return nil
	}
	t, ok := c.codec.(trainable)
	if !ok {
		return verrors.State("collection.train_quantizer", fmt.Errorf("codec does not support training"))
	}
	if err := t.Train(sample); err != nil {
		return err
	}
	c.index.SetQuantizer(codecAdapter{c.codec})
	return nil
}

func (c *Collection) prepareVector(vector []float32) ([]float32, error) {
	if len(vector) != c.config.Dimension {
		return nil, verrors.Validation("collection.insert", fmt.Errorf("%w: expected %d, got %d", verrors.ErrDimensionMismatch, c.config.Dimension, len(vector)))
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	if c.config.Metric == distance.Cosine {
		distance.Normalize(out)
	}
	return out, nil
}

// Insert adds vector under id with payload, validating dimension,
// normalizing for cosine metric, applying quantization if enabled, and
// replacing any existing entry under the same id (tombstone + insert,
// counter unchanged on replace).
func (c *Collection) Insert(id string, vector []float32, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(id, vector, payload)
}

func (c *Collection) insertLocked(id string, vector []float32, payload map[string]any) error {
	if id == "" {
		return verrors.Validation("collection.insert", fmt.Errorf("%w: empty id", verrors.ErrEmptyInput))
	}
	prepared, err := c.prepareVector(vector)
	if err != nil {
		return err
	}

	replacing := false
	if _, exists := c.floats[id]; exists {
		replacing = true
	} else if _, exists := c.payloads[id]; exists {
		replacing = true
	}

	if replacing {
		c.removeFromFileIndex(id)
		_ = c.index.Delete(id)
		delete(c.floats, id)
	}
	if err := c.index.Insert(id, prepared); err != nil {
		return verrors.Validation("collection.insert", err)
	}

	if c.codec == nil {
		c.floats[id] = prepared
	}
	norm := textnorm.Payload(payload)
	c.payloads[id] = norm
	c.addToFileIndex(id, norm)

	c.modifiedAt = time.Now()
	if !replacing {
		c.counter++
	}
	return nil
}

// InsertItem bundles a vector insertion for InsertBatch.
type InsertItem struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// InsertBatch inserts every item, pre-validating all ids and dimensions
// first so the batch fails atomically (no partial commits) if any item
// is invalid.
func (c *Collection) InsertBatch(items []InsertItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		if item.ID == "" {
			return verrors.Validation("collection.insert_batch", fmt.Errorf("%w: empty id", verrors.ErrEmptyInput))
		}
		if len(item.Vector) != c.config.Dimension {
			return verrors.Validation("collection.insert_batch", fmt.Errorf("%w: id %s expected %d, got %d", verrors.ErrDimensionMismatch, item.ID, c.config.Dimension, len(item.Vector)))
		}
	}
	for _, item := range items {
		if err := c.insertLocked(item.ID, item.Vector, item.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) addToFileIndex(id string, payload map[string]any) {
	path, ok := payload["file_path"].(string)
	if !ok || path == "" {
		return
	}
	if c.fileIdx[path] == nil {
		c.fileIdx[path] = make(map[string]struct{})
	}
	c.fileIdx[path][id] = struct{}{}
}

func (c *Collection) removeFromFileIndex(id string) {
	payload, ok := c.payloads[id]
	if !ok {
		return
	}
	path, ok := payload["file_path"].(string)
	if !ok {
		return
	}
	if ids, ok := c.fileIdx[path]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(c.fileIdx, path)
		}
	}
}

// reconstruct returns the full vector for id, decoding from the
// quantization codec when only a code is stored.
func (c *Collection) reconstruct(id string) ([]float32, error) {
	if v, ok := c.floats[id]; ok {
		return v, nil
	}
	node, ok := c.index.Nodes[id]
	if !ok {
		return nil, verrors.NotFound("collection.get", verrors.ErrVectorNotFound)
	}
	if node.Vector != nil {
		// Quantization is configured but the codec hadn't trained yet when
		// this vector was inserted, so the index kept the raw float.
		return node.Vector, nil
	}
	if node.Quantized == nil || c.codec == nil {
		return nil, verrors.NotFound("collection.get", verrors.ErrVectorNotFound)
	}
	return c.codec.Reconstruct(node.Quantized)
}

// Get returns the (reconstructed) vector and payload for id.
func (c *Collection) Get(id string) (*Vector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	payload, ok := c.payloads[id]
	if !ok {
		return nil, verrors.NotFound("collection.get", verrors.ErrVectorNotFound)
	}
	vec, err := c.reconstruct(id)
	if err != nil {
		return nil, err
	}
	return &Vector{ID: id, Data: vec, Payload: payload}, nil
}

// GetPayload returns only the (normalized) payload for id.
func (c *Collection) GetPayload(id string) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.payloads[id]
	if !ok {
		return nil, verrors.NotFound("collection.get_payload", verrors.ErrVectorNotFound)
	}
	return payload, nil
}

// UpdatePayload replaces id's payload, keeping its vector untouched.
func (c *Collection) UpdatePayload(id string, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.payloads[id]; !ok {
		return verrors.NotFound("collection.update_payload", verrors.ErrVectorNotFound)
	}
	c.removeFromFileIndex(id)
	norm := textnorm.Payload(payload)
	c.payloads[id] = norm
	c.addToFileIndex(id, norm)
	c.modifiedAt = time.Now()
	return nil
}

// Delete removes id: from the payload/float maps, tombstones it in the
// HNSW index, and decrements the persistent counter by exactly 1.
func (c *Collection) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(id)
}

func (c *Collection) deleteLocked(id string) error {
	if _, ok := c.payloads[id]; !ok {
		return verrors.NotFound("collection.delete", verrors.ErrVectorNotFound)
	}
	c.removeFromFileIndex(id)
	delete(c.floats, id)
	delete(c.payloads, id)
	if err := c.index.Delete(id); err != nil && err != index.ErrNotFound {
		return verrors.Integrity("collection.delete", err)
	}
	c.counter--
	c.modifiedAt = time.Now()
	return nil
}

// DeleteByFilePath removes every vector whose payload.file_path equals
// path, resolved via the collection's auxiliary file->ids index rather
// than a linear payload scan. This is the mechanism the watcher drives
// without ever holding vector ids itself.
func (c *Collection) DeleteByFilePath(path string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, ok := c.fileIdx[path]
	if !ok || len(ids) == 0 {
		return 0, nil
	}
	toDelete := make([]string, 0, len(ids))
	for id := range ids {
		toDelete = append(toDelete, id)
	}
	for _, id := range toDelete {
		if err := c.deleteLocked(id); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

// VectorsByFilePath returns every vector whose payload.file_path equals
// path, resolved via the auxiliary file->ids index rather than a linear
// payload scan. Used by search composers to reconstruct a file's content
// from its stored chunks.
func (c *Collection) VectorsByFilePath(path string) ([]*Vector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, ok := c.fileIdx[path]
	if !ok || len(ids) == 0 {
		return nil, nil
	}
	out := make([]*Vector, 0, len(ids))
	for id := range ids {
		vec, err := c.reconstruct(id)
		if err != nil {
			return nil, err
		}
		out = append(out, &Vector{ID: id, Data: vec, Payload: c.payloads[id]})
	}
	return out, nil
}

// Search runs a k-NN query, normalizing for cosine metric, mapping raw
// distances to similarity scores, and attaching payloads.
func (c *Collection) Search(query []float32, k int) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.config.Dimension {
		return nil, verrors.Validation("collection.search", fmt.Errorf("%w: expected %d, got %d", verrors.ErrDimensionMismatch, c.config.Dimension, len(query)))
	}
	q := make([]float32, len(query))
	copy(q, query)
	if c.config.Metric == distance.Cosine {
		distance.Normalize(q)
	}

	hits := c.index.Search(q, k)
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{
			ID:      h.ID,
			Score:   distance.ScoreFromDistance(c.config.Metric, h.Distance),
			Payload: c.payloads[h.ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// SearchWithEf is the explicit-ef variant for search composers that need
// their own candidate over-fetch control.
func (c *Collection) SearchWithEf(query []float32, k, ef int) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.config.Dimension {
		return nil, verrors.Validation("collection.search", fmt.Errorf("%w: expected %d, got %d", verrors.ErrDimensionMismatch, c.config.Dimension, len(query)))
	}
	q := make([]float32, len(query))
	copy(q, query)
	if c.config.Metric == distance.Cosine {
		distance.Normalize(q)
	}

	hits := c.index.SearchWithEf(q, k, ef)
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{ID: h.ID, Score: distance.ScoreFromDistance(c.config.Metric, h.Distance), Payload: c.payloads[h.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// VectorCount returns the persistent counter, which may diverge from the
// in-memory map length when vectors are quantized-only or unloaded.
func (c *Collection) VectorCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter
}

// IsEmpty reports whether the persistent counter is zero.
func (c *Collection) IsEmpty() bool { return c.VectorCount() == 0 }

// IndexedFiles returns the distinct file paths referenced by any payload.
func (c *Collection) IndexedFiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	files := make([]string, 0, len(c.fileIdx))
	for f := range c.fileIdx {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Snapshot is the full on-disk representation of a collection's mutable
// state: index topology, trained codec parameters, and the payload map.
// pkg/persistence owns reading and writing it to a file; Collection only
// knows how to produce and consume one.
type Snapshot struct {
	Payloads   map[string]map[string]any
	IndexBytes []byte
	CodecState []byte
	Counter    int64
}

// ExportSnapshot captures the collection's current persisted state.
func (c *Collection) ExportSnapshot() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var idxBuf bytes.Buffer
	if err := c.index.Save(&idxBuf); err != nil {
		return nil, verrors.Integrity("collection.export_snapshot", err)
	}

	var codecState []byte
	if c.codec != nil {
		if sc, ok := c.codec.(quantization.StatefulCodec); ok && c.codec.Trained() {
			state, err := sc.MarshalState()
			if err != nil {
				return nil, err
			}
			codecState = state
		}
	}

	payloads := make(map[string]map[string]any, len(c.payloads))
	for k, v := range c.payloads {
		payloads[k] = v
	}

	return &Snapshot{
		Payloads:   payloads,
		IndexBytes: idxBuf.Bytes(),
		CodecState: codecState,
		Counter:    c.counter,
	}, nil
}

// RestoreSnapshot replaces the collection's state with snap. The caller
// must have constructed the collection with the same Config (dimension,
// metric, quantization mode) the snapshot was exported from.
func (c *Collection) RestoreSnapshot(snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Load(bytes.NewReader(snap.IndexBytes), distance.ForMetric(c.config.Metric)); err != nil {
		return verrors.Integrity("collection.restore_snapshot", err)
	}

	if len(snap.CodecState) > 0 && c.codec != nil {
		if sc, ok := c.codec.(quantization.StatefulCodec); ok {
			if err := sc.UnmarshalState(snap.CodecState); err != nil {
				return err
			}
			c.index.SetQuantizer(codecAdapter{c.codec})
		}
	}

	c.payloads = make(map[string]map[string]any, len(snap.Payloads))
	c.floats = make(map[string][]float32)
	c.fileIdx = make(map[string]map[string]struct{})
	for id, payload := range snap.Payloads {
		c.payloads[id] = payload
		c.addToFileIndex(id, payload)
		if node, ok := c.index.Nodes[id]; ok && node.Vector != nil {
			c.floats[id] = node.Vector
		}
	}
	c.counter = snap.Counter
	c.modifiedAt = time.Now()
	return nil
}

// Stats returns a read-only snapshot.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	size := int64(0)
	for _, v := range c.floats {
		size += int64(len(v)) * 4
	}
	return Stats{
		Name:        c.config.Name,
		VectorCount: c.counter,
		FileCount:   len(c.fileIdx),
		SizeBytes:   size,
		CreatedAt:   c.createdAt,
		ModifiedAt:  c.modifiedAt,
		IsEmpty:     c.counter == 0,
	}
}
