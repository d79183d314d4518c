// Package index implements the Hierarchical Navigable Small World graph
// used to answer approximate nearest-neighbor queries for a collection.
package index

import (
	"container/heap"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"

	"github.com/halcyonlabs/vecstore/pkg/distance"
)

// Quantizer lets the index keep only a compact code for a node instead of
// its full float vector, decoding on demand for distance calculations.
type Quantizer interface {
	Encode(vec []float32) ([]byte, error)
	Decode(encoded []byte) ([]float32, error)
}

// Node is a single vector in the graph.
type Node struct {
	ID        string
	Vector    []float32 // nil when only the quantized code is authoritative
	Quantized []byte
	Level     int
	Neighbors [][]string
	Deleted   bool
}

var (
	// ErrDimensionMismatch is returned by Insert when vector length does not
	// match the index's configured dimension.
	ErrDimensionMismatch = errors.New("index: dimension mismatch")
	// ErrAlreadyExists is returned by Insert when id is already present.
	ErrAlreadyExists = errors.New("index: id already exists")
	// ErrNotFound is returned by Delete when id is absent.
	ErrNotFound = errors.New("index: id not found")
)

// DefaultRebuildThreshold is the fraction of tombstoned nodes (relative to
// live nodes) that triggers a graph compaction. 20% is a conservative
// default that keeps delete-heavy workloads from accumulating overhead.
const DefaultRebuildThreshold = 0.20

// HNSW is a hand-rolled Hierarchical Navigable Small World index. It owns
// no collection-level concerns (payloads, counters) — those live one layer
// up in pkg/collection.
type HNSW struct {
	Dimension        int
	M                int
	MaxM             int
	EfConstruction   int
	EfSearch         int // configured floor, adaptive search may raise it
	ML               float64
	Seed             int64
	RebuildThreshold float64

	Nodes      map[string]*Node
	EntryPoint string

	DistFunc  distance.Func
	Quantizer Quantizer

	liveCount    int
	deletedCount int

	mu  sync.RWMutex
	rng *rand.Rand
}

// Config bundles the parameters needed to build an HNSW index.
type Config struct {
	Dimension        int
	M                int
	EfConstruction   int
	EfSearch         int
	Seed             int64
	RebuildThreshold float64
	DistFunc         distance.Func
}

// New creates an empty HNSW index per cfg, filling in its
// defaults (MaxM = 2M, ML ~= 1/ln(2)) for anything left zero.
func New(cfg Config) *HNSW {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	if cfg.RebuildThreshold <= 0 {
		cfg.RebuildThreshold = DefaultRebuildThreshold
	}
	if cfg.DistFunc == nil {
		cfg.DistFunc = distance.Cosine32
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &HNSW{
		Dimension:        cfg.Dimension,
		M:                cfg.M,
		MaxM:             cfg.M * 2,
		EfConstruction:   cfg.EfConstruction,
		EfSearch:         cfg.EfSearch,
		ML:               1.0 / math.Log(2.0),
		Seed:             seed,
		RebuildThreshold: cfg.RebuildThreshold,
		Nodes:            make(map[string]*Node),
		DistFunc:         cfg.DistFunc,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// SetQuantizer attaches a quantizer used to compress stored vectors.
func (h *HNSW) SetQuantizer(q Quantizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Quantizer = q
}

func (h *HNSW) calculateDistance(query []float32, node *Node) float32 {
	if node.Vector != nil {
		return h.DistFunc(query, node.Vector)
	}
	if node.Quantized != nil && h.Quantizer != nil {
		if vec, err := h.Quantizer.Decode(node.Quantized); err == nil {
			return h.DistFunc(query, vec)
		}
	}
	return float32(math.MaxFloat32)
}

func (h *HNSW) selectLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 {
		level++
		if level > 16 {
			break
		}
	}
	return level
}

// Insert adds vector under id. Returns ErrDimensionMismatch or
// ErrAlreadyExists without mutating the index.
func (h *HNSW) Insert(id string, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.insertLocked(id, vector)
}

func (h *HNSW) insertLocked(id string, vector []float32) error {
	if h.Dimension > 0 && len(vector) != h.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, h.Dimension, len(vector))
	}
	if old, exists := h.Nodes[id]; exists {
		if !old.Deleted {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		delete(h.Nodes, id)
		h.deletedCount--
	}

	var quantized []byte
	storedVector := vector
	if h.Quantizer != nil {
		if enc, err := h.Quantizer.Encode(vector); err == nil {
			quantized = enc
			storedVector = nil
		}
	}

	level := h.selectLevel()
	node := &Node{
		ID:        id,
		Vector:    storedVector,
		Quantized: quantized,
		Level:     level,
		Neighbors: make([][]string, level+1),
	}
	for i := range node.Neighbors {
		node.Neighbors[i] = make([]string, 0)
	}
	h.Nodes[id] = node
	h.liveCount++

	if h.EntryPoint == "" {
		h.EntryPoint = id
		return nil
	}

	currNearest := []string{h.EntryPoint}
	entryNode := h.Nodes[h.EntryPoint]
	for lc := entryNode.Level; lc > level; lc-- {
		currNearest = h.searchLayerClosest(vector, currNearest, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := h.M
		if lc == 0 {
			m = h.MaxM
		}
		candidates := h.searchLayer(vector, currNearest, h.EfConstruction, lc)
		neighbors := h.selectNeighborsHeuristic(vector, candidates, m)

		node.Neighbors[lc] = neighbors
		for _, neighbor := range neighbors {
			h.addConnection(neighbor, id, lc)

			neighborNode := h.Nodes[neighbor]
			maxConn := h.M
			if lc == 0 {
				maxConn = h.MaxM
			}
			if lc < len(neighborNode.Neighbors) && len(neighborNode.Neighbors[lc]) > maxConn {
				neighborVec := neighborNode.Vector
				if neighborVec == nil && neighborNode.Quantized != nil && h.Quantizer != nil {
					neighborVec, _ = h.Quantizer.Decode(neighborNode.Quantized)
				}
				if neighborVec != nil {
					neighborNode.Neighbors[lc] = h.selectNeighborsHeuristic(neighborVec, neighborNode.Neighbors[lc], maxConn)
				}
			}
		}
		currNearest = neighbors
	}

	if level > h.Nodes[h.EntryPoint].Level {
		h.EntryPoint = id
	}
	return nil
}

// Pair is an (id, vector) tuple for bulk insertion.
type Pair struct {
	ID     string
	Vector []float32
}

// InsertBatch inserts every pair, pre-allocating node capacity. It is not
// transactional across the whole batch (each pair either lands or is
// reported as an error); the caller decides on partial-failure handling.
// collection.InsertBatch, one layer up, validates the whole batch before
// inserting any of it.
func (h *HNSW) InsertBatch(pairs []Pair) []error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cap := len(h.Nodes) + len(pairs); cap > len(h.Nodes) {
		grown := make(map[string]*Node, cap)
		for k, v := range h.Nodes {
			grown[k] = v
		}
		h.Nodes = grown
	}

	errs := make([]error, len(pairs))
	for i, p := range pairs {
		errs[i] = h.insertLocked(p.ID, p.Vector)
	}
	return errs
}

func (h *HNSW) searchLayer(query []float32, entryPoints []string, ef int, layer int) []string {
	visited := make(map[string]bool, ef*2)
	candidates := &distHeap{}
	dynamicList := &distHeap{}

	for _, point := range entryPoints {
		dist := h.calculateDistance(query, h.Nodes[point])
		heap.Push(candidates, &heapItem{id: point, dist: dist})
		heap.Push(dynamicList, &heapItem{id: point, dist: -dist})
		visited[point] = true
	}

	for candidates.Len() > 0 {
		if dynamicList.Len() > 0 {
			lowerBound := (*candidates)[0].dist
			if lowerBound > -(*dynamicList)[0].dist {
				break
			}
		}

		current := heap.Pop(candidates).(*heapItem)
		currentNode := h.Nodes[current.id]
		if layer >= len(currentNode.Neighbors) {
			continue
		}

		for _, neighbor := range currentNode.Neighbors[layer] {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			dist := h.calculateDistance(query, h.Nodes[neighbor])
			if dynamicList.Len() < ef || dist < -(*dynamicList)[0].dist {
				heap.Push(candidates, &heapItem{id: neighbor, dist: dist})
				heap.Push(dynamicList, &heapItem{id: neighbor, dist: -dist})
				if dynamicList.Len() > ef {
					heap.Pop(dynamicList)
				}
			}
		}
	}

	result := make([]string, 0, dynamicList.Len())
	for dynamicList.Len() > 0 {
		result = append(result, heap.Pop(dynamicList).(*heapItem).id)
	}
	for i := 0; i < len(result)/2; i++ {
		result[i], result[len(result)-1-i] = result[len(result)-1-i], result[i]
	}
	return result
}

func (h *HNSW) searchLayerClosest(query []float32, entryPoints []string, num int, layer int) []string {
	candidates := h.searchLayer(query, entryPoints, num, layer)
	if len(candidates) > num {
		return candidates[:num]
	}
	return candidates
}

func (h *HNSW) selectNeighborsHeuristic(query []float32, candidates []string, m int) []string {
	if len(candidates) <= m {
		return candidates
	}
	type pair struct {
		id   string
		dist float32
	}
	pairs := make([]pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = pair{id: c, dist: h.calculateDistance(query, h.Nodes[c])}
	}
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	result := make([]string, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		result = append(result, pairs[i].id)
	}
	return result
}

func (h *HNSW) addConnection(from, to string, layer int) {
	fromNode, exists := h.Nodes[from]
	if !exists || layer >= len(fromNode.Neighbors) {
		return
	}
	for _, n := range fromNode.Neighbors[layer] {
		if n == to {
			return
		}
	}
	fromNode.Neighbors[layer] = append(fromNode.Neighbors[layer], to)
}

// Result is one hit returned by Search.
type Result struct {
	ID       string
	Distance float32
}

// adaptiveEfSearch implements the adaptive ef_search: for tiny
// indexes (<10 live vectors) widen the search enough to be exact;
// otherwise take the max of k*2, the configured floor, and 64.
func (h *HNSW) adaptiveEfSearch(k int) int {
	if h.liveCount < 10 {
		ef := h.liveCount * 2
		if k*3 > ef {
			ef = k * 3
		}
		return ef
	}
	ef := k * 2
	if h.EfSearch > ef {
		ef = h.EfSearch
	}
	if ef < 64 {
		ef = 64
	}
	return ef
}

// Search returns up to k nearest neighbors to query, using the adaptive
// ef_search width.
func (h *HNSW) Search(query []float32, k int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.searchLocked(query, k, h.adaptiveEfSearch(k))
}

// SearchWithEf is the explicit-ef variant, exposed for callers (such as
// search composers doing their own candidate over-fetch) that want to
// control recall/latency directly.
func (h *HNSW) SearchWithEf(query []float32, k, ef int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.searchLocked(query, k, ef)
}

func (h *HNSW) searchLocked(query []float32, k, ef int) []Result {
	if k <= 0 || h.EntryPoint == "" {
		return nil
	}

	entryNode := h.Nodes[h.EntryPoint]
	currNearest := []string{h.EntryPoint}
	for layer := entryNode.Level; layer > 0; layer-- {
		currNearest = h.searchLayerClosest(query, currNearest, 1, layer)
	}

	candidates := h.searchLayer(query, currNearest, ef, 0)

	results := make([]Result, 0, len(candidates))
	for _, id := range candidates {
		node, ok := h.Nodes[id]
		if !ok || node.Deleted {
			continue
		}
		results = append(results, Result{ID: id, Distance: h.calculateDistance(query, node)})
	}

	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[i].Distance {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// Delete soft-deletes id (tombstone). Once deleted nodes reach
// RebuildThreshold of the live count, Rebuild is triggered automatically.
func (h *HNSW) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	node, exists := h.Nodes[id]
	if !exists || node.Deleted {
		return ErrNotFound
	}
	node.Deleted = true
	h.liveCount--
	h.deletedCount++

	if h.EntryPoint == id {
		h.EntryPoint = ""
		for nodeID, n := range h.Nodes {
			if !n.Deleted {
				h.EntryPoint = nodeID
				break
			}
		}
	}

	if h.liveCount > 0 && float64(h.deletedCount)/float64(h.liveCount) >= h.RebuildThreshold {
		h.rebuildLocked()
	}
	return nil
}

// rebuildLocked compacts the graph by re-inserting every live node into a
// fresh index, dropping tombstones. Caller must hold h.mu.
func (h *HNSW) rebuildLocked() {
	survivors := make([]*Node, 0, h.liveCount)
	for _, n := range h.Nodes {
		if !n.Deleted {
			survivors = append(survivors, n)
		}
	}

	fresh := &HNSW{
		Dimension:        h.Dimension,
		M:                h.M,
		MaxM:             h.MaxM,
		EfConstruction:   h.EfConstruction,
		EfSearch:         h.EfSearch,
		ML:               h.ML,
		Seed:             h.Seed,
		RebuildThreshold: h.RebuildThreshold,
		Nodes:            make(map[string]*Node, len(survivors)),
		DistFunc:         h.DistFunc,
		Quantizer:        h.Quantizer,
		rng:              h.rng,
	}
	for _, n := range survivors {
		vec := n.Vector
		if vec == nil && n.Quantized != nil && h.Quantizer != nil {
			vec, _ = h.Quantizer.Decode(n.Quantized)
		}
		_ = fresh.insertLocked(n.ID, vec)
	}

	h.Nodes = fresh.Nodes
	h.EntryPoint = fresh.EntryPoint
	h.liveCount = len(survivors)
	h.deletedCount = 0
}

// Len returns the number of live (non-tombstoned) vectors. O(1).
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.liveCount
}

// IsEmpty reports whether the index has no live vectors. O(1).
func (h *HNSW) IsEmpty() bool {
	return h.Len() == 0
}

// Stats reports graph structure for diagnostics.
func (h *HNSW) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	totalEdges := 0
	maxLevel := 0
	levelDistribution := make(map[int]int)
	for _, node := range h.Nodes {
		if node.Deleted {
			continue
		}
		if node.Level > maxLevel {
			maxLevel = node.Level
		}
		levelDistribution[node.Level]++
		for _, neighbors := range node.Neighbors {
			totalEdges += len(neighbors)
		}
	}
	avgEdges := 0.0
	if h.liveCount > 0 {
		avgEdges = float64(totalEdges) / float64(h.liveCount)
	}
	return map[string]any{
		"total_nodes":        len(h.Nodes),
		"live_nodes":         h.liveCount,
		"deleted_nodes":      h.deletedCount,
		"total_edges":        totalEdges,
		"avg_edges_per_node": avgEdges,
		"max_level":          maxLevel,
		"level_distribution": levelDistribution,
		"entry_point":        h.EntryPoint,
		"m":                  h.M,
		"ef_construction":    h.EfConstruction,
	}
}

// gobState is the on-wire shape for Save/Load, kept separate from HNSW
// itself so unexported runtime fields (mu, rng) never need gob tags.
type gobState struct {
	Dimension        int
	M                int
	EfConstruction   int
	EfSearch         int
	Seed             int64
	RebuildThreshold float64
	EntryPoint       string
	LiveCount        int
	DeletedCount     int
	Nodes            []*Node
}

// Save serializes the graph topology to w via gob. The distance function
// and quantizer are not serialized; the owning collection re-attaches them
// from its own persisted configuration on Load.
func (h *HNSW) Save(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	state := gobState{
		Dimension:        h.Dimension,
		M:                h.M,
		EfConstruction:   h.EfConstruction,
		EfSearch:         h.EfSearch,
		Seed:             h.Seed,
		RebuildThreshold: h.RebuildThreshold,
		EntryPoint:       h.EntryPoint,
		LiveCount:        h.liveCount,
		DeletedCount:     h.deletedCount,
		Nodes:            make([]*Node, 0, len(h.Nodes)),
	}
	for _, n := range h.Nodes {
		state.Nodes = append(state.Nodes, n)
	}
	return gob.NewEncoder(w).Encode(&state)
}

// Load restores graph topology from r. distFunc must be supplied by the
// caller (it is derived from the collection's configured metric, not
// persisted inside the index).
func (h *HNSW) Load(r io.Reader, distFunc distance.Func) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var state gobState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return err
	}

	h.Dimension = state.Dimension
	h.M = state.M
	h.MaxM = state.M * 2
	h.EfConstruction = state.EfConstruction
	h.EfSearch = state.EfSearch
	h.Seed = state.Seed
	h.RebuildThreshold = state.RebuildThreshold
	h.ML = 1.0 / math.Log(2.0)
	h.EntryPoint = state.EntryPoint
	h.liveCount = state.LiveCount
	h.deletedCount = state.DeletedCount
	h.rng = rand.New(rand.NewSource(state.Seed))
	if distFunc != nil {
		h.DistFunc = distFunc
	}

	h.Nodes = make(map[string]*Node, len(state.Nodes))
	for _, n := range state.Nodes {
		h.Nodes[n.ID] = n
	}
	return nil
}

type heapItem struct {
	id   string
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
