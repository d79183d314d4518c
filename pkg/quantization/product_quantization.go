package quantization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/halcyonlabs/vecstore/pkg/distance"
)

var (
	// ErrCentroidCount is returned when a product quantizer is asked for
	// more than 256 centroids per subspace; codes are stored as one byte.
	ErrCentroidCount = errors.New("quantization: centroid count must be <= 256 for byte-coded centroids")
	// ErrInsufficientTrainingData is returned when Train sees fewer vectors
	// than the codebooks need to converge meaningfully.
	ErrInsufficientTrainingData = errors.New("quantization: insufficient training vectors")
)

// ProductQuantizer splits each vector into Subspaces equal-length chunks and
// independently vector-quantizes each chunk against its own k-means
// codebook, coding the chosen centroid index as a single byte. This trades
// more training cost and a coarser search (ComputeDistance is an asymmetric
// approximation) for much higher compression than scalar quantization.
type ProductQuantizer struct {
	Subspaces  int // number of chunks a vector is split into
	Centroids  int // codebook size per subspace, <= 256
	Dim        int // full vector dimension
	SubDim     int // Dim / Subspaces
	Codebooks  [][][]float32 // [subspace][centroid][SubDim]
	Fitted     bool
	SampleSize int // vectors seen during the last Train call
}

// NewProductQuantizer allocates a product quantizer. dim must be divisible
// by subspaces, and centroids must fit in a byte.
func NewProductQuantizer(dim, subspaces, centroids int) (*ProductQuantizer, error) {
	if dim%subspaces != 0 {
		return nil, fmt.Errorf("quantization: dimension %d not divisible by %d subspaces", dim, subspaces)
	}
	if centroids > 256 {
		return nil, ErrCentroidCount
	}
	return &ProductQuantizer{
		Subspaces: subspaces,
		Centroids: centroids,
		Dim:       dim,
		SubDim:    dim / subspaces,
		Codebooks: make([][][]float32, subspaces),
	}, nil
}

// Train runs k-means independently within each subspace to build that
// subspace's codebook.
func (pq *ProductQuantizer) Train(vectors [][]float32) error {
	if len(vectors) < pq.Centroids*pq.Subspaces {
		return fmt.Errorf("%w: need at least %d, got %d", ErrInsufficientTrainingData, pq.Centroids*pq.Subspaces, len(vectors))
	}
	pq.SampleSize = len(vectors)

	for m := 0; m < pq.Subspaces; m++ {
		chunks := make([][]float32, len(vectors))
		start := m * pq.SubDim
		for i, vec := range vectors {
			chunks[i] = vec[start : start+pq.SubDim]
		}

		codebook, err := kMeans(chunks, pq.Centroids, 20)
		if err != nil {
			return fmt.Errorf("quantization: k-means for subspace %d: %w", m, err)
		}
		pq.Codebooks[m] = codebook
	}

	pq.Fitted = true
	return nil
}

// Encode assigns each subspace chunk of vector to its nearest codebook
// centroid, returning one byte per subspace.
func (pq *ProductQuantizer) Encode(vector []float32) ([]byte, error) {
	if !pq.Fitted {
		return nil, ErrNotFitted
	}
	if len(vector) != pq.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vector), pq.Dim)
	}

	codes := make([]byte, pq.Subspaces)
	for m := 0; m < pq.Subspaces; m++ {
		start := m * pq.SubDim
		chunk := vector[start : start+pq.SubDim]
		idx, _ := nearestCentroid(chunk, pq.Codebooks[m])
		codes[m] = byte(idx)
	}
	return codes, nil
}

// Decode reconstructs an approximate vector by concatenating each
// subspace's chosen centroid.
func (pq *ProductQuantizer) Decode(codes []byte) ([]float32, error) {
	if !pq.Fitted {
		return nil, ErrNotFitted
	}
	if len(codes) != pq.Subspaces {
		return nil, fmt.Errorf("quantization: code length %d, want %d subspaces", len(codes), pq.Subspaces)
	}

	vector := make([]float32, pq.Dim)
	for m, code := range codes {
		if int(code) >= pq.Centroids {
			return nil, fmt.Errorf("quantization: code %d out of range for subspace %d", code, m)
		}
		copy(vector[m*pq.SubDim:], pq.Codebooks[m][code])
	}
	return vector, nil
}

// ComputeDistance returns the asymmetric distance between a query vector
// and already-encoded codes, summing each subspace's precomputed
// query-to-centroid distance.
func (pq *ProductQuantizer) ComputeDistance(codes []byte, query []float32) (float32, error) {
	if !pq.Fitted {
		return 0, ErrNotFitted
	}
	table := pq.distanceTable(query)
	var total float32
	for m, code := range codes {
		total += table[m][code]
	}
	return total, nil
}

// distanceTable precomputes, for each subspace, the distance from query's
// chunk to every centroid in that subspace's codebook.
func (pq *ProductQuantizer) distanceTable(query []float32) [][]float32 {
	table := make([][]float32, pq.Subspaces)
	for m := 0; m < pq.Subspaces; m++ {
		start := m * pq.SubDim
		subquery := query[start : start+pq.SubDim]
		table[m] = make([]float32, pq.Centroids)
		for k := 0; k < pq.Centroids; k++ {
			table[m][k] = distance.Euclidean32(subquery, pq.Codebooks[m][k])
		}
	}
	return table
}

// SearchPQ ranks a set of PQ-encoded vectors against query using the
// asymmetric distance table, returning the topK closest as parallel index
// and distance slices in ascending order.
func (pq *ProductQuantizer) SearchPQ(query []float32, codes [][]byte, topK int) ([]int, []float32) {
	if !pq.Fitted || len(codes) == 0 {
		return nil, nil
	}

	table := pq.distanceTable(query)
	type scored struct {
		idx  int
		dist float32
	}
	ranked := make([]scored, len(codes))
	for i, code := range codes {
		var dist float32
		for m, c := range code {
			dist += table[m][c]
		}
		ranked[i] = scored{idx: i, dist: dist}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	indices := make([]int, topK)
	distances := make([]float32, topK)
	for i := 0; i < topK; i++ {
		indices[i] = ranked[i].idx
		distances[i] = ranked[i].dist
	}
	return indices, distances
}

// CompressionRatio reports the ratio of a raw float32 vector's size to one
// byte per subspace.
func (pq *ProductQuantizer) CompressionRatio() float32 {
	return float32(pq.Dim*4) / float32(pq.Subspaces)
}

// pqHeaderWords is the count of uint32 header fields SerializeCodebooks
// writes ahead of the codebook payload (Subspaces, Centroids, Dim, SubDim).
const pqHeaderWords = 4

// SerializeCodebooks encodes the trained codebooks as a fixed-width binary
// blob: a 4-word header followed by Subspaces*Centroids*SubDim float32s.
// This hand-rolled layout (rather than gob, as the other codecs use) keeps
// the serialized form proportional to codebook size, the dominant cost for
// a PQ codec.
func (pq *ProductQuantizer) SerializeCodebooks() []byte {
	if !pq.Fitted {
		return nil
	}

	payloadFloats := pq.Subspaces * pq.Centroids * pq.SubDim
	buf := make([]byte, pqHeaderWords*4+payloadFloats*4)

	binary.LittleEndian.PutUint32(buf[0:], uint32(pq.Subspaces))
	binary.LittleEndian.PutUint32(buf[4:], uint32(pq.Centroids))
	binary.LittleEndian.PutUint32(buf[8:], uint32(pq.Dim))
	binary.LittleEndian.PutUint32(buf[12:], uint32(pq.SubDim))

	offset := pqHeaderWords * 4
	for m := 0; m < pq.Subspaces; m++ {
		for k := 0; k < pq.Centroids; k++ {
			for _, v := range pq.Codebooks[m][k] {
				binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
				offset += 4
			}
		}
	}
	return buf
}

// DeserializeCodebooks restores a quantizer's state from SerializeCodebooks
// output, marking it fitted on success.
func (pq *ProductQuantizer) DeserializeCodebooks(data []byte) error {
	if len(data) < pqHeaderWords*4 {
		return fmt.Errorf("quantization: codebook blob too short (%d bytes)", len(data))
	}

	pq.Subspaces = int(binary.LittleEndian.Uint32(data[0:]))
	pq.Centroids = int(binary.LittleEndian.Uint32(data[4:]))
	pq.Dim = int(binary.LittleEndian.Uint32(data[8:]))
	pq.SubDim = int(binary.LittleEndian.Uint32(data[12:]))

	offset := pqHeaderWords * 4
	pq.Codebooks = make([][][]float32, pq.Subspaces)
	for m := 0; m < pq.Subspaces; m++ {
		pq.Codebooks[m] = make([][]float32, pq.Centroids)
		for k := 0; k < pq.Centroids; k++ {
			chunk := make([]float32, pq.SubDim)
			for d := range chunk {
				if offset+4 > len(data) {
					return fmt.Errorf("quantization: codebook blob truncated at subspace %d centroid %d", m, k)
				}
				chunk[d] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
				offset += 4
			}
			pq.Codebooks[m][k] = chunk
		}
	}

	pq.Fitted = true
	return nil
}

// nearestCentroid returns the index and distance of the codebook entry
// closest to vec under Euclidean distance.
func nearestCentroid(vec []float32, codebook [][]float32) (int, float32) {
	bestIdx := 0
	bestDist := float32(math.MaxFloat32)
	for i, centroid := range codebook {
		if d := distance.Euclidean32(vec, centroid); d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx, bestDist
}

// kMeans runs Lloyd's algorithm for up to maxIters iterations (stopping
// early once assignments stop changing), seeding centroids from a random
// permutation of vectors rather than k-means++.
func kMeans(vectors [][]float32, k, maxIters int) ([][]float32, error) {
	if len(vectors) < k {
		return nil, fmt.Errorf("quantization: need at least %d vectors for %d clusters, got %d", k, k, len(vectors))
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	for i, src := range rand.Perm(len(vectors))[:k] {
		centroids[i] = append([]float32(nil), vectors[src]...)
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, vec := range vectors {
			idx, _ := nearestCentroid(vec, centroids)
			if assignments[i] != idx {
				assignments[i] = idx
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, vec := range vectors {
			c := assignments[i]
			counts[c]++
			for d, v := range vec {
				sums[c][d] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}
	}

	return centroids, nil
}
