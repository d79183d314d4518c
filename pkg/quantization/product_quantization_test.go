package quantization

import (
	"math"
	"math/rand"
	"testing"
)

func TestProductQuantizer(t *testing.T) {
	dim := 128
	subspaces := 8
	centroids := 16

	pq, err := NewProductQuantizer(dim, subspaces, centroids)
	if err != nil {
		t.Fatalf("NewProductQuantizer: %v", err)
	}

	if pq.Dim != dim {
		t.Errorf("expected dim %d, got %d", dim, pq.Dim)
	}
	if pq.Subspaces != subspaces {
		t.Errorf("expected %d subspaces, got %d", subspaces, pq.Subspaces)
	}
	if pq.Centroids != centroids {
		t.Errorf("expected %d centroids, got %d", centroids, pq.Centroids)
	}
	if pq.SubDim != dim/subspaces {
		t.Errorf("expected subdim %d, got %d", dim/subspaces, pq.SubDim)
	}
}

func TestProductQuantizerInvalidParams(t *testing.T) {
	if _, err := NewProductQuantizer(127, 8, 16); err == nil {
		t.Error("expected error for indivisible dimension")
	}
	if _, err := NewProductQuantizer(128, 8, 257); err == nil {
		t.Error("expected error for >256 centroids")
	}
}

func TestProductQuantizerTrainEncodeDecode(t *testing.T) {
	dim := 64
	numVectors := 100

	pq, _ := NewProductQuantizer(dim, 4, 8)
	vectors := generateTestVectorsPQ(numVectors, dim)

	if err := pq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !pq.Fitted {
		t.Error("pq should be fitted after training")
	}

	testVec := vectors[0]
	encoded, err := pq.Encode(testVec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if wantBytes := pq.Subspaces; len(encoded) != wantBytes {
		t.Errorf("expected %d bytes, got %d", wantBytes, len(encoded))
	}

	decoded, err := pq.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != dim {
		t.Errorf("expected decoded dimension %d, got %d", dim, len(decoded))
	}

	mse := calculateMSE(testVec, decoded)
	t.Logf("reconstruction MSE: %.6f", mse)
	if mse > 0.5 {
		t.Error("reconstruction error too high")
	}
}

func TestProductQuantizerSearch(t *testing.T) {
	dim := 32
	numVectors := 50

	pq, _ := NewProductQuantizer(dim, 4, 8)
	vectors := generateTestVectorsPQ(numVectors, dim)
	if err := pq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	codes := make([][]byte, numVectors)
	for i, vec := range vectors {
		codes[i], _ = pq.Encode(vec)
	}

	query := vectors[0]
	indices, distances := pq.SearchPQ(query, codes, 5)

	if len(indices) != 5 {
		t.Errorf("expected 5 results, got %d", len(indices))
	}
	if indices[0] != 0 {
		t.Errorf("expected first result to be index 0, got %d", indices[0])
	}
	for i := 1; i < len(distances); i++ {
		if distances[i] < distances[i-1] {
			t.Error("distances not in ascending order")
		}
	}
}

func TestProductQuantizerCompressionRatio(t *testing.T) {
	pq, _ := NewProductQuantizer(512, 8, 256)

	ratio := pq.CompressionRatio()
	expected := float32(512*4) / float32(8)
	if math.Abs(float64(ratio-expected)) > 0.01 {
		t.Errorf("expected compression ratio %.2f, got %.2f", expected, ratio)
	}
}

func TestProductQuantizerSerialization(t *testing.T) {
	dim := 16
	pq, _ := NewProductQuantizer(dim, 2, 4)

	vectors := generateTestVectorsPQ(20, dim)
	if err := pq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	data := pq.SerializeCodebooks()
	if data == nil {
		t.Fatal("serialization returned nil")
	}

	pq2, _ := NewProductQuantizer(dim, 2, 4)
	if err := pq2.DeserializeCodebooks(data); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !pq2.Fitted {
		t.Error("deserialized pq should be fitted")
	}

	testVec := vectors[0]
	encoded1, _ := pq.Encode(testVec)
	encoded2, _ := pq2.Encode(testVec)
	for i := range encoded1 {
		if encoded1[i] != encoded2[i] {
			t.Error("encoded results differ after serialization round trip")
		}
	}
}

func TestProductQuantizerNotTrained(t *testing.T) {
	pq, _ := NewProductQuantizer(32, 4, 8)
	vec := make([]float32, 32)

	if _, err := pq.Encode(vec); err == nil {
		t.Error("expected error when encoding with an untrained quantizer")
	}
	if _, err := pq.Decode([]byte{0, 0, 0, 0}); err == nil {
		t.Error("expected error when decoding with an untrained quantizer")
	}
}

func generateTestVectorsPQ(n, dim int) [][]float32 {
	rng := rand.New(rand.NewSource(42))
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = rng.Float32()*2 - 1
		}
		vectors[i] = vec
	}
	return vectors
}

func calculateMSE(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum / float32(len(a))
}

func BenchmarkPQEncode(b *testing.B) {
	pq, _ := NewProductQuantizer(512, 8, 256)
	vectors := generateTestVectorsPQ(1000, 512)
	if err := pq.Train(vectors); err != nil {
		b.Fatalf("train: %v", err)
	}

	vec := vectors[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pq.Encode(vec); err != nil {
			b.Fatalf("encode: %v", err)
		}
	}
}

func BenchmarkPQDecode(b *testing.B) {
	pq, _ := NewProductQuantizer(512, 8, 256)
	vectors := generateTestVectorsPQ(1000, 512)
	if err := pq.Train(vectors); err != nil {
		b.Fatalf("train: %v", err)
	}

	encoded, _ := pq.Encode(vectors[0])
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pq.Decode(encoded); err != nil {
			b.Fatalf("decode: %v", err)
		}
	}
}

func BenchmarkPQSearch(b *testing.B) {
	pq, _ := NewProductQuantizer(128, 8, 256)
	vectors := generateTestVectorsPQ(10000, 128)
	if err := pq.Train(vectors); err != nil {
		b.Fatalf("train: %v", err)
	}

	codes := make([][]byte, len(vectors))
	for i, vec := range vectors {
		codes[i], _ = pq.Encode(vec)
	}

	query := vectors[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pq.SearchPQ(query, codes, 10)
	}
}
