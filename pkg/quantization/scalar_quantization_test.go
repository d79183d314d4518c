package quantization

import (
	"fmt"
	"math"
	"testing"
)

func TestScalarQuantizer(t *testing.T) {
	dim := 128
	bits := 8

	sq, err := NewScalarQuantizer(dim, bits)
	if err != nil {
		t.Fatalf("NewScalarQuantizer: %v", err)
	}

	if sq.Dim != dim {
		t.Errorf("expected dim %d, got %d", dim, sq.Dim)
	}
	if sq.Bits != bits {
		t.Errorf("expected %d bits, got %d", bits, sq.Bits)
	}
}

func TestScalarQuantizerInvalidBits(t *testing.T) {
	if _, err := NewScalarQuantizer(128, 0); err == nil {
		t.Error("expected error for 0 bits")
	}
	if _, err := NewScalarQuantizer(128, 9); err == nil {
		t.Error("expected error for >8 bits")
	}
}

func TestScalarQuantizerTrainEncodeDecode(t *testing.T) {
	dim := 64
	sq, _ := NewScalarQuantizer(dim, 4)

	vectors := generateTestVectorsPQ(100, dim)
	if err := sq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !sq.Fitted {
		t.Error("quantizer should be fitted after training")
	}

	for d := 0; d < dim; d++ {
		if sq.Lo[d] >= sq.Hi[d] {
			t.Errorf("invalid lo/hi range for dimension %d", d)
		}
	}

	testVec := vectors[0]
	encoded, err := sq.Encode(testVec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	wantBytes := (dim*sq.Bits + 7) / 8
	if len(encoded) != wantBytes {
		t.Errorf("expected %d bytes, got %d", wantBytes, len(encoded))
	}

	decoded, err := sq.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != dim {
		t.Errorf("expected decoded dimension %d, got %d", dim, len(decoded))
	}

	mse := calculateMSE(testVec, decoded)
	t.Logf("scalar quantization MSE (4 bits): %.6f", mse)
	if mse > 0.1 {
		t.Error("reconstruction error too high for 4-bit quantization")
	}
}

func TestScalarQuantizerDifferentBits(t *testing.T) {
	dim := 32
	vectors := generateTestVectorsPQ(50, dim)

	testCases := []struct {
		bits        int
		maxMSE      float32
		compression float32
	}{
		{1, 1.5, 32.0},
		{2, 0.2, 16.0},
		{4, 0.05, 8.0},
		{8, 0.001, 4.0},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d_bits", tc.bits), func(t *testing.T) {
			sq, _ := NewScalarQuantizer(dim, tc.bits)
			if err := sq.Train(vectors); err != nil {
				t.Fatalf("train: %v", err)
			}

			if ratio := sq.CompressionRatio(); math.Abs(float64(ratio-tc.compression)) > 0.01 {
				t.Errorf("expected compression ratio %.1f, got %.1f", tc.compression, ratio)
			}

			var totalMSE float32
			for _, vec := range vectors[:10] {
				encoded, _ := sq.Encode(vec)
				decoded, _ := sq.Decode(encoded)
				totalMSE += calculateMSE(vec, decoded)
			}
			avgMSE := totalMSE / 10
			t.Logf("%d-bit quantization MSE: %.6f", tc.bits, avgMSE)
			if avgMSE > tc.maxMSE {
				t.Errorf("MSE %.6f exceeds max %.6f for %d bits", avgMSE, tc.maxMSE, tc.bits)
			}
		})
	}
}

func TestBinaryQuantizer(t *testing.T) {
	dim := 128
	bq := NewBinaryQuantizer(dim)
	if bq.Dim != dim {
		t.Errorf("expected dim %d, got %d", dim, bq.Dim)
	}
}

func TestBinaryQuantizerTrainEncodeDecode(t *testing.T) {
	dim := 64
	bq := NewBinaryQuantizer(dim)

	vectors := generateTestVectorsPQ(100, dim)
	if err := bq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !bq.Fitted {
		t.Error("binary quantizer should be fitted after training")
	}

	testVec := vectors[0]
	encoded, err := bq.Encode(testVec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	wantBytes := (dim + 7) / 8
	if len(encoded) != wantBytes {
		t.Errorf("expected %d bytes, got %d", wantBytes, len(encoded))
	}

	decoded, err := bq.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != dim {
		t.Errorf("expected decoded dimension %d, got %d", dim, len(decoded))
	}

	for i := 0; i < dim; i++ {
		if diff := math.Abs(float64(decoded[i] - bq.Threshold[i])); diff > 1.0 {
			t.Errorf("decoded value too far from threshold at dimension %d", i)
		}
	}
}

func TestBinaryQuantizerCompressionRatio(t *testing.T) {
	bq := NewBinaryQuantizer(512)

	ratio := bq.CompressionRatio()
	expected := float32(512*32) / float32(512)
	if ratio != expected {
		t.Errorf("expected compression ratio %f, got %f", expected, ratio)
	}
}

func BenchmarkScalarQuantizerEncode(b *testing.B) {
	sq, _ := NewScalarQuantizer(512, 8)
	vectors := generateTestVectorsPQ(1000, 512)
	if err := sq.Train(vectors); err != nil {
		b.Fatalf("train: %v", err)
	}

	vec := vectors[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sq.Encode(vec); err != nil {
			b.Fatalf("encode: %v", err)
		}
	}
}

func BenchmarkBinaryQuantizerEncode(b *testing.B) {
	bq := NewBinaryQuantizer(512)
	vectors := generateTestVectorsPQ(1000, 512)
	if err := bq.Train(vectors); err != nil {
		b.Fatalf("train: %v", err)
	}

	vec := vectors[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := bq.Encode(vec); err != nil {
			b.Fatalf("encode: %v", err)
		}
	}
}
