package quantization

import "testing"

func trainingSet(dim, n int) [][]float32 {
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32(i%7) + float32(d)*0.1
		}
		vectors[i] = v
	}
	return vectors
}

func TestSQ8QuantizeBeforeTrainReturnsNotFitted(t *testing.T) {
	codec, err := NewSQ8(4)
	if err != nil {
		t.Fatalf("NewSQ8: %v", err)
	}
	if _, err := codec.Quantize([]float32{1, 2, 3, 4}); err == nil {
		t.Fatal("expected NotFitted error before training")
	}
}

func TestSQ8RoundTripWithinBound(t *testing.T) {
	codec := &sq8Codec{q: mustScalar(t, 4)}
	if err := codec.q.Train(trainingSet(4, 32)); err != nil {
		t.Fatalf("train: %v", err)
	}

	original := []float32{1, 2, 3, 4}
	code, err := codec.Quantize(original)
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	reconstructed, err := codec.Reconstruct(code)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	for i := range original {
		if diff := original[i] - reconstructed[i]; diff > 0.1 || diff < -0.1 {
			t.Fatalf("reconstruction error too large at %d: %f vs %f", i, original[i], reconstructed[i])
		}
	}
}

func mustScalar(t *testing.T, dim int) *ScalarQuantizer {
	t.Helper()
	q, err := NewScalarQuantizer(dim, 8)
	if err != nil {
		t.Fatalf("NewScalarQuantizer: %v", err)
	}
	return q
}

func TestBinaryQuantizeDimensionMismatch(t *testing.T) {
	codec := NewBinary(4).(*binaryCodec)
	if err := codec.q.Train(trainingSet(4, 8)); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := codec.Quantize([]float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestCodecFactoryUnknownMode(t *testing.T) {
	if _, err := New(Mode("bogus"), 8); err == nil {
		t.Fatal("expected error for unknown quantization mode")
	}
}

func TestCodecFactoryNoneReturnsNilCodec(t *testing.T) {
	codec, err := New(ModeNone, 8)
	if err != nil || codec != nil {
		t.Fatalf("expected nil codec, nil error, got %v %v", codec, err)
	}
}
