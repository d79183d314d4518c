package quantization

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

// StatefulCodec is implemented by every Codec so persistence can save and
// restore trained parameters (centroids, thresholds, ranges) without the
// persistence layer knowing each quantizer's internal shape.
type StatefulCodec interface {
	MarshalState() ([]byte, error)
	UnmarshalState([]byte) error
}

// Mode identifies a collection's configured quantization mode.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeSQ8    Mode = "sq8"
	ModePQ     Mode = "pq"
	ModeBinary Mode = "binary"
)

// Codec is the pure, deterministic quantize/reconstruct contract every
// quantization mode satisfies: quantize(vector) -> code,
// reconstruct(code) -> approximate vector, with parameters fixed after
// training and persisted alongside the collection.
type Codec interface {
	Quantize(vector []float32) ([]byte, error)
	Reconstruct(code []byte) ([]float32, error)
	Trained() bool
	CompressionRatio() float32
}

// sq8Codec adapts ScalarQuantizer (Bits=8) to Codec, translating the
// quantizer's plain errors into the taxonomy's NotFitted/DimensionMismatch
// kinds.
type sq8Codec struct{ q *ScalarQuantizer }

// NewSQ8 builds an 8-bit scalar quantization codec for dimension d.
func NewSQ8(dimension int) (Codec, error) {
	q, err := NewScalarQuantizer(dimension, 8)
	if err != nil {
		return nil, verrors.Validation("quantization.new_sq8", err)
	}
	return &sq8Codec{q: q}, nil
}

func (c *sq8Codec) Train(vectors [][]float32) error { return c.q.Train(vectors) }
func (c *sq8Codec) Trained() bool                   { return c.q.Fitted }
func (c *sq8Codec) CompressionRatio() float32        { return c.q.CompressionRatio() }

func (c *sq8Codec) Quantize(vector []float32) ([]byte, error) {
	if !c.q.Fitted {
		return nil, verrors.State("quantization.quantize", verrors.ErrNotFitted)
	}
	if len(vector) != c.q.Dim {
		return nil, verrors.Validation("quantization.quantize", fmt.Errorf("%w: expected %d got %d", verrors.ErrDimensionMismatch, c.q.Dim, len(vector)))
	}
	return c.q.Encode(vector)
}

func (c *sq8Codec) Reconstruct(code []byte) ([]float32, error) {
	if !c.q.Fitted {
		return nil, verrors.State("quantization.reconstruct", verrors.ErrNotFitted)
	}
	return c.q.Decode(code)
}

func (c *sq8Codec) MarshalState() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.q); err != nil {
		return nil, verrors.Integrity("quantization.marshal_state", err)
	}
	return buf.Bytes(), nil
}

func (c *sq8Codec) UnmarshalState(data []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(c.q); err != nil {
		return verrors.Integrity("quantization.unmarshal_state", err)
	}
	return nil
}

// binaryCodec adapts BinaryQuantizer to Codec.
type binaryCodec struct{ q *BinaryQuantizer }

// NewBinary builds a sign-bit binary quantization codec for dimension d.
func NewBinary(dimension int) Codec {
	return &binaryCodec{q: NewBinaryQuantizer(dimension)}
}

func (c *binaryCodec) Train(vectors [][]float32) error { return c.q.Train(vectors) }
func (c *binaryCodec) Trained() bool                   { return c.q.Fitted }
func (c *binaryCodec) CompressionRatio() float32        { return c.q.CompressionRatio() }

func (c *binaryCodec) Quantize(vector []float32) ([]byte, error) {
	if !c.q.Fitted {
		return nil, verrors.State("quantization.quantize", verrors.ErrNotFitted)
	}
	if len(vector) != c.q.Dim {
		return nil, verrors.Validation("quantization.quantize", fmt.Errorf("%w: expected %d got %d", verrors.ErrDimensionMismatch, c.q.Dim, len(vector)))
	}
	return c.q.Encode(vector)
}

func (c *binaryCodec) Reconstruct(code []byte) ([]float32, error) {
	if !c.q.Fitted {
		return nil, verrors.State("quantization.reconstruct", verrors.ErrNotFitted)
	}
	return c.q.Decode(code)
}

func (c *binaryCodec) MarshalState() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.q); err != nil {
		return nil, verrors.Integrity("quantization.marshal_state", err)
	}
	return buf.Bytes(), nil
}

func (c *binaryCodec) UnmarshalState(data []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(c.q); err != nil {
		return verrors.Integrity("quantization.unmarshal_state", err)
	}
	return nil
}

// pqCodec adapts ProductQuantizer to Codec.
type pqCodec struct{ q *ProductQuantizer }

// NewPQ builds a product-quantization codec: dimension must be divisible by
// numSubspaces; numCentroids must be <= 256 for byte-coded centroids.
func NewPQ(dimension, numSubspaces, numCentroids int) (Codec, error) {
	q, err := NewProductQuantizer(dimension, numSubspaces, numCentroids)
	if err != nil {
		return nil, verrors.Validation("quantization.new_pq", err)
	}
	return &pqCodec{q: q}, nil
}

func (c *pqCodec) Train(vectors [][]float32) error { return c.q.Train(vectors) }
func (c *pqCodec) Trained() bool                   { return c.q.Fitted }
func (c *pqCodec) CompressionRatio() float32        { return c.q.CompressionRatio() }

func (c *pqCodec) Quantize(vector []float32) ([]byte, error) {
	if !c.q.Fitted {
		return nil, verrors.State("quantization.quantize", verrors.ErrNotFitted)
	}
	if len(vector) != c.q.Dim {
		return nil, verrors.Validation("quantization.quantize", fmt.Errorf("%w: expected %d got %d", verrors.ErrDimensionMismatch, c.q.Dim, len(vector)))
	}
	return c.q.Encode(vector)
}

func (c *pqCodec) Reconstruct(code []byte) ([]float32, error) {
	if !c.q.Fitted {
		return nil, verrors.State("quantization.reconstruct", verrors.ErrNotFitted)
	}
	return c.q.Decode(code)
}

// MarshalState serializes the trained codebooks via the product quantizer's
// own binary layout rather than gob, since codebooks are the bulk of a PQ
// codec's size and benefit from the compact fixed-width encoding.
func (c *pqCodec) MarshalState() ([]byte, error) {
	data := c.q.SerializeCodebooks()
	if data == nil {
		return nil, verrors.State("quantization.marshal_state", verrors.ErrNotFitted)
	}
	return data, nil
}

func (c *pqCodec) UnmarshalState(data []byte) error {
	if err := c.q.DeserializeCodebooks(data); err != nil {
		return verrors.Integrity("quantization.unmarshal_state", err)
	}
	return nil
}

// New builds the Codec for a configured mode. ModeNone returns nil (no
// quantization).
func New(mode Mode, dimension int) (Codec, error) {
	switch mode {
	case ModeSQ8:
		return NewSQ8(dimension)
	case ModeBinary:
		return NewBinary(dimension), nil
	case ModePQ:
		subspaces := dimension
		for subspaces > 32 && subspaces%2 == 0 {
			subspaces /= 2
		}
		return NewPQ(dimension, subspaces, 256)
	case ModeNone, "":
		return nil, nil
	default:
		return nil, verrors.Validation("quantization.new", fmt.Errorf("%w: unknown mode %q", verrors.ErrInvalidConfiguration, mode))
	}
}
