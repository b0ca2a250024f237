package checkpoint

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/samcharles93/lorakit/internal/safetensors"
)

// Tensor is a named-tensor payload as stored in a checkpoint: dtype tag,
// shape and raw little-endian bytes.
type Tensor struct {
	DType string
	Shape []int
	Data  []byte
}

// Weights maps parameter names to tensors.
type Weights map[string]Tensor

// Metadata is the optional string key/value map stored beside the tensors.
type Metadata map[string]string

// Keys returns the parameter names in sorted order.
func (w Weights) Keys() []string {
	return slices.Sorted(maps.Keys(w))
}

// Scalar returns a zero-dimensional F32 tensor holding v.
func Scalar(v float32) Tensor {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(v))
	return Tensor{DType: "F32", Shape: []int{}, Data: data}
}

// Rank is the size of the first dimension, or 0 for scalars.
func (t Tensor) Rank() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Float32s decodes the payload of an F32, F16 or BF16 tensor.
func (t Tensor) Float32s() ([]float32, error) {
	return safetensors.DecodeF32(t.DType, t.Shape, t.Data)
}

// Convert re-encodes t as dtype (F32, F16 or BF16). Tensors already in
// dtype are returned unchanged.
func (t Tensor) Convert(dtype string) (Tensor, error) {
	if t.DType == dtype {
		return t, nil
	}
	values, err := t.Float32s()
	if err != nil {
		return Tensor{}, err
	}
	data, err := encodeF32(dtype, values)
	if err != nil {
		return Tensor{}, err
	}
	return Tensor{DType: dtype, Shape: slices.Clone(t.Shape), Data: data}, nil
}

func encodeF32(dtype string, values []float32) ([]byte, error) {
	switch dtype {
	case "F32":
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case "F16":
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	case "BF16":
		return bfloat16.EncodeFloat32(values), nil
	default:
		return nil, fmt.Errorf("unsupported target dtype %q", dtype)
	}
}
