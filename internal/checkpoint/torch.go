package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/x448/float16"

	"github.com/samcharles93/lorakit/internal/logger"
)

// errUnsupportedStorage marks non-float storages such as step counters.
var errUnsupportedStorage = errors.New("unsupported storage")

func loadTorch(path string, log logger.Logger) (Weights, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: unpickle: %w", path, err)
	}

	entries, err := dictEntries(pt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// Lightning-style checkpoints nest the tensors under "state_dict".
	for _, e := range entries {
		if e.key == "state_dict" {
			if nested, err := dictEntries(e.value); err == nil {
				entries = nested
			}
			break
		}
	}

	out, err := torchWeights(entries, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// torchWeights converts the tensor entries, skipping integer and bool
// storages. Non-tensor values are ignored.
func torchWeights(entries []dictEntry, log logger.Logger) (Weights, error) {
	out := make(Weights, len(entries))
	for _, e := range entries {
		t, ok := e.value.(*pytorch.Tensor)
		if !ok {
			continue
		}
		tensor, err := torchTensor(t)
		if errors.Is(err, errUnsupportedStorage) {
			log.Debug("skipping tensor", "key", e.key, "storage", fmt.Sprintf("%T", t.Source))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", e.key, err)
		}
		out[e.key] = tensor
	}
	return out, nil
}

type dictEntry struct {
	key   string
	value any
}

func dictEntries(v any) ([]dictEntry, error) {
	var out []dictEntry
	switch d := v.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			name, ok := k.(string)
			if !ok {
				continue
			}
			out = append(out, dictEntry{key: name, value: d.MustGet(k)})
		}
	case *types.OrderedDict:
		for el := d.List.Front(); el != nil; el = el.Next() {
			entry := el.Value.(*types.OrderedDictEntry)
			name, ok := entry.Key.(string)
			if !ok {
				continue
			}
			out = append(out, dictEntry{key: name, value: entry.Value})
		}
	default:
		return nil, fmt.Errorf("unexpected pickle root %T", v)
	}
	return out, nil
}

// torchTensor copies the tensor's view out of its storage, keeping F16 and
// BF16 payloads in their original width.
func torchTensor(t *pytorch.Tensor) (Tensor, error) {
	var (
		dtype string
		src   []float32
	)
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		dtype, src = "F32", s.Data
	case *pytorch.HalfStorage:
		dtype, src = "F16", s.Data
	case *pytorch.BFloat16Storage:
		dtype, src = "BF16", s.Data
	case *pytorch.DoubleStorage:
		dtype = "F32"
		src = make([]float32, len(s.Data))
		for i, v := range s.Data {
			src[i] = float32(v)
		}
	default:
		return Tensor{}, fmt.Errorf("%w %T", errUnsupportedStorage, s)
	}

	values, err := gather(src, t.StorageOffset, t.Size, t.Stride)
	if err != nil {
		return Tensor{}, err
	}

	var data []byte
	switch dtype {
	case "F16":
		data = make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(v).Bits())
		}
	case "BF16":
		data = bfloat16.EncodeFloat32(values)
	default:
		data = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
	}

	shape := make([]int, len(t.Size))
	copy(shape, t.Size)
	return Tensor{DType: dtype, Shape: shape, Data: data}, nil
}

// gather reads a strided view into a contiguous row-major slice.
func gather(src []float32, offset int, size, stride []int) ([]float32, error) {
	n := 1
	for _, d := range size {
		if d < 0 {
			return nil, fmt.Errorf("invalid dim %d", d)
		}
		n *= d
	}
	if len(stride) != len(size) {
		stride = contiguousStride(size)
	}

	out := make([]float32, 0, n)
	idx := make([]int, len(size))
	for range n {
		pos := offset
		for i, j := range idx {
			pos += j * stride[i]
		}
		if pos < 0 || pos >= len(src) {
			return nil, fmt.Errorf("view exceeds storage (%d >= %d)", pos, len(src))
		}
		out = append(out, src[pos])

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < size[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

func contiguousStride(size []int) []int {
	stride := make([]int, len(size))
	acc := 1
	for i := len(size) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= size[i]
	}
	return stride
}
