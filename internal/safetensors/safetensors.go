package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/d4l3k/go-bfloat16"
	json "github.com/goccy/go-json"
	"github.com/x448/float16"
)

// MetadataKey is the reserved header entry holding string metadata.
const MetadataKey = "__metadata__"

// Real-world headers are a few KB; adapters with thousands of pairs stay well below this.
const maxHeaderSize = 100 << 20

var (
	ErrHeaderTooLarge = errors.New("safetensors: header too large")
	ErrTruncated      = errors.New("safetensors: truncated file")
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// Size is the payload length in bytes.
func (t TensorInfo) Size() int64 { return t.End - t.Start }

// File is a parsed safetensors container. Tensor offsets are relative to
// DataStart. The payload is mapped (or read) lazily on the first tensor read.
type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo

	metadata map[string]string
	data     *mapping
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of path and validates every tensor's data range
// against the file size.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	headerBytes, err := readHeader(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tensors, meta, err := parseHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dataStart := int64(8 + len(headerBytes))
	for name, t := range tensors {
		if dataStart+t.End > st.Size() {
			return nil, fmt.Errorf("%s: tensor %s: %w", path, name, ErrTruncated)
		}
	}

	return &File{
		Path:      path,
		DataStart: dataStart,
		Tensors:   tensors,
		metadata:  meta,
	}, nil
}

// ReadMetadata reads only the header of path and returns its string metadata.
// A file without a metadata entry returns an empty, non-nil map.
func ReadMetadata(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	headerBytes, err := readHeader(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%s: parse header: %w", path, err)
	}
	return decodeMetadata(raw[MetadataKey])
}

// Metadata returns the header's string metadata (possibly empty).
func (f *File) Metadata() map[string]string {
	return f.metadata
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// Close releases the payload mapping, if any.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	err := f.data.close()
	f.data = nil
	return err
}

// ReadTensor returns a copy of the raw little-endian payload for name.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	if t.End < t.Start {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid offsets", name)
	}
	if f.data == nil {
		m, err := mapFile(f.Path)
		if err != nil {
			return nil, TensorInfo{}, err
		}
		f.data = m
	}

	lo, hi := f.DataStart+t.Start, f.DataStart+t.End
	if hi > int64(len(f.data.b)) {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, ErrTruncated)
	}
	buf := make([]byte, hi-lo)
	copy(buf, f.data.b[lo:hi])
	return buf, t, nil
}

func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	out, err := DecodeF32(info.DType, info.Shape, raw)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	return out, info, nil
}

// DecodeF32 widens a raw F32, F16 or BF16 payload to float32.
func DecodeF32(dtype string, shape []int, raw []byte) ([]float32, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case "F32":
		if len(raw) != n*4 {
			return nil, fmt.Errorf("invalid f32 data size")
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "BF16":
		if len(raw) != n*2 {
			return nil, fmt.Errorf("invalid bf16 data size")
		}
		return bfloat16.DecodeFloat32(raw), nil
	case "F16":
		if len(raw) != n*2 {
			return nil, fmt.Errorf("invalid f16 data size")
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

// NumElements returns the element count of shape. A zero-dimensional shape
// describes a scalar and holds one element; a zero-sized dim yields none.
func NumElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d == 0 {
			n = 0
			continue
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

// DTypeSize is the element width in bytes, or 0 for unknown dtypes.
func DTypeSize(dtype string) int {
	switch dtype {
	case "F64", "I64", "U64":
		return 8
	case "F32", "I32", "U32":
		return 4
	case "F16", "BF16", "I16", "U16":
		return 2
	case "I8", "U8", "BOOL", "F8_E4M3", "F8_E5M2":
		return 1
	default:
		return 0
	}
}

func readHeader(r io.Reader, fileSize int64) ([]byte, error) {
	if fileSize < 8 {
		return nil, ErrTruncated
	}
	headerLen, err := readU64(r)
	if err != nil {
		return nil, err
	}
	if headerLen > maxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	if int64(8+headerLen) > fileSize {
		return nil, ErrTruncated
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, err
	}
	return headerBytes, nil
}

func parseHeader(headerBytes []byte) (map[string]TensorInfo, map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse header: %w", err)
	}
	meta, err := decodeMetadata(raw[MetadataKey])
	if err != nil {
		return nil, nil, err
	}
	delete(raw, MetadataKey)

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		if th.DataOffsets[0] < 0 || th.DataOffsets[1] < 0 {
			return nil, nil, fmt.Errorf("tensor %s: negative data_offsets", name)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return tensors, meta, nil
}

func decodeMetadata(msg json.RawMessage) (map[string]string, error) {
	meta := map[string]string{}
	if len(msg) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(msg, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataKey, err)
	}
	return meta, nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
