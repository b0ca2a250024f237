package safetensors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"slices"

	json "github.com/goccy/go-json"
)

// Entry is one tensor to be written.
type Entry struct {
	DType string
	Shape []int
	Data  []byte
}

// Write encodes tensors and metadata as a safetensors container. Tensors are
// laid out in sorted name order and the header is space-padded to 8 bytes.
func Write(w io.Writer, tensors map[string]Entry, metadata map[string]string) error {
	names := slices.Sorted(maps.Keys(tensors))

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[MetadataKey] = metadata
	}
	var off int64
	for _, name := range names {
		e := tensors[name]
		if err := checkEntry(name, e); err != nil {
			return err
		}
		shape := e.Shape
		if shape == nil {
			shape = []int{}
		}
		end := off + int64(len(e.Data))
		header[name] = tensorHeader{
			DType:       e.DType,
			Shape:       shape,
			DataOffsets: []int64{off, end},
		}
		off = end
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := w.Write(tensors[name].Data); err != nil {
			return fmt.Errorf("write tensor %s: %w", name, err)
		}
	}
	return nil
}

func checkEntry(name string, e Entry) error {
	if name == MetadataKey {
		return fmt.Errorf("tensor name %s is reserved", MetadataKey)
	}
	width := DTypeSize(e.DType)
	if width == 0 {
		return fmt.Errorf("tensor %s: unsupported dtype %q", name, e.DType)
	}
	n, err := NumElements(e.Shape)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	if len(e.Data) != n*width {
		return fmt.Errorf("tensor %s: data is %d bytes, shape %v needs %d", name, len(e.Data), e.Shape, n*width)
	}
	return nil
}
