package safetensors

import (
	"errors"
	"io"
)

func readAllAt(r io.ReaderAt, size int64) ([]byte, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrTruncated
	}
	out := make([]byte, size)
	var off int64
	for off < size {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && off == size {
			break
		}
		return nil, err
	}
	return out, nil
}
