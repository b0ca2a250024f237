//go:build unix

package safetensors

import (
	"os"

	"golang.org/x/sys/unix"
)

type mapping struct {
	b       []byte
	mmapped bool
}

// mapFile maps path read-only. If mmap is unavailable it falls back to
// reading the whole file.
func mapFile(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size > 0 && size <= int64(int(^uint(0)>>1)) {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			return &mapping{b: data, mmapped: true}, nil
		}
	}

	data, err := readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return &mapping{b: data}, nil
}

func (m *mapping) close() error {
	if !m.mmapped {
		m.b = nil
		return nil
	}
	err := unix.Munmap(m.b)
	m.b = nil
	return err
}
