//go:build !unix

package safetensors

import "os"

type mapping struct {
	b []byte
}

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
	data, err := readAllAt(f, st.Size())
	if err != nil {
		return nil, err
	}
	return &mapping{b: data}, nil
}

func (m *mapping) close() error {
	m.b = nil
	return nil
}
