// Package checkpoint loads adapter checkpoints into a name → tensor mapping
// plus optional string metadata.
package checkpoint

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samcharles93/lorakit/internal/logger"
	"github.com/samcharles93/lorakit/internal/safetensors"
)

var (
	// ErrNoMetadata is returned by formats that cannot carry metadata.
	ErrNoMetadata        = errors.New("checkpoint: format has no metadata support")
	ErrUnsupportedFormat = errors.New("checkpoint: unsupported file format")
)

type Format int

const (
	FormatUnknown Format = iota
	FormatSafetensors
	FormatTorch
)

func (f Format) String() string {
	switch f {
	case FormatSafetensors:
		return "safetensors"
	case FormatTorch:
		return "torch"
	default:
		return "unknown"
	}
}

// Extensions lists every file extension DetectFormat recognises.
var Extensions = []string{".safetensors", ".pt", ".pth", ".bin", ".ckpt"}

// DetectFormat classifies path by its extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return FormatSafetensors
	case ".pt", ".pth", ".bin", ".ckpt":
		return FormatTorch
	default:
		return FormatUnknown
	}
}

// Files reads checkpoints from the local file system.
// It is stateless and safe for concurrent use.
type Files struct {
	// Log receives skipped-tensor notices. Nil discards them.
	Log logger.Logger
}

// LoadWeights materialises every tensor in path.
func (f Files) LoadWeights(path string) (Weights, error) {
	switch DetectFormat(path) {
	case FormatSafetensors:
		return loadSafetensors(path)
	case FormatTorch:
		log := f.Log
		if log == nil {
			log = logger.Discard()
		}
		return loadTorch(path, log)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// ReadMetadata returns the metadata stored in path's header.
func (Files) ReadMetadata(path string) (Metadata, error) {
	switch DetectFormat(path) {
	case FormatSafetensors:
		meta, err := safetensors.ReadMetadata(path)
		if err != nil {
			return nil, err
		}
		return Metadata(meta), nil
	case FormatTorch:
		return nil, ErrNoMetadata
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

func loadSafetensors(path string) (Weights, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	out := make(Weights, len(f.Tensors))
	for name := range f.Tensors {
		data, info, err := f.ReadTensor(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[name] = Tensor{DType: info.DType, Shape: info.Shape, Data: data}
	}
	return out, nil
}
