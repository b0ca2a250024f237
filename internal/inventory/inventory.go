// Package inventory lists adapter checkpoints in a LoRA directory.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/lora"
)

var (
	ErrEmptyDir    = errors.New("loras directory is empty")
	ErrInvalidName = errors.New("invalid lora name")
	ErrNotFound    = errors.New("lora not found")
)

// Entry describes one adapter file.
type Entry struct {
	Name    string `json:"name"`
	Path    string `json:"-"`
	Format  string `json:"format"`
	Size    int64  `json:"size"`
	Sidecar bool   `json:"sidecar"`
}

// Discover returns the adapter files directly inside dir, sorted by name.
// Files with an unrecognised extension are skipped.
func Discover(dir string) ([]Entry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrEmptyDir
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("loras path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		format := checkpoint.DetectFormat(path)
		if format == checkpoint.FormatUnknown {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Entry{
			Name:    e.Name(),
			Path:    path,
			Format:  format.String(),
			Size:    info.Size(),
			Sidecar: fileExists(lora.SidecarPath(path)),
		})
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Resolve maps a bare file name to its path inside dir. Names that would
// escape dir or that carry an unknown extension are rejected.
func Resolve(dir, name string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrEmptyDir
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(dir, name)
	if checkpoint.DetectFormat(path) == checkpoint.FormatUnknown {
		return "", fmt.Errorf("%w: %q has no supported extension", ErrInvalidName, name)
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidName, name)
	}
	return path, nil
}

// FormatSize renders a byte count for tables.
func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
