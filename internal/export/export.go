// Package export writes canonical adapter mappings back to disk.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/logger"
	"github.com/samcharles93/lorakit/internal/lora"
	"github.com/samcharles93/lorakit/internal/safetensors"
	"github.com/samcharles93/lorakit/internal/version"
)

// Metadata keys recorded in exported files.
const (
	KeyStrengthModel = "lorakit_strength_model"
	KeyStrengthClip  = "lorakit_strength_clip"
	KeyVersion       = "lorakit_version"
	// KeyAlpha reuses the kohya key so a re-import resolves the same alpha.
	KeyAlpha = "ss_lora_alpha"
)

var ErrNoPath = errors.New("export: target path is empty")

// Target is a file destination standing in for a model or text-encoder
// handle.
type Target struct {
	Path     string
	Strength float64
	Applied  bool
}

// Writer is a lora.Applier that writes the canonical mapping as a
// safetensors file at the model target's path.
type Writer struct {
	// DType converts every tensor before writing; empty keeps the source
	// dtype.
	DType string
	Log   logger.Logger
}

var _ lora.Applier[Target, Target] = (*Writer)(nil)

// ApplyLoRA implements lora.Applier. The canonical keys only address the
// diffusion model, so the clip target records its strength without a file.
func (w *Writer) ApplyLoRA(ctx context.Context, model, clip Target, weights checkpoint.Weights, strengthModel, strengthClip float64) (Target, Target, error) {
	if strings.TrimSpace(model.Path) == "" {
		return model, clip, ErrNoPath
	}
	log := w.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}

	entries := make(map[string]safetensors.Entry, len(weights))
	for name, t := range weights {
		if w.DType != "" && !strings.HasSuffix(name, lora.AlphaSuffix) {
			converted, err := t.Convert(w.DType)
			if err != nil {
				return model, clip, fmt.Errorf("convert %s: %w", name, err)
			}
			t = converted
		}
		entries[name] = safetensors.Entry{DType: t.DType, Shape: t.Shape, Data: t.Data}
	}

	meta := map[string]string{
		KeyStrengthModel: formatFloat(strengthModel),
		KeyStrengthClip:  formatFloat(strengthClip),
		KeyVersion:       version.String(),
	}
	if alpha, ok := firstAlpha(weights); ok {
		meta[KeyAlpha] = formatFloat(float64(alpha))
	}

	if err := writeFile(model.Path, entries, meta); err != nil {
		return model, clip, err
	}
	log.Info("wrote adapter", "path", model.Path, "tensors", len(entries), "dtype", w.DType)

	model.Strength, model.Applied = strengthModel, true
	clip.Strength, clip.Applied = strengthClip, true
	return model, clip, nil
}

// writeFile writes through a temporary sibling and renames it into place so
// a failed export never leaves a truncated file at path.
func writeFile(path string, entries map[string]safetensors.Entry, meta map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	bw := bufio.NewWriter(tmp)
	if err := safetensors.Write(bw, entries, meta); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// firstAlpha returns the alpha scalar of the first submodule in key order.
func firstAlpha(w checkpoint.Weights) (float32, bool) {
	for _, key := range w.Keys() {
		if !strings.HasSuffix(key, lora.AlphaSuffix) {
			continue
		}
		v, err := w[key].Float32s()
		if err != nil || len(v) != 1 {
			continue
		}
		return v[0], true
	}
	return 0, false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
