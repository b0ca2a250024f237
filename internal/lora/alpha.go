package lora

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/logger"
)

// DefaultAlpha is used when no evidence about alpha is found.
const DefaultAlpha = 16.0

// MetadataAlphaKeys are checked in order. The first is written by kohya-ss
// sd-scripts, the second by PEFT-derived exporters.
var MetadataAlphaKeys = []string{"ss_lora_alpha", "lora_alpha"}

// Down-projection suffixes whose first dimension is the adapter rank.
var rankSuffixes = []string{".lora_A.weight", ".lora_A.default.weight", ".lora.down.weight"}

// AlphaSource records which evidence produced an alpha value.
type AlphaSource int

const (
	SourceManual AlphaSource = iota + 1
	SourceMetadata
	SourceRank
	SourceSidecar
	SourceDefault
)

func (s AlphaSource) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceMetadata:
		return "metadata"
	case SourceRank:
		return "rank"
	case SourceSidecar:
		return "sidecar"
	case SourceDefault:
		return "default"
	default:
		return "unknown"
	}
}

func (s AlphaSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AlphaSource) UnmarshalText(b []byte) error {
	for v := SourceManual; v <= SourceDefault; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown alpha source %q", b)
}

// Alpha is a resolved adapter-wide alpha and where it came from.
type Alpha struct {
	Value  float64     `json:"value"`
	Source AlphaSource `json:"source"`
	// Detail names the metadata key, rank tensor or sidecar path used.
	Detail string `json:"detail,omitempty"`
}

type ResolveInput struct {
	Path string
	// Manual is the caller's override; zero means unset.
	Manual  float64
	Weights checkpoint.Weights
}

// MetadataReader reads the string metadata stored with a checkpoint.
type MetadataReader interface {
	ReadMetadata(path string) (checkpoint.Metadata, error)
}

// Resolver picks the alpha for an adapter. The zero value skips the
// metadata tier and logs nowhere.
type Resolver struct {
	Metadata MetadataReader
	Log      logger.Logger
}

type alphaTier func(ResolveInput) (Alpha, bool)

// Resolve never fails: each tier either yields a value or defers to the next,
// ending at DefaultAlpha.
func (r *Resolver) Resolve(in ResolveInput) Alpha {
	tiers := []alphaTier{
		manualAlpha,
		r.metadataAlpha,
		r.rankAlpha,
		r.sidecarAlpha,
	}
	for _, tier := range tiers {
		if a, ok := tier(in); ok {
			r.log().Info("alpha resolved", "alpha", a.Value, "source", a.Source.String(), "detail", a.Detail)
			return a
		}
	}
	r.log().Warn("could not determine alpha, using default", "alpha", DefaultAlpha)
	return Alpha{Value: DefaultAlpha, Source: SourceDefault}
}

func (r *Resolver) log() logger.Logger {
	if r.Log == nil {
		return logger.Discard()
	}
	return r.Log
}

func manualAlpha(in ResolveInput) (Alpha, bool) {
	if in.Manual > 0 && !math.IsInf(in.Manual, 0) {
		return Alpha{Value: in.Manual, Source: SourceManual}, true
	}
	return Alpha{}, false
}

func (r *Resolver) metadataAlpha(in ResolveInput) (Alpha, bool) {
	if r.Metadata == nil || in.Path == "" {
		return Alpha{}, false
	}
	meta, err := r.Metadata.ReadMetadata(in.Path)
	if err != nil {
		r.log().Debug("metadata unavailable", "path", in.Path, "err", err)
		return Alpha{}, false
	}
	for _, key := range MetadataAlphaKeys {
		raw, ok := meta[key]
		if !ok {
			continue
		}
		// Only the first key present is consulted.
		v, err := parseAlpha(raw)
		if err != nil {
			r.log().Debug("metadata alpha unparseable", "key", key, "value", raw, "err", err)
			return Alpha{}, false
		}
		return Alpha{Value: v, Source: SourceMetadata, Detail: key}, true
	}
	return Alpha{}, false
}

func (r *Resolver) rankAlpha(in ResolveInput) (Alpha, bool) {
	for _, key := range in.Weights.Keys() {
		if !hasAnySuffix(key, rankSuffixes) {
			continue
		}
		rank := in.Weights[key].Rank()
		if rank <= 0 {
			r.log().Debug("down projection has no rank dimension", "key", key)
			return Alpha{}, false
		}
		return Alpha{Value: float64(rank), Source: SourceRank, Detail: key}, true
	}
	return Alpha{}, false
}

func (r *Resolver) sidecarAlpha(in ResolveInput) (Alpha, bool) {
	if in.Path == "" {
		return Alpha{}, false
	}
	path := SidecarPath(in.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log().Debug("sidecar unreadable", "path", path, "err", err)
		}
		return Alpha{}, false
	}

	var cfg struct {
		LoraAlpha json.RawMessage `json:"lora_alpha"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		r.log().Debug("sidecar unparseable", "path", path, "err", err)
		return Alpha{}, false
	}
	raw := strings.TrimSpace(string(cfg.LoraAlpha))
	if raw == "" || raw == "null" {
		return Alpha{}, false
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	v, err := parseAlpha(raw)
	if err != nil {
		r.log().Debug("sidecar lora_alpha not numeric", "path", path, "value", raw)
		return Alpha{}, false
	}
	return Alpha{Value: v, Source: SourceSidecar, Detail: path}, true
}

// SidecarPath replaces path's extension with ".json".
func SidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
}

func parseAlpha(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("alpha %q is not a positive finite number", s)
	}
	return v, nil
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
