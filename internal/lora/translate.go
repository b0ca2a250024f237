package lora

import (
	"slices"
	"strings"

	"github.com/samcharles93/lorakit/internal/checkpoint"
)

// Translate rewrites w into the canonical diffusion-model naming scheme.
// Tensor values are carried over untouched. Every emitted down weight gets a
// sibling ".alpha" scalar holding alpha; an up weight without a down weight
// gets none. The result is empty when nothing in w is translatable.
func Translate(w checkpoint.Weights, alpha float64) checkpoint.Weights {
	d := DetectDialect(w)
	out := make(checkpoint.Weights)
	// Sorted iteration makes collisions (e.g. "x.lora_A" and
	// "x.lora_A.default.weight") resolve the same way every run.
	for _, key := range w.Keys() {
		canonical, ok := TranslateKey(d, key)
		if !ok {
			continue
		}
		out[canonical] = w[key]
		if base, isDown := strings.CutSuffix(canonical, DownSuffix); isDown {
			out[base+AlphaSuffix] = checkpoint.Scalar(float32(alpha))
		}
	}
	return out
}

// Pair summarises the canonical entries sharing one submodule path.
type Pair struct {
	Path  string `json:"path"`
	Down  bool   `json:"down"`
	Up    bool   `json:"up"`
	Alpha bool   `json:"alpha"`
	// Rank is the first dimension of the down weight, when present.
	Rank int `json:"rank,omitempty"`
}

// Complete reports whether the pair has down, up and alpha entries.
func (p Pair) Complete() bool { return p.Down && p.Up && p.Alpha }

// Pairs groups a canonical mapping by submodule path, sorted by path.
func Pairs(w checkpoint.Weights) []Pair {
	byPath := map[string]*Pair{}
	get := func(path string) *Pair {
		p, ok := byPath[path]
		if !ok {
			p = &Pair{Path: path}
			byPath[path] = p
		}
		return p
	}

	for key, t := range w {
		switch {
		case strings.HasSuffix(key, DownSuffix):
			p := get(strings.TrimSuffix(key, DownSuffix))
			p.Down = true
			p.Rank = t.Rank()
		case strings.HasSuffix(key, UpSuffix):
			get(strings.TrimSuffix(key, UpSuffix)).Up = true
		case strings.HasSuffix(key, AlphaSuffix):
			get(strings.TrimSuffix(key, AlphaSuffix)).Alpha = true
		}
	}

	out := make([]Pair, 0, len(byPath))
	for _, p := range byPath {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Pair) int { return strings.Compare(a.Path, b.Path) })
	return out
}
