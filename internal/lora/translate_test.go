package lora

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/lorakit/internal/checkpoint"
)

func alphaOf(t *testing.T, w checkpoint.Weights, key string) float32 {
	t.Helper()
	tensor, ok := w[key]
	if !ok {
		t.Fatalf("missing %s", key)
	}
	if len(tensor.Shape) != 0 {
		t.Fatalf("%s: expected zero-dim tensor, got shape %v", key, tensor.Shape)
	}
	v, err := tensor.Float32s()
	if err != nil {
		t.Fatalf("%s: %v", key, err)
	}
	return v[0]
}

var canonicalAttn = []string{
	"diffusion_model.blocks.0.attn.alpha",
	"diffusion_model.blocks.0.attn.lora.down.weight",
	"diffusion_model.blocks.0.attn.lora.up.weight",
}

func TestDetectDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys []string
		want Dialect
	}{
		{"diffusers", []string{"transformer.blocks.0.attn.lora_A.weight"}, DialectDiffusers},
		{"one rooted key is enough", []string{"blocks.0.lora_A", "transformer.x"}, DialectDiffusers},
		{"peft", []string{"blocks.0.attn.lora_A.default.weight"}, DialectPEFT},
		{"root not at start", []string{"base.transformer.blocks.0.lora_A"}, DialectPEFT},
		{"empty", nil, DialectPEFT},
	}
	for _, tc := range tests {
		w := checkpoint.Weights{}
		for _, k := range tc.keys {
			w[k] = matrix(1, 1)
		}
		if got := DetectDialect(w); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestTranslateDiffusers(t *testing.T) {
	t.Parallel()
	down, up := matrix(4, 8), matrix(8, 4)
	out := Translate(checkpoint.Weights{
		"transformer.blocks.0.attn.lora_A.weight": down,
		"transformer.blocks.0.attn.lora_B.weight": up,
	}, 32)

	if diff := cmp.Diff(canonicalAttn, out.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if got := alphaOf(t, out, "diffusion_model.blocks.0.attn.alpha"); got != 32 {
		t.Fatalf("expected alpha 32, got %v", got)
	}
	if diff := cmp.Diff(down, out["diffusion_model.blocks.0.attn.lora.down.weight"]); diff != "" {
		t.Fatalf("down tensor modified (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(up, out["diffusion_model.blocks.0.attn.lora.up.weight"]); diff != "" {
		t.Fatalf("up tensor modified (-want +got):\n%s", diff)
	}
}

// The merger looks up "<prefix>.alpha" next to the lora.down/lora.up pair.
func TestTranslateAlphaKeyIsSibling(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"transformer.blocks.0.attn.lora_A.weight": matrix(4, 8),
		"transformer.blocks.0.attn.lora_B.weight": matrix(8, 4),
	}, 8)

	if _, ok := out["diffusion_model.blocks.0.attn.alpha"]; !ok {
		t.Fatalf("missing diffusion_model.blocks.0.attn.alpha in %v", out.Keys())
	}
	if _, ok := out["diffusion_model.blocks.0.attn.lora.alpha"]; ok {
		t.Fatal("alpha must not be nested under .lora")
	}
}

func TestTranslatePEFT(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"blocks.0.attn.lora_A.default.weight": matrix(4, 8),
		"blocks.0.attn.lora_B.default.weight": matrix(8, 4),
	}, 7.5)

	if diff := cmp.Diff(canonicalAttn, out.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if got := alphaOf(t, out, "diffusion_model.blocks.0.attn.alpha"); got != 7.5 {
		t.Fatalf("expected alpha 7.5, got %v", got)
	}
}

func TestTranslatePEFTWithoutInfix(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"blocks.1.ff.lora_A": matrix(2, 2),
		"blocks.1.ff.lora_B": matrix(2, 2),
	}, 1)
	want := []string{
		"diffusion_model.blocks.1.ff.alpha",
		"diffusion_model.blocks.1.ff.lora.down.weight",
		"diffusion_model.blocks.1.ff.lora.up.weight",
	}
	if diff := cmp.Diff(want, out.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateDropsNonAdapterKeys(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"transformer.blocks.0.attn.lora_A.weight": matrix(4, 8),
		"transformer.blocks.0.attn.lora_B.weight": matrix(8, 4),
		"transformer.blocks.0.attn.bias":          matrix(1, 8),
		"blocks.0.attn.bias":                      matrix(1, 8),
		// dialect-specific extras with the marker but no known suffix
		"transformer.blocks.0.attn.lora_magnitude_vector": matrix(1, 8),
		"transformer.blocks.0.attn.lora_A.default.weight": matrix(4, 8),
	}, 4)

	if diff := cmp.Diff(canonicalAttn, out.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateUnrecognizedIsEmpty(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"lora_unet_down_blocks_0.lora_down.weight": matrix(4, 4),
		"lora_unet_down_blocks_0.alpha":            checkpoint.Scalar(4),
		"blocks.0.attn.bias":                       matrix(1, 8),
	}, 16)
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out.Keys())
	}
}

func TestTranslateCanonicalInputIsEmpty(t *testing.T) {
	t.Parallel()
	first := Translate(checkpoint.Weights{
		"transformer.blocks.0.attn.lora_A.weight": matrix(4, 8),
		"transformer.blocks.0.attn.lora_B.weight": matrix(8, 4),
	}, 16)
	if len(first) == 0 {
		t.Fatal("first pass produced nothing")
	}
	if second := Translate(first, 16); len(second) != 0 {
		t.Fatalf("expected re-translation to be empty, got %v", second.Keys())
	}
}

func TestTranslateOrphanUpGetsNoAlpha(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"transformer.blocks.3.attn.lora_B.weight": matrix(8, 4),
	}, 16)
	want := []string{"diffusion_model.blocks.3.attn.lora.up.weight"}
	if diff := cmp.Diff(want, out.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	pairs := Pairs(out)
	if len(pairs) != 1 || pairs[0].Complete() || pairs[0].Down || pairs[0].Alpha {
		t.Fatalf("expected incomplete up-only pair, got %+v", pairs)
	}
}

func TestTranslateKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d      Dialect
		in     string
		want   string
		wantOK bool
	}{
		{DialectDiffusers, "transformer.a.lora_A.weight", "diffusion_model.a.lora.down.weight", true},
		{DialectDiffusers, "a.lora_B.weight", "diffusion_model.a.lora.up.weight", true},
		{DialectDiffusers, "transformer.a.lora_A", "", false},
		{DialectPEFT, "a.lora_B.default.weight", "diffusion_model.a.lora.up.weight", true},
		{DialectPEFT, "a.lora_A.weight", "", false},
		{DialectPEFT, "a.weight", "", false},
		{Dialect(99), "a.lora_A", "", false},
	}
	for _, tc := range tests {
		got, ok := TranslateKey(tc.d, tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("TranslateKey(%s, %q) = %q, %v; want %q, %v", tc.d, tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestPairs(t *testing.T) {
	t.Parallel()
	out := Translate(checkpoint.Weights{
		"blocks.1.attn.lora_A": matrix(4, 8),
		"blocks.1.attn.lora_B": matrix(8, 4),
		"blocks.0.ff.lora_A":   matrix(2, 8),
	}, 8)

	want := []Pair{
		{Path: "diffusion_model.blocks.0.ff", Down: true, Alpha: true, Rank: 2},
		{Path: "diffusion_model.blocks.1.attn", Down: true, Up: true, Alpha: true, Rank: 4},
	}
	if diff := cmp.Diff(want, Pairs(out)); diff != "" {
		t.Fatalf("pairs mismatch (-want +got):\n%s", diff)
	}
}
