package main

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/inventory"
	"github.com/samcharles93/lorakit/internal/lora"
)

func sampleReport() *lora.Report {
	raw := checkpoint.Weights{
		"transformer.blocks.0.attn.lora_A.weight": {DType: "F32", Shape: []int{4, 8}, Data: make([]byte, 128)},
		"transformer.blocks.0.attn.lora_B.weight": {DType: "F32", Shape: []int{8, 4}, Data: make([]byte, 128)},
	}
	return &lora.Report{
		Path:    "/loras/style.safetensors",
		Alpha:   lora.Alpha{Value: 8, Source: lora.SourceMetadata, Detail: "ss_lora_alpha"},
		Dialect: lora.DialectDiffusers,
		RawKeys: len(raw),
		Output:  lora.Translate(raw, 8),
	}
}

func TestRenderReport(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	renderReport(&buf, sampleReport(), true)
	out := buf.String()

	for _, want := range []string{
		"Format:   safetensors",
		"Dialect:  diffusers",
		"Alpha:    8 (metadata: ss_lora_alpha)",
		"Keys:     2 raw, 3 canonical",
		"diffusion_model.blocks.0.attn",
		"diffusion_model.blocks.0.attn.lora.up.weight",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReportEmpty(t *testing.T) {
	t.Parallel()
	rep := &lora.Report{Path: "/loras/odd.pt", Alpha: lora.Alpha{Value: 16, Source: lora.SourceDefault}, Dialect: lora.DialectPEFT, RawKeys: 1}
	var buf bytes.Buffer
	renderReport(&buf, rep, false)
	if !strings.Contains(buf.String(), "warning: key conversion produced no adapter keys") {
		t.Fatalf("expected warning, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "MODULE") {
		t.Fatalf("did not expect a table for an empty report:\n%s", buf.String())
	}
}

func TestWriteReportJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeReportJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("writeReportJSON: %v", err)
	}
	var got struct {
		Path    string `json:"path"`
		Dialect string `json:"dialect"`
		Alpha   struct {
			Value  float64 `json:"value"`
			Source string  `json:"source"`
		} `json:"alpha"`
		Format        string      `json:"format"`
		CanonicalKeys []string    `json:"canonical_keys"`
		Pairs         []lora.Pair `json:"pairs"`
		Empty         bool        `json:"empty"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %s: %v", buf.String(), err)
	}
	if got.Dialect != "diffusers" || got.Alpha.Source != "metadata" || got.Format != "safetensors" || got.Empty {
		t.Fatalf("unexpected report: %+v", got)
	}
	if len(got.CanonicalKeys) != 3 || len(got.Pairs) != 1 || !got.Pairs[0].Complete() {
		t.Fatalf("unexpected keys: %+v", got)
	}
}

func TestRenderInventory(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	renderInventory(&buf, []inventory.Entry{
		{Name: "a.safetensors", Format: "safetensors", Size: 2048, Sidecar: true},
		{Name: "b.pt", Format: "torch", Size: 10},
	})
	out := buf.String()
	for _, want := range []string{"NAME", "a.safetensors", "2.0 KB", "json", "b.pt", "torch", "10 B"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
