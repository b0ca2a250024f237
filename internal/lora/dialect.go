package lora

import (
	"strings"

	"github.com/samcharles93/lorakit/internal/checkpoint"
)

const (
	// AdapterMarker appears in every low-rank parameter name of both dialects.
	AdapterMarker = "lora_"
	// TargetPrefix roots every canonical key in the diffusion model.
	TargetPrefix = "diffusion_model."

	DownSuffix  = ".lora.down.weight"
	UpSuffix    = ".lora.up.weight"
	AlphaSuffix = ".alpha"
)

// Dialect is a key naming convention used by a LoRA training tool.
type Dialect int

const (
	// DialectDiffusers keys are rooted at "transformer." and end in
	// ".lora_A.weight" / ".lora_B.weight".
	DialectDiffusers Dialect = iota
	// DialectPEFT keys are unrooted, end in ".lora_A" / ".lora_B" and may
	// carry PEFT's ".default.weight" adapter-name infix.
	DialectPEFT
)

func (d Dialect) String() string {
	switch d {
	case DialectDiffusers:
		return "diffusers"
	case DialectPEFT:
		return "peft"
	default:
		return "unknown"
	}
}

func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type suffixRule struct {
	from string
	to   string
}

type dialectRules struct {
	stripPrefix string
	stripInfix  string
	suffixes    []suffixRule
}

const diffusersRoot = "transformer."

var rulesByDialect = map[Dialect]dialectRules{
	DialectDiffusers: {
		stripPrefix: diffusersRoot,
		suffixes: []suffixRule{
			{from: ".lora_A.weight", to: DownSuffix},
			{from: ".lora_B.weight", to: UpSuffix},
		},
	},
	DialectPEFT: {
		stripInfix: ".default.weight",
		suffixes: []suffixRule{
			{from: ".lora_A", to: DownSuffix},
			{from: ".lora_B", to: UpSuffix},
		},
	},
}

// DetectDialect classifies the whole key set once: any key rooted at
// "transformer." makes it DialectDiffusers.
func DetectDialect(w checkpoint.Weights) Dialect {
	for key := range w {
		if strings.HasPrefix(key, diffusersRoot) {
			return DialectDiffusers
		}
	}
	return DialectPEFT
}

// TranslateKey rewrites one raw key into its canonical name. It reports false
// for keys that are not low-rank parameters or whose suffix d does not know.
func TranslateKey(d Dialect, key string) (string, bool) {
	if !strings.Contains(key, AdapterMarker) {
		return "", false
	}
	rules, ok := rulesByDialect[d]
	if !ok {
		return "", false
	}

	k := key
	if rules.stripPrefix != "" {
		k = strings.TrimPrefix(k, rules.stripPrefix)
	}
	if rules.stripInfix != "" {
		k = strings.ReplaceAll(k, rules.stripInfix, "")
	}
	for _, r := range rules.suffixes {
		if base, ok := strings.CutSuffix(k, r.from); ok {
			return TargetPrefix + base + r.to, true
		}
	}
	return "", false
}
