package lora

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/lorakit/internal/checkpoint"
	"github.com/samcharles93/lorakit/internal/logger"
)

// MaxStrength bounds the absolute value of both strength multipliers.
const MaxStrength = 10.0

// MaxAlpha caps a manual alpha override.
const MaxAlpha = 128.0

var (
	ErrInvalidRequest = errors.New("lora: invalid request")
	// ErrNoAdapterKeys means translation produced an empty mapping.
	ErrNoAdapterKeys = errors.New("lora: no translatable adapter keys")
)

// Request describes one adapter load.
type Request struct {
	Path string
	// Alpha is a manual override; zero lets the resolver decide.
	Alpha         float64
	StrengthModel float64
	StrengthClip  float64
}

func (r Request) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	if math.IsNaN(r.Alpha) || math.IsInf(r.Alpha, 0) {
		return fmt.Errorf("%w: alpha must be finite", ErrInvalidRequest)
	}
	if r.Alpha > MaxAlpha {
		return fmt.Errorf("%w: alpha %v above %g", ErrInvalidRequest, r.Alpha, MaxAlpha)
	}
	strengths := []struct {
		name  string
		value float64
	}{
		{"strength_model", r.StrengthModel},
		{"strength_clip", r.StrengthClip},
	}
	for _, s := range strengths {
		if math.IsNaN(s.value) || s.value < -MaxStrength || s.value > MaxStrength {
			return fmt.Errorf("%w: %s %v outside [-%g, %g]", ErrInvalidRequest, s.name, s.value, MaxStrength, MaxStrength)
		}
	}
	return nil
}

// Inert reports whether the adapter would have no effect on either side.
func (r Request) Inert() bool {
	return r.StrengthModel == 0 && r.StrengthClip == 0
}

// Source loads a checkpoint's tensors and metadata.
type Source interface {
	MetadataReader
	LoadWeights(path string) (checkpoint.Weights, error)
}

// Applier merges a canonical adapter into model and text-encoder handles,
// returning the updated handles.
type Applier[M, C any] interface {
	ApplyLoRA(ctx context.Context, model M, clip C, w checkpoint.Weights, strengthModel, strengthClip float64) (M, C, error)
}

// Report is the outcome of preparing one adapter.
type Report struct {
	Path    string             `json:"path"`
	Alpha   Alpha              `json:"alpha"`
	Dialect Dialect            `json:"dialect"`
	RawKeys int                `json:"raw_keys"`
	Output  checkpoint.Weights `json:"-"`
}

// Empty reports whether translation produced no usable keys.
func (r *Report) Empty() bool { return len(r.Output) == 0 }

// Pairs groups the translated output by submodule path.
func (r *Report) Pairs() []Pair { return Pairs(r.Output) }

// Err returns ErrNoAdapterKeys (wrapped with the path) for empty reports.
func (r *Report) Err() error {
	if r.Empty() {
		return fmt.Errorf("%s: %w", r.Path, ErrNoAdapterKeys)
	}
	return nil
}

// Pipeline ties the checkpoint source, alpha resolver and translator
// together. It holds no per-load state and may be shared.
type Pipeline struct {
	Source Source
	Log    logger.Logger
}

// Prepare loads req.Path, resolves alpha and translates the keys. Failure to
// read the checkpoint's tensors is returned; every other problem degrades.
func (p *Pipeline) Prepare(ctx context.Context, req Request) (*Report, error) {
	log := p.logger(ctx).With("lora", req.Path)

	raw, err := p.Source.LoadWeights(req.Path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.Path, err)
	}

	resolver := Resolver{Metadata: p.Source, Log: log}
	alpha := resolver.Resolve(ResolveInput{Path: req.Path, Manual: req.Alpha, Weights: raw})

	dialect := DetectDialect(raw)
	log.Info("dialect detected", "dialect", dialect.String(), "keys", len(raw))

	out := Translate(raw, alpha.Value)
	log.Debug("translated adapter", "alpha", alpha.Value, "canonical_keys", len(out))

	return &Report{
		Path:    req.Path,
		Alpha:   alpha,
		Dialect: dialect,
		RawKeys: len(raw),
		Output:  out,
	}, nil
}

// Apply runs one adapter load against applier. When both strengths are zero
// the file is never read and the handles come back as given. An empty
// translation is logged and also returns the original handles; the report's
// Err method exposes that condition.
func Apply[M, C any](ctx context.Context, p *Pipeline, applier Applier[M, C], model M, clip C, req Request) (M, C, *Report, error) {
	if err := req.Validate(); err != nil {
		return model, clip, nil, err
	}
	log := p.logger(ctx)
	if req.Inert() {
		log.Debug("both strengths are zero, skipping adapter", "lora", req.Path)
		return model, clip, nil, nil
	}

	rep, err := p.Prepare(ctx, req)
	if err != nil {
		return model, clip, nil, err
	}
	if rep.Empty() {
		log.Warn("key conversion produced no adapter keys; format unrecognized, adapter not applied",
			"lora", req.Path, "dialect", rep.Dialect.String(), "raw_keys", rep.RawKeys)
		return model, clip, rep, nil
	}

	m, c, err := applier.ApplyLoRA(ctx, model, clip, rep.Output, req.StrengthModel, req.StrengthClip)
	if err != nil {
		return model, clip, rep, fmt.Errorf("apply %s: %w", req.Path, err)
	}
	log.Info("applied adapter", "lora", req.Path, "alpha", rep.Alpha.Value,
		"strength_model", req.StrengthModel, "strength_clip", req.StrengthClip)
	return m, c, rep, nil
}

func (p *Pipeline) logger(ctx context.Context) logger.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logger.FromContext(ctx)
}
