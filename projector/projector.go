// Package projector maps vision backbone hidden states into the language
// model's embedding space.
package projector

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/fs/checkpoint"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/ml/nn"
)

var (
	ErrMissingTensor    = errors.New("projector: missing tensor")
	ErrUnexpectedTensor = errors.New("projector: unexpected tensor")
	ErrShapeMismatch    = errors.New("projector: shape mismatch")
	ErrSequenceLength   = errors.New("projector: unexpected sequence length")
)

var tensorNames = []string{
	"linear1.weight",
	"linear1.bias",
	"linear2.weight",
	"linear2.bias",
}

type Options struct {
	// VisionDim is the vision hidden size. Zero infers it from linear1.weight.
	VisionDim int
	// TextDim is the language model hidden size. Zero infers it from linear1.weight.
	TextDim int
	// ImageTokens is the expected number of image positions. Zero disables the check.
	ImageTokens int
}

// Projector is linear1 → GELU → linear2. It holds no per-request state and is
// safe for concurrent use once constructed.
type Projector struct {
	Linear1 *nn.Linear
	Linear2 *nn.Linear

	imageTokens int
}

// Load reads the projector weights from a checkpoint file.
func Load(path string, opts Options) (*Projector, error) {
	ts, err := checkpoint.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load projector %s: %w", path, err)
	}

	p, err := New(ts, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("projector loaded", "path", path, "vision_dim", p.VisionDim(), "text_dim", p.TextDim(), "image_tokens", p.imageTokens)
	return p, nil
}

// New builds a projector from named tensors. Every expected tensor must be
// present and nothing else may be.
func New(ts map[string]checkpoint.Tensor, opts Options) (*Projector, error) {
	for _, name := range checkpoint.Names(ts) {
		if !slices.Contains(tensorNames, name) {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedTensor, name)
		}
	}

	dense := make(map[string]*tensor.Dense, len(tensorNames))
	for _, name := range tensorNames {
		t, ok := ts[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
		}

		d, err := t.Dense()
		if err != nil {
			return nil, err
		}

		slog.Debug("projector tensor", "tensor", t)
		dense[name] = d
	}

	w1 := dense["linear1.weight"]
	if w1.Dims() != 2 {
		return nil, fmt.Errorf("%w: linear1.weight %v", ErrShapeMismatch, w1.Shape())
	}

	text, vision := w1.Shape()[0], w1.Shape()[1]
	if opts.VisionDim != 0 && opts.VisionDim != vision {
		return nil, fmt.Errorf("%w: linear1.weight takes %d inputs, vision hidden size is %d", ErrShapeMismatch, vision, opts.VisionDim)
	}

	if opts.TextDim != 0 && opts.TextDim != text {
		return nil, fmt.Errorf("%w: linear1.weight has %d outputs, text hidden size is %d", ErrShapeMismatch, text, opts.TextDim)
	}

	expect := map[string][]int{
		"linear1.bias":   {text},
		"linear2.weight": {text, text},
		"linear2.bias":   {text},
	}

	for name, shape := range expect {
		if got := []int(dense[name].Shape()); !slices.Equal(got, shape) {
			return nil, fmt.Errorf("%w: %s is %v, want %v", ErrShapeMismatch, name, got, shape)
		}
	}

	return &Projector{
		Linear1:     &nn.Linear{Weight: w1, Bias: dense["linear1.bias"]},
		Linear2:     &nn.Linear{Weight: dense["linear2.weight"], Bias: dense["linear2.bias"]},
		imageTokens: opts.ImageTokens,
	}, nil
}

func (p *Projector) VisionDim() int { return p.Linear1.In() }

func (p *Projector) TextDim() int { return p.Linear2.Out() }

// Forward projects features of shape (L, VisionDim) to (L, TextDim). Every
// position is projected independently.
func (p *Projector) Forward(features *tensor.Dense) (*tensor.Dense, error) {
	if features == nil || features.Dims() != 2 {
		var shape tensor.Shape
		if features != nil {
			shape = features.Shape()
		}
		return nil, fmt.Errorf("%w: features must be (L, %d), got %v", ErrShapeMismatch, p.VisionDim(), shape)
	}

	if ml.Dim(features) != p.VisionDim() {
		return nil, fmt.Errorf("%w: features have width %d, want %d", ErrShapeMismatch, ml.Dim(features), p.VisionDim())
	}

	if p.imageTokens > 0 && ml.Rows(features) != p.imageTokens {
		return nil, fmt.Errorf("%w: got %d positions, want %d", ErrSequenceLength, ml.Rows(features), p.imageTokens)
	}

	h, err := p.Linear1.Forward(features)
	if err != nil {
		return nil, err
	}

	if h, err = nn.GELU(h); err != nil {
		return nil, err
	}

	return p.Linear2.Forward(h)
}
