// Package runner is a step-by-step generation loop over a language model
// that only exposes next-token logits.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/caption"
	"github.com/ollama/captioner/envconfig"
	"github.com/ollama/captioner/logutil"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/sample"
)

var ErrNoLogits = errors.New("runner: forward pass returned no logits")

// Forwarder runs a causal language model.
type Forwarder interface {
	EmbedTokens(ids []int32) (*tensor.Dense, error)

	// Logits returns the next token logits for the last position of embeds.
	Logits(ctx context.Context, embeds *tensor.Dense, mask []int32) ([]float32, error)

	HiddenSize() int
}

// Generator samples tokens one at a time until EOS or MaxNewTokens.
type Generator struct {
	Forwarder Forwarder
	Sampler   sample.Sampler

	BOSToken, EOSToken int32

	// MaxNewTokens bounds the continuation. Zero uses CAPTION_MAX_NEW_TOKENS.
	MaxNewTokens int
}

var _ caption.LanguageModel = (*Generator)(nil)

// NewGenerator returns a Generator configured from the environment.
func NewGenerator(f Forwarder, bos, eos int32) *Generator {
	return &Generator{
		Forwarder:    f,
		Sampler:      sample.New(envconfig.Temperature, 0, 0, 0, nil),
		BOSToken:     bos,
		EOSToken:     eos,
		MaxNewTokens: envconfig.MaxNewTokens,
	}
}

func (g *Generator) EmbedTokens(ids []int32) (*tensor.Dense, error) {
	return g.Forwarder.EmbedTokens(ids)
}

func (g *Generator) HiddenSize() int { return g.Forwarder.HiddenSize() }

func (g *Generator) BOS() int32 { return g.BOSToken }

func (g *Generator) EOS() int32 { return g.EOSToken }

// Generate returns ids followed by the sampled tokens. The EOS token, when
// sampled, is the last element. The inputs are not modified.
func (g *Generator) Generate(ctx context.Context, embeds *tensor.Dense, ids, mask []int32) ([]int32, error) {
	if ml.Rows(embeds) != len(ids) || len(ids) != len(mask) {
		return nil, fmt.Errorf("%w: %d embeddings, %d ids, %d mask", ml.ErrShape, ml.Rows(embeds), len(ids), len(mask))
	}

	sampler := g.Sampler
	if sampler == nil {
		sampler = sample.Greedy()
	}

	limit := g.MaxNewTokens
	if limit <= 0 {
		limit = envconfig.MaxNewTokens
	}

	out := slices.Clone(ids)
	mask = slices.Clone(mask)
	for range limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logits, err := g.Forwarder.Logits(ctx, embeds, mask)
		if err != nil {
			return nil, err
		}

		if len(logits) == 0 {
			return nil, ErrNoLogits
		}

		next, err := sampler.Sample(logits)
		if err != nil {
			return nil, err
		}

		out = append(out, next)
		if next == g.EOSToken {
			break
		}

		e, err := g.Forwarder.EmbedTokens([]int32{next})
		if err != nil {
			return nil, err
		}

		if embeds, err = ml.Concat(embeds, e); err != nil {
			return nil, err
		}
		mask = append(mask, 1)
	}

	slog.Debug("generation finished", "prompt", len(ids), "new", len(out)-len(ids), "limit", limit)
	logutil.Trace("generated ids", "ids", logutil.IDs(out[len(ids):]))
	return out, nil
}
