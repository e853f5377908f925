// Package caption splices projected image embeddings into a text prompt for
// a causal language model and recovers the caption from what it generates.
package caption

import (
	"context"
	"errors"

	"github.com/pdevine/tensor"
)

var (
	ErrNoSplitPoint      = errors.New("prompt has neither an {image} marker nor a user header")
	ErrDimensionMismatch = errors.New("vision and language hidden sizes do not match the projector")
	ErrBatchSize         = errors.New("exactly one image per request is supported")
)

// VisionEncoder is a frozen vision backbone.
type VisionEncoder interface {
	// HiddenStates returns the output of every layer for a (1, C, H, W) pixel
	// tensor. Each state is (L, HiddenSize) or (1, L, HiddenSize).
	HiddenStates(ctx context.Context, pixels *tensor.Dense) ([]*tensor.Dense, error)
	HiddenSize() int
}

// LanguageModel is the causal model captions are generated with.
type LanguageModel interface {
	// EmbedTokens looks ids up in the input embedding table and returns a
	// (len(ids), HiddenSize) tensor.
	EmbedTokens(ids []int32) (*tensor.Dense, error)

	// Generate continues the sequence described by embeds, ids and mask and
	// returns the full id sequence, prompt positions included.
	Generate(ctx context.Context, embeds *tensor.Dense, ids, mask []int32) ([]int32, error)

	HiddenSize() int
	BOS() int32
	EOS() int32
}

type Tokenizer interface {
	Encode(s string, addSpecial bool) ([]int32, error)
	Decode(ids []int32, skipSpecial bool) (string, error)
}

// Request carries the per caption settings.
type Request struct {
	// ImagePrompt is the prompt template. Instruct prompts may place the
	// image with an {image} marker.
	ImagePrompt string

	// CaptionStart is the text every caption is primed to begin with.
	CaptionStart string

	RemoveTagSeparators bool
	TagSeparator        string
}
