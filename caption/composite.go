package caption

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/logutil"
	"github.com/ollama/captioner/ml"
)

type SegmentKind int

const (
	SegmentBOS SegmentKind = iota
	SegmentText
	SegmentImage
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentBOS:
		return "bos"
	case SegmentText:
		return "text"
	case SegmentImage:
		return "image"
	default:
		return fmt.Sprintf("SegmentKind(%d)", int(k))
	}
}

type Segment struct {
	Kind   SegmentKind
	Offset int
	Length int
}

// Composite is one request's model input. Embeddings, IDs and AttentionMask
// always have PrefixLength positions.
type Composite struct {
	Embeddings    *tensor.Dense
	IDs           []int32
	AttentionMask []int32
	PrefixLength  int
	Segments      []Segment
}

// Image returns the segment holding the image embeddings.
func (c Composite) Image() (Segment, bool) {
	for _, s := range c.Segments {
		if s.Kind == SegmentImage {
			return s, true
		}
	}
	return Segment{}, false
}

func (c Composite) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("prefix_length", c.PrefixLength),
		slog.Any("segments", c.Segments),
	)
}

// compositeBuilder appends blocks in order and keeps the embedding rows and
// ids in step.
type compositeBuilder struct {
	model LanguageModel

	blocks   []*tensor.Dense
	ids      []int32
	segments []Segment
}

func (b *compositeBuilder) add(kind SegmentKind, block *tensor.Dense, ids []int32) error {
	if ml.Rows(block) != len(ids) {
		return fmt.Errorf("%s block has %d embeddings for %d ids", kind, ml.Rows(block), len(ids))
	}

	b.segments = append(b.segments, Segment{Kind: kind, Offset: len(b.ids), Length: len(ids)})
	b.blocks = append(b.blocks, block)
	b.ids = append(b.ids, ids...)
	return nil
}

func (b *compositeBuilder) tokens(kind SegmentKind, ids []int32) error {
	if len(ids) == 0 {
		return nil
	}

	block, err := b.model.EmbedTokens(ids)
	if err != nil {
		return fmt.Errorf("embed %s tokens: %w", kind, err)
	}

	return b.add(kind, block, slices.Clone(ids))
}

func (b *compositeBuilder) bos() error {
	return b.tokens(SegmentBOS, []int32{b.model.BOS()})
}

func (b *compositeBuilder) text(tok Tokenizer, s string) error {
	ids, err := tok.Encode(s, true)
	if err != nil {
		return fmt.Errorf("tokenize prompt: %w", err)
	}

	return b.tokens(SegmentText, ids)
}

// image adds the projected block with a zero placeholder id per position.
func (b *compositeBuilder) image(block *tensor.Dense) error {
	return b.add(SegmentImage, block, make([]int32, ml.Rows(block)))
}

func (b *compositeBuilder) build() (Composite, error) {
	embeds, err := ml.Concat(b.blocks...)
	if err != nil {
		return Composite{}, err
	}

	if ml.Rows(embeds) != len(b.ids) {
		return Composite{}, fmt.Errorf("composite has %d embeddings for %d ids", ml.Rows(embeds), len(b.ids))
	}

	mask := make([]int32, len(b.ids))
	for i := range mask {
		mask[i] = 1
	}

	c := Composite{
		Embeddings:    embeds,
		IDs:           b.ids,
		AttentionMask: mask,
		PrefixLength:  len(b.ids),
		Segments:      b.segments,
	}

	slog.Debug("assembled prompt", "composite", c)
	logutil.Trace("prompt ids", "ids", logutil.IDs(c.IDs))
	return c, nil
}
