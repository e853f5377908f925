package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/envconfig"
	"github.com/ollama/captioner/imageproc"
	"github.com/ollama/captioner/logutil"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/projector"
)

// ImageProcessor turns an encoded image into a (1, C, H, W) pixel tensor.
type ImageProcessor interface {
	Process(data []byte) (*tensor.Dense, error)
}

type Config struct {
	Vision    VisionEncoder
	Model     LanguageModel
	Tokenizer Tokenizer
	Projector *projector.Projector

	// Format selects the prompt layout when Assembler is nil.
	Format    string
	Assembler PromptAssembler

	// VisionLayer indexes the vision hidden states, negative values count
	// from the end. Zero uses CAPTION_VISION_LAYER, the second to last layer
	// by default.
	VisionLayer int

	// Processor decodes images for CaptionImage. Nil uses the SigLIP
	// preprocessing of imageproc.NewProcessor.
	Processor ImageProcessor

	PostprocessPrompt func(string) string
	PostprocessText   func(string) string
}

// Adapter runs image captioning with a frozen vision encoder, projector and
// language model. It keeps no per-request state and may be shared between
// goroutines.
type Adapter struct {
	vision      VisionEncoder
	model       LanguageModel
	projector   *projector.Projector
	assembler   PromptAssembler
	extractor   *Extractor
	processor   ImageProcessor
	visionLayer int
}

func New(c Config) (*Adapter, error) {
	switch {
	case c.Vision == nil:
		return nil, errors.New("caption: no vision encoder")
	case c.Model == nil:
		return nil, errors.New("caption: no language model")
	case c.Tokenizer == nil:
		return nil, errors.New("caption: no tokenizer")
	case c.Projector == nil:
		return nil, errors.New("caption: no projector")
	}

	if c.Projector.VisionDim() != c.Vision.HiddenSize() {
		return nil, fmt.Errorf("%w: projector takes %d, vision encoder produces %d", ErrDimensionMismatch, c.Projector.VisionDim(), c.Vision.HiddenSize())
	}

	if c.Projector.TextDim() != c.Model.HiddenSize() {
		return nil, fmt.Errorf("%w: projector produces %d, language model expects %d", ErrDimensionMismatch, c.Projector.TextDim(), c.Model.HiddenSize())
	}

	assembler := c.Assembler
	if assembler == nil {
		var err error
		if assembler, err = NewPromptAssembler(c.Format, c.Tokenizer, c.Model); err != nil {
			return nil, err
		}
	}

	layer := c.VisionLayer
	if layer == 0 {
		layer = envconfig.VisionLayer
	}

	processor := c.Processor
	if processor == nil {
		processor = imageproc.NewProcessor()
	}

	slog.Info("caption adapter ready", "format", c.Format, "vision_layer", layer, "vision_dim", c.Projector.VisionDim(), "text_dim", c.Projector.TextDim())
	return &Adapter{
		vision:    c.Vision,
		model:     c.Model,
		projector: c.Projector,
		assembler: assembler,
		extractor: &Extractor{
			Tokenizer:         c.Tokenizer,
			EOS:               c.Model.EOS(),
			PostprocessPrompt: c.PostprocessPrompt,
			PostprocessText:   c.PostprocessText,
		},
		processor:   processor,
		visionLayer: layer,
	}, nil
}

// EmbedImage projects one (1, C, H, W) pixel tensor into an (L, D) block of
// language model embeddings.
func (a *Adapter) EmbedImage(ctx context.Context, pixels *tensor.Dense) (*tensor.Dense, error) {
	if pixels == nil || pixels.Dims() != 4 {
		var shape tensor.Shape
		if pixels != nil {
			shape = pixels.Shape()
		}
		return nil, fmt.Errorf("%w: pixels must be (batch, channels, height, width), got %v", ml.ErrShape, shape)
	}

	if n := pixels.Shape()[0]; n != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, n)
	}

	states, err := a.vision.HiddenStates(ctx, pixels)
	if err != nil {
		return nil, fmt.Errorf("vision encoder: %w", err)
	}

	i := a.visionLayer
	if i < 0 {
		i += len(states)
	}

	if i < 0 || i >= len(states) {
		return nil, fmt.Errorf("vision layer %d out of range for %d hidden states", a.visionLayer, len(states))
	}

	features, err := squeezeBatch(states[i])
	if err != nil {
		return nil, err
	}

	slog.Debug("vision features", "layer", i, "of", len(states), "features", logutil.Tensor{Dense: features})

	return a.projector.Forward(features)
}

// squeezeBatch drops a leading batch axis of size one.
func squeezeBatch(t *tensor.Dense) (*tensor.Dense, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil hidden state", ml.ErrShape)
	}

	shape := t.Shape()
	switch {
	case len(shape) == 2:
		return t, nil
	case len(shape) == 3 && shape[0] == 1:
		return ml.FromFloatSlice(ml.Floats(t), shape[1], shape[2])
	case len(shape) == 3:
		return nil, fmt.Errorf("%w: hidden state batch %d", ErrBatchSize, shape[0])
	default:
		return nil, fmt.Errorf("%w: hidden state %v", ml.ErrShape, shape)
	}
}

// Assemble builds the model input for one image and prompt.
func (a *Adapter) Assemble(ctx context.Context, pixels *tensor.Dense, prompt, captionStart string) (Composite, error) {
	image, err := a.EmbedImage(ctx, pixels)
	if err != nil {
		return Composite{}, err
	}

	if err := ctx.Err(); err != nil {
		return Composite{}, err
	}

	return a.assembler.Assemble(image, prompt, captionStart)
}

// Extract recovers the caption from ids generated for a Composite with the
// given prefix length.
func (a *Adapter) Extract(generated []int32, prefixLength int, req Request) (string, error) {
	return a.extractor.Extract(generated, prefixLength, req)
}

type Result struct {
	Caption      string
	PrefixLength int
	Generated    []int32
}

// Caption runs the whole pipeline for one image. The context is checked
// between stages.
func (a *Adapter) Caption(ctx context.Context, pixels *tensor.Dense, req Request) (Result, error) {
	c, err := a.Assemble(ctx, pixels, req.ImagePrompt, req.CaptionStart)
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	generated, err := a.model.Generate(ctx, c.Embeddings, c.IDs, c.AttentionMask)
	if err != nil {
		return Result{}, fmt.Errorf("generate: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	caption, err := a.Extract(generated, c.PrefixLength, req)
	if err != nil {
		return Result{}, err
	}

	return Result{Caption: caption, PrefixLength: c.PrefixLength, Generated: generated}, nil
}

// CaptionImage decodes an encoded image and captions it.
func (a *Adapter) CaptionImage(ctx context.Context, data []byte, req Request) (Result, error) {
	pixels, err := a.processor.Process(data)
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}

	return a.Caption(ctx, pixels, req)
}
