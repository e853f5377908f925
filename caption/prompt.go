package caption

import (
	"fmt"
	"log/slog"

	"github.com/pdevine/tensor"
)

const (
	FormatBase     = "base"
	FormatInstruct = "instruct"
)

// PromptAssembler lays out the image block and the prompt text into one
// model input. Implementations keep no per-request state.
type PromptAssembler interface {
	Assemble(image *tensor.Dense, prompt, captionStart string) (Composite, error)
}

// NewPromptAssembler returns the assembler for a prompt format name.
func NewPromptAssembler(format string, tok Tokenizer, model LanguageModel) (PromptAssembler, error) {
	switch format {
	case "", FormatBase:
		return &BasePrompt{Tokenizer: tok, Model: model}, nil
	case FormatInstruct:
		return NewInstructPrompt(tok, model), nil
	default:
		return nil, fmt.Errorf("unknown prompt format %q", format)
	}
}

// InputText joins the prompt and the caption start the way the base model
// expects to read them.
func InputText(prompt, captionStart string) string {
	switch {
	case prompt != "" && captionStart != "":
		return prompt + " " + captionStart
	case prompt != "":
		return prompt
	default:
		return captionStart
	}
}

// BasePrompt lays out [bos, image, prompt].
type BasePrompt struct {
	Tokenizer Tokenizer
	Model     LanguageModel
}

func (p *BasePrompt) Assemble(image *tensor.Dense, prompt, captionStart string) (Composite, error) {
	b := compositeBuilder{model: p.Model}
	if err := b.bos(); err != nil {
		return Composite{}, err
	}

	if err := b.image(image); err != nil {
		return Composite{}, err
	}

	if err := b.text(p.Tokenizer, InputText(prompt, captionStart)); err != nil {
		return Composite{}, err
	}

	return b.build()
}

// InstructPrompt lays out [bos, pre, image, post] where pre and post are the
// formatted chat prompt split at the image.
type InstructPrompt struct {
	Tokenizer Tokenizer
	Model     LanguageModel

	// Format wraps the prompt before splitting. Nil uses the prompt as is.
	Format func(string) string

	SplitSequence string
	ImageHeader   string
}

func NewInstructPrompt(tok Tokenizer, model LanguageModel) *InstructPrompt {
	return &InstructPrompt{
		Tokenizer:     tok,
		Model:         model,
		Format:        FormatPrompt,
		SplitSequence: UserHeader,
		ImageHeader:   ImageHeader,
	}
}

func (p *InstructPrompt) Assemble(image *tensor.Dense, prompt, captionStart string) (Composite, error) {
	if p.Format != nil {
		prompt = p.Format(prompt)
	}

	pre, post, err := SplitPromptAtImage(prompt, p.SplitSequence, p.ImageHeader)
	if err != nil {
		return Composite{}, err
	}

	// generation continues from captionStart
	post += captionStart
	slog.Debug("split prompt", "pre", len(pre), "post", len(post))

	b := compositeBuilder{model: p.Model}
	if err := b.bos(); err != nil {
		return Composite{}, err
	}

	if err := b.text(p.Tokenizer, pre); err != nil {
		return Composite{}, err
	}

	if err := b.image(image); err != nil {
		return Composite{}, err
	}

	if err := b.text(p.Tokenizer, post); err != nil {
		return Composite{}, err
	}

	return b.build()
}
