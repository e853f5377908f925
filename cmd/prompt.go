package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pdevine/tensor"
	"github.com/spf13/cobra"

	"github.com/ollama/captioner/caption"
	"github.com/ollama/captioner/envconfig"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/tokenizer"
)

func NewPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Show how a prompt is laid out around the image",
		Args:  cobra.NoArgs,
		RunE:  promptHandler,
	}

	cmd.Flags().String("prompt", "", "Image prompt, {tags}, {name} and {directory} are substituted")
	cmd.Flags().String("format", envconfig.PromptFormat, "Prompt format (base or instruct)")
	cmd.Flags().String("caption-start", envconfig.CaptionStart, "Text the caption is primed to start with")
	cmd.Flags().String("tokenizer", "", "Path to tokenizer.json")
	cmd.Flags().Int("image-tokens", envconfig.ImageTokens, "Number of image positions")
	cmd.Flags().StringSlice("tags", nil, "Tags substituted for {tags}")
	cmd.Flags().String("image", "", "Image path substituted for {name} and {directory}")
	return cmd
}

// dryRunModel embeds every token as a zero vector.
type dryRunModel struct {
	bos, eos int32
}

func (dryRunModel) EmbedTokens(ids []int32) (*tensor.Dense, error) {
	return ml.Zeros(len(ids), 1)
}

func (dryRunModel) Generate(_ context.Context, _ *tensor.Dense, ids, _ []int32) ([]int32, error) {
	return ids, nil
}

func (dryRunModel) HiddenSize() int { return 1 }

func (m dryRunModel) BOS() int32 { return m.bos }

func (m dryRunModel) EOS() int32 { return m.eos }

func promptHandler(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	prompt, _ := flags.GetString("prompt")
	promptFormat, _ := flags.GetString("format")
	captionStart, _ := flags.GetString("caption-start")
	imageTokens, _ := flags.GetInt("image-tokens")
	tags, _ := flags.GetStringSlice("tags")
	imagePath, _ := flags.GetString("image")

	if imageTokens <= 0 {
		return errors.New("--image-tokens must be greater than zero")
	}

	tok, err := loadTokenizer(cmd)
	if err != nil {
		return err
	}

	if tok.BOS() < 0 {
		return errors.New("tokenizer defines no BOS token")
	}

	model := dryRunModel{bos: tok.BOS(), eos: tok.EOS()}
	assembler, err := caption.NewPromptAssembler(promptFormat, tok, model)
	if err != nil {
		return err
	}

	image, err := ml.Zeros(imageTokens, model.HiddenSize())
	if err != nil {
		return err
	}

	prompt = caption.RenderPrompt(prompt, caption.PromptVars{Tags: tags, Path: imagePath}, envconfig.TagSeparator)
	c, err := assembler.Assemble(image, prompt, captionStart)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "prompt: %q\n\n", prompt)

	var data [][]string
	for _, s := range c.Segments {
		text := fmt.Sprintf("<%d image embeddings>", s.Length)
		if s.Kind != caption.SegmentImage {
			text, err = tok.Decode(c.IDs[s.Offset:s.Offset+s.Length], false)
			if err != nil {
				return err
			}
			text = strconv.Quote(text)
		}

		data = append(data, []string{s.Kind.String(), strconv.Itoa(s.Offset), strconv.Itoa(s.Length), text})
	}

	table := newTable(out)
	table.SetHeader([]string{"SEGMENT", "OFFSET", "LENGTH", "TEXT"})
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(out, "\nprefix length: %d\n", c.PrefixLength)
	return nil
}

var _ caption.Tokenizer = (*tokenizer.BytePairEncoding)(nil)
