package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/captioner/caption"
	"github.com/ollama/captioner/envconfig"
)

func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Recover captions from generated token ids",
		Long:  "Recover captions from generated token ids. Each FILE holds a JSON array with the full id sequence returned by generation.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  extractHandler,
	}

	cmd.Flags().String("tokenizer", "", "Path to tokenizer.json")
	cmd.Flags().Int("prefix-length", 0, "Number of prompt positions before the generated tokens")
	cmd.Flags().String("prompt", "", "Image prompt used for generation")
	cmd.Flags().String("caption-start", envconfig.CaptionStart, "Text the caption was primed to start with")
	cmd.Flags().String("tag-separator", envconfig.TagSeparator, "Separator between tags")
	cmd.Flags().Bool("remove-tag-separators", envconfig.RemoveTagSeparators, "Replace tag separators with spaces")
	return cmd
}

func readIDs(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int32
	if err := json.NewDecoder(f).Decode(&ids); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return ids, nil
}

func extractHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	prefixLength, _ := flags.GetInt("prefix-length")

	var req caption.Request
	req.ImagePrompt, _ = flags.GetString("prompt")
	req.CaptionStart, _ = flags.GetString("caption-start")
	req.TagSeparator, _ = flags.GetString("tag-separator")
	req.RemoveTagSeparators, _ = flags.GetBool("remove-tag-separators")

	tok, err := loadTokenizer(cmd)
	if err != nil {
		return err
	}

	extractor := caption.Extractor{Tokenizer: tok, EOS: tok.EOS()}

	captions := make([]string, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range args {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			ids, err := readIDs(path)
			if err != nil {
				return err
			}

			captions[i], err = extractor.Extract(ids, prefixLength, req)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			slog.Debug("extracted", "file", path, "ids", len(ids))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, path := range args {
		if len(args) > 1 {
			fmt.Fprintf(out, "%s: ", path)
		}
		fmt.Fprintln(out, captions[i])
	}

	return nil
}
