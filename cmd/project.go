package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ollama/captioner/envconfig"
	"github.com/ollama/captioner/format"
	"github.com/ollama/captioner/fs/checkpoint"
	"github.com/ollama/captioner/logutil"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/projector"
)

func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project FEATURES",
		Short: "Run the image adapter on stored vision features",
		Long:  "Run the image adapter on stored vision features. FEATURES is a checkpoint holding one (L, D) or (1, L, D) tensor, or several selected with --tensor.",
		Args:  cobra.ExactArgs(1),
		RunE:  projectHandler,
	}

	cmd.Flags().String("checkpoint", "", "Path to the image adapter checkpoint")
	cmd.Flags().String("tensor", "", "Name of the features tensor")
	cmd.Flags().Int("image-tokens", envconfig.ImageTokens, "Expected number of image positions, 0 disables the check")
	cmd.Flags().Int("items", 3, "Values shown at each end of a dimension")
	cmd.Flags().Int("precision", 4, "Decimal places shown")
	return cmd
}

func featureTensor(ts map[string]checkpoint.Tensor, name string) (checkpoint.Tensor, error) {
	if name == "" {
		if len(ts) != 1 {
			return checkpoint.Tensor{}, fmt.Errorf("features file has %d tensors, select one with --tensor", len(ts))
		}
		name = checkpoint.Names(ts)[0]
	}

	t, ok := ts[name]
	if !ok {
		return checkpoint.Tensor{}, fmt.Errorf("tensor %q not found", name)
	}

	if len(t.Shape) == 3 && t.Shape[0] == 1 {
		t.Shape = t.Shape[1:]
	}

	return t, nil
}

func projectHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("checkpoint")
	name, _ := flags.GetString("tensor")
	imageTokens, _ := flags.GetInt("image-tokens")
	items, _ := flags.GetInt("items")
	precision, _ := flags.GetInt("precision")

	if path == "" {
		path = envconfig.Checkpoint
	}

	if path == "" {
		return fmt.Errorf("no checkpoint: pass --checkpoint or set CAPTION_CHECKPOINT")
	}

	p, err := projector.Load(path, projector.Options{ImageTokens: imageTokens})
	if err != nil {
		return err
	}

	ts, err := checkpoint.Load(args[0])
	if err != nil {
		return err
	}

	t, err := featureTensor(ts, name)
	if err != nil {
		return err
	}

	features, err := t.Dense()
	if err != nil {
		return err
	}

	projected, err := p.Forward(features)
	if err != nil {
		return err
	}

	logutil.Trace("projected", "features", logutil.Tensor{Dense: features}, "embeddings", logutil.Tensor{Dense: projected})
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", format.Shape(projected.Shape()), ml.Dump(projected, ml.DumpOptions{Items: items, Precision: precision}))
	return nil
}
