package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/captioner/envconfig"
	"github.com/ollama/captioner/logutil"
	"github.com/ollama/captioner/tokenizer"
)

var errNoTokenizer = errors.New("no tokenizer: pass --tokenizer or set CAPTION_TOKENIZER")

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "captioner",
		Short:         "Image captioning adapter tools",
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel))
		},
	}

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		NewInspectCmd(),
		NewPromptCmd(),
		NewExtractCmd(),
		NewProjectCmd(),
		NewEnvCmd(),
	)

	return rootCmd
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func loadTokenizer(cmd *cobra.Command) (*tokenizer.BytePairEncoding, error) {
	path, err := cmd.Flags().GetString("tokenizer")
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = envconfig.Tokenizer
	}

	if path == "" {
		return nil, errNoTokenizer
	}

	return tokenizer.Load(path)
}

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the environment configuration",
		Args:  cobra.NoArgs,
		RunE:  envHandler,
	}
}

func envHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	var data [][]string
	for _, name := range names {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprintf("%q", fmt.Sprint(v.Value)), v.Description})
	}

	table := newTable(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()
	return nil
}
