package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/captioner/format"
	"github.com/ollama/captioner/fs/checkpoint"
)

func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect CHECKPOINT",
		Short: "List the tensors in a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	fi, err := os.Stat(args[0])
	if err != nil {
		return err
	}

	ts, err := checkpoint.Load(args[0])
	if err != nil {
		return err
	}

	var total int
	var data [][]string
	for _, name := range checkpoint.Names(ts) {
		t := ts[name]
		total += t.Elements()
		data = append(data, []string{name, format.Shape(t.Shape), strconv.Itoa(t.Elements())})
	}

	out := cmd.OutOrStdout()
	table := newTable(out)
	table.SetHeader([]string{"NAME", "SHAPE", "PARAMETERS"})
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(out, "\n%d tensors, %s parameters, %s\n", len(ts), format.HumanNumber(uint64(total)), format.HumanBytes(fi.Size()))
	return nil
}
