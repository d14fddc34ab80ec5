package cli

import (
	"encoding/json"
	"fmt"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	"github.com/spf13/cobra"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	in := &inputOptions{}
	cmd := &cobra.Command{
		Use:   "run [corpus-file]",
		Short: "Run every active process in order",
		Long: `Runs the active processes of the pipeline document in the order they are
declared. The corpus is read from --text, a corpus file (.txt, .csv, .json,
.jsonl or .xlsx) or standard input, one record per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.pipeline.Open(root.configRef(a))
			if err != nil {
				return err
			}
			src, err := in.source(cmd, a, optionalArg(args, 0))
			if err != nil {
				return err
			}
			out, err := p.RunSequentially(cmd.Context(), src, in.persist)
			if err != nil {
				return err
			}
			return printOutput(cmd, out, in.json)
		},
	}
	in.register(cmd, false)
	return cmd
}

func newProcessCommand(root *rootOptions) *cobra.Command {
	in := &inputOptions{}
	cmd := &cobra.Command{
		Use:   "process <alias> [corpus-file]",
		Short: "Run a single process of the pipeline",
		Long: `Runs only the process declared under alias. A featurizer must have been
trained before, see the train command.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.pipeline.Open(root.configRef(a))
			if err != nil {
				return err
			}
			src, err := in.source(cmd, a, optionalArg(args, 1))
			if err != nil {
				return err
			}
			out, err := p.RunProcess(cmd.Context(), args[0], src, in.persist)
			if err != nil {
				return err
			}
			return printOutput(cmd, out, in.json)
		},
	}
	in.register(cmd, false)
	return cmd
}

func newTrainCommand(root *rootOptions) *cobra.Command {
	in := &inputOptions{}
	cmd := &cobra.Command{
		Use:   "train <alias> [corpus-file]",
		Short: "Train a featurizer and store its model",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.pipeline.Open(root.configRef(a))
			if err != nil {
				return err
			}
			src, err := in.source(cmd, a, optionalArg(args, 1))
			if err != nil {
				return err
			}
			out, err := p.TrainProcess(cmd.Context(), args[0], src, in.persist)
			if err != nil {
				return err
			}
			return printTrained(cmd, out, in.json)
		},
	}
	in.register(cmd, true)
	return cmd
}

func printTrained(cmd *cobra.Command, out *pipeline.Output, asJSON bool) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"run_id":       out.RunID.String(),
			"process":      out.Stages[0],
			"persisted_to": out.PersistedTo,
		})
	}
	fmt.Fprintf(w, "trained %s (run %s)\n", out.Stages[0], out.RunID)
	for _, path := range out.PersistedTo {
		fmt.Fprintf(w, "  %s\n", path)
	}
	return nil
}
