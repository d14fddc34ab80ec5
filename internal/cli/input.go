package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	"github.com/spf13/cobra"
)

const maxLineBytes = 1 << 20

// inputOptions selects the corpus of run, process and train. Records come
// from --text, a corpus file argument or standard input, in that order.
type inputOptions struct {
	texts   []string
	persist bool
	json    bool
}

func (in *inputOptions) register(cmd *cobra.Command, persistDefault bool) {
	cmd.Flags().StringArrayVarP(&in.texts, "text", "t", nil, "record to process (repeatable)")
	cmd.Flags().BoolVar(&in.persist, "persist", persistDefault, "write the output to the process output directory")
	cmd.Flags().BoolVar(&in.json, "json", false, "print the result as JSON")
}

func (in *inputOptions) source(cmd *cobra.Command, a *app, file string) (*corpus.Source, error) {
	if len(in.texts) > 0 {
		if file != "" {
			return nil, errors.New("--text and a corpus file are mutually exclusive")
		}
		return corpus.FromList(in.texts), nil
	}
	if file != "" {
		return a.readers.Open(cmd.Context(), file)
	}
	return linesSource(cmd.InOrStdin()), nil
}

// linesSource streams r line by line
func linesSource(r io.Reader) *corpus.Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return corpus.FromLines(func() (string, bool, error) {
		if scanner.Scan() {
			return scanner.Text(), true, nil
		}
		return "", false, scanner.Err()
	})
}

type jsonOutput struct {
	RunID         string   `json:"run_id"`
	Stages        []string `json:"stages"`
	Skipped       []string `json:"skipped,omitempty"`
	PersistedTo   []string `json:"persisted_to,omitempty"`
	ProcessedData any      `json:"processedData"`
}

// printOutput writes one record per line, one JSON row per record for
// features, or a single JSON document with --json. Persisted paths go to
// stderr so stdout stays pipeable.
func printOutput(cmd *cobra.Command, out *pipeline.Output, asJSON bool) error {
	if asJSON {
		result := jsonOutput{
			RunID:   out.RunID.String(),
			Stages:  out.Stages,
			Skipped: out.Skipped,
		}
		if out.Features != nil {
			result.ProcessedData = out.Features.Dense()
		} else {
			records, err := out.Records(cmd.Context())
			if err != nil {
				return err
			}
			if records == nil {
				records = []string{}
			}
			result.ProcessedData = records
		}
		result.PersistedTo = out.Persisted()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if out.Features != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, row := range out.Features.Dense() {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
	} else {
		for record, err := range out.Corpus().All() {
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), record); err != nil {
				return err
			}
		}
	}

	for _, path := range out.Persisted() {
		cmd.PrintErrf("persisted %s\n", path)
	}
	return nil
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}
