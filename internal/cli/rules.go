package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
	"github.com/spf13/cobra"
)

func newRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the normalization rules a regex normalizer can enable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tREPLACEMENT\tALIASES\tDESCRIPTION")
			for _, name := range normalization.RuleNames() {
				rule := normalization.MustRule(name)
				replacement := "-"
				if rule.UsesReplacement {
					replacement = strconv.Quote(rule.DefaultReplacement)
				}
				aliases := strings.Join(normalization.RuleAliases(name), ",")
				if aliases == "" {
					aliases = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, replacement, aliases, rule.Description)
			}
			return w.Flush()
		},
	}
}
