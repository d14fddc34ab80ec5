// Package cli implements the normctl command line
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion sets the version reported by the version command and the
// health endpoint
func SetVersion(v string) {
	version = v
}

// rootOptions is shared by every subcommand. The app is built on first use
// so that commands such as version and rules never touch the environment.
type rootOptions struct {
	config  string
	factory appFactory
	app     *app
}

func (o *rootOptions) load(ctx context.Context) (*app, error) {
	if o.app != nil {
		return o.app, nil
	}
	a, err := o.factory(ctx)
	if err != nil {
		return nil, err
	}
	o.app = a
	return a, nil
}

// configRef is the --config flag, or PIPELINE_CONFIG when it is not given
func (o *rootOptions) configRef(a *app) string {
	if o.config != "" {
		return o.config
	}
	return a.cfg.PipelineConfig
}

func (o *rootOptions) close() error {
	if o.app == nil {
		return nil
	}
	err := o.app.Close()
	o.app = nil
	return err
}

func (o *rootOptions) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normctl",
		Short: "Normalize and featurize Spanish social media text",
		Long: `normctl runs the preprocessing pipeline declared in a YAML document.
Each active process runs in the order it is declared: regex normalizers
clean the text and featurizers turn it into count or embedding vectors.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&o.config, "config", "c", "",
		"pipeline configuration alias or path (defaults to PIPELINE_CONFIG)")

	cmd.AddCommand(
		newRunCommand(o),
		newProcessCommand(o),
		newTrainCommand(o),
		newRulesCommand(),
		newServeCommand(o),
		newWorkerCommand(o),
		newEnqueueCommand(o),
		newRunsCommand(o),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command line against the process environment
func Execute(ctx context.Context) error {
	opts := &rootOptions{factory: newApp}
	defer opts.close()
	return opts.command().ExecuteContext(ctx)
}
