package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/julchia/pypipe-preprocessing-tool/internal/api"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/queue"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ServerAddr()
			}

			opts := []api.Option{
				api.WithLogger(logger.NewServiceLogger("api")),
				api.WithCorpusReaders(a.readers),
				api.WithUploads(a.store),
				api.WithVersion(version),
			}
			if a.runs != nil {
				opts = append(opts, api.WithRuns(a.runs))
			}
			server := api.NewServer(a.pipeline, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to SERVER_HOST:SERVER_PORT)")
	return cmd
}

func newWorkerCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued pipeline tasks",
		Long: `Consumes pipeline tasks from Redis until interrupted. Tasks are
enqueued with the enqueue command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}
			log := logger.NewServiceLogger("worker")
			server, err := queue.NewAsynqServer(&a.cfg.Queue, log)
			if err != nil {
				return err
			}
			queue.Register(server, queue.RunnerFunc(a.runPayload), log)
			// Start blocks until SIGINT or SIGTERM
			return server.Start()
		},
	}
}

// runPayload runs a queued task. The output is drained so that lazy runs
// do their work and get a record count.
func (a *app) runPayload(ctx context.Context, payload queue.PipelinePayload) error {
	p, err := a.pipeline.Open(payload.Config)
	if err != nil {
		return err
	}

	src := payload.Corpus()
	if payload.CorpusPath != "" {
		src, err = a.readers.Open(ctx, payload.CorpusPath)
		if err != nil {
			return err
		}
	}

	out, err := pipeline.Run(ctx, p, payload.ProcessAlias, src, payload.Persist)
	if err != nil {
		return err
	}
	records, err := out.Records(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("queued pipeline run finished",
		slog.String("run_id", out.RunID.String()),
		slog.Any("stages", out.Stages),
		slog.Int("records", len(records)),
		slog.Any("persisted_to", out.Persisted()),
	)
	return nil
}

func newEnqueueCommand(root *rootOptions) *cobra.Command {
	var (
		texts     []string
		alias     string
		persist   bool
		queueName string
	)
	cmd := &cobra.Command{
		Use:   "enqueue [corpus-file]",
		Short: "Queue a pipeline run for the worker",
		Long: `Queues the whole pipeline, or a single process with --process. A corpus
file is sent by absolute path, so the worker must see the same filesystem.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}

			payload := queue.PipelinePayload{
				Config:       root.configRef(a),
				Data:         texts,
				ProcessAlias: alias,
				Persist:      persist,
			}
			if file := optionalArg(args, 0); file != "" {
				if len(texts) > 0 {
					return errors.New("--text and a corpus file are mutually exclusive")
				}
				if payload.CorpusPath, err = filepath.Abs(file); err != nil {
					return err
				}
			} else if len(texts) == 0 {
				if payload.Data, err = readLines(cmd); err != nil {
					return err
				}
			}

			task, err := queue.NewPipelineTask(payload, asynq.Queue(queueName))
			if err != nil {
				return err
			}
			client, err := queue.NewAsynqClient(&a.cfg.Queue, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.EnqueueContext(cmd.Context(), task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s task %s on queue %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&texts, "text", "t", nil, "record to process (repeatable)")
	cmd.Flags().StringVarP(&alias, "process", "p", "", "run only this process")
	cmd.Flags().BoolVar(&persist, "persist", false, "write the output to the process output directory")
	cmd.Flags().StringVarP(&queueName, "queue", "q", queue.QueueDefault, "queue name")
	return cmd
}

func readLines(cmd *cobra.Command) ([]string, error) {
	var lines []string
	for line, err := range linesSource(cmd.InOrStdin()).All() {
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
