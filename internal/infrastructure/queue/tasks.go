package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// Task types
const (
	TaskTypePipelineRun = "pipeline:run"
	TaskTypeProcessRun  = "pipeline:process"
)

// PipelinePayload is the body of a pipeline task. The corpus is either Data
// or the file at CorpusPath, never both.
type PipelinePayload struct {
	Config       string   `json:"config"`
	Data         []string `json:"data,omitempty"`
	CorpusPath   string   `json:"corpus_path,omitempty"`
	ProcessAlias string   `json:"process_alias,omitempty"`
	Persist      bool     `json:"persist"`
}

// Validate checks the payload before it is enqueued or run
func (p PipelinePayload) Validate() error {
	if p.Config == "" {
		return apperrors.BadRequest("config is required")
	}
	if p.CorpusPath != "" && len(p.Data) > 0 {
		return apperrors.BadRequest("data and corpus_path are mutually exclusive")
	}
	if p.CorpusPath == "" && len(p.Data) == 0 {
		return apperrors.InvalidCorpus(nil)
	}
	return nil
}

// Corpus wraps the payload input
func (p PipelinePayload) Corpus() *corpus.Source {
	if p.CorpusPath != "" {
		return corpus.FromPath(p.CorpusPath)
	}
	return corpus.FromList(p.Data)
}

// TaskType returns the task type the payload is sent as
func (p PipelinePayload) TaskType() string {
	if p.ProcessAlias != "" {
		return TaskTypeProcessRun
	}
	return TaskTypePipelineRun
}

// NewPipelineTask creates a task that runs the whole pipeline, or the single
// process named by ProcessAlias
func NewPipelineTask(payload PipelinePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline payload: %w", err)
	}

	defaults := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(30 * time.Minute),
	}
	return asynq.NewTask(payload.TaskType(), data, append(defaults, opts...)...), nil
}

// ParsePipelinePayload decodes the payload of a pipeline task
func ParsePipelinePayload(task *asynq.Task) (PipelinePayload, error) {
	var payload PipelinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, apperrors.BadRequest(fmt.Sprintf("invalid %s payload: %v", task.Type(), err))
	}
	if err := payload.Validate(); err != nil {
		return payload, err
	}
	return payload, nil
}

// Runner executes a pipeline payload
type Runner interface {
	Run(ctx context.Context, payload PipelinePayload) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, payload PipelinePayload) error

// Run calls fn
func (fn RunnerFunc) Run(ctx context.Context, payload PipelinePayload) error {
	return fn(ctx, payload)
}

// NewPipelineHandler returns the asynq handler of both pipeline task types.
// Client errors such as a bad payload or an unknown process are not retried.
func NewPipelineHandler(runner Runner, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParsePipelinePayload(task)
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		taskID, _ := asynq.GetTaskID(ctx)
		logger.Info("pipeline task started",
			slog.String("task_id", taskID),
			slog.String("task_type", task.Type()),
			slog.String("config", payload.Config),
			slog.String("process_alias", payload.ProcessAlias),
		)

		if err := runner.Run(ctx, payload); err != nil {
			if apperrors.StatusCode(err) < http.StatusInternalServerError {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}

		logger.Info("pipeline task finished", slog.String("task_id", taskID))
		return nil
	}
}

// Register installs the pipeline handler on server for both task types
func Register(server *AsynqServer, runner Runner, logger *slog.Logger) {
	handler := NewPipelineHandler(runner, logger)
	server.HandleFunc(TaskTypePipelineRun, handler)
	server.HandleFunc(TaskTypeProcessRun, handler)
}
