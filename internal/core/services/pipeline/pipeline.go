// Package pipeline builds the processes declared in a pipeline document and
// runs them over a corpus, either one by one or as a sequence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/featurization"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// RunRecorder keeps the history of pipeline runs
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.Run) error
}

// Pipeline creates processes from a document. It holds no per-run state, so
// one Pipeline may serve concurrent runs.
type Pipeline struct {
	doc       *Document
	sink      normalization.Sink
	artifacts featurization.ArtifactStore
	cache     normalization.Cache
	trainer   featurization.EmbeddingTrainer
	recorder  RunRecorder
	logger    *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSink persists normalized corpora
func WithSink(sink normalization.Sink) Option {
	return func(p *Pipeline) {
		p.sink = sink
	}
}

// WithArtifactStore persists featurizer models and vocabularies
func WithArtifactStore(store featurization.ArtifactStore) Option {
	return func(p *Pipeline) {
		p.artifacts = store
	}
}

// WithCache memoizes normalized records
func WithCache(cache normalization.Cache) Option {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

// WithTrainer sets the trainer of embedding featurizers
func WithTrainer(trainer featurization.EmbeddingTrainer) Option {
	return func(p *Pipeline) {
		p.trainer = trainer
	}
}

// WithRunRecorder records every run
func WithRunRecorder(recorder RunRecorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithLogger sets the logger handed to every process
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline for doc
func New(doc *Document, opts ...Option) (*Pipeline, error) {
	if doc == nil {
		return nil, apperrors.ConfigError(nil, "no pipeline document")
	}
	p := &Pipeline{
		doc:    doc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Document returns the document the pipeline was built from
func (p *Pipeline) Document() *Document {
	return p.doc
}

// CreateProcess builds the process declared under alias. The alias must be
// both registered and declared active in the document.
func (p *Pipeline) CreateProcess(alias string) (Process, error) {
	build, ok := registry[alias]
	if !ok {
		return nil, apperrors.UnknownProcess(alias)
	}
	section, ok := p.doc.Section(alias)
	if !ok {
		return nil, apperrors.UnknownProcess(alias)
	}
	if !section.Active {
		return nil, apperrors.InactiveProcess(alias)
	}
	return build(p, section)
}

// Output is what a run hands back
type Output struct {
	RunID   uuid.UUID
	Stages  []string
	Skipped []string
	// PersistedTo lists the files written so far. A streamed normalizer
	// output only knows its file once it is read, see Persisted.
	PersistedTo []string

	// Features is set when the run ends on a featurizer's Process
	Features featurization.Features

	corpus  *corpus.Source
	pending []*normalization.Result
}

// Corpus returns the corpus after the last stage. Featurizers pass their
// input through unchanged.
func (o *Output) Corpus() *corpus.Source {
	return o.corpus
}

// Materialized reports whether the output corpus is in memory
func (o *Output) Materialized() bool {
	return o.corpus == nil || o.corpus.Materialized()
}

// Records returns the output corpus, draining it when it is a stream
func (o *Output) Records(ctx context.Context) ([]string, error) {
	if o.corpus == nil {
		return nil, nil
	}
	records, err := o.corpus.Collect(ctx)
	o.resolvePending()
	return records, err
}

// Persisted returns PersistedTo including the files of streamed normalizer
// outputs that have been read since the run returned
func (o *Output) Persisted() []string {
	o.resolvePending()
	return o.PersistedTo
}

func (o *Output) addPersisted(paths ...string) {
	for _, path := range paths {
		if path != "" {
			o.PersistedTo = append(o.PersistedTo, path)
		}
	}
}

// addNormalized records where a normalizer result was persisted, deferring
// streamed results until they are read
func (o *Output) addNormalized(result *normalization.Result) {
	if result.Materialized() {
		o.addPersisted(result.PersistedTo)
		return
	}
	o.pending = append(o.pending, result)
}

func (o *Output) resolvePending() {
	remaining := o.pending[:0]
	for _, result := range o.pending {
		if result.PersistedTo == "" {
			remaining = append(remaining, result)
			continue
		}
		o.addPersisted(result.PersistedTo)
	}
	o.pending = remaining
}

// RunSequentially runs every active process in document order. Each
// normalizer feeds the next stage. A featurizer right after another
// featurizer is skipped.
func (p *Pipeline) RunSequentially(ctx context.Context, src *corpus.Source, persist bool) (*Output, error) {
	if src == nil {
		return nil, apperrors.InvalidCorpus(nil)
	}

	run := p.startRun(ctx, domain.RunModeSequence, "", src, persist)
	out := &Output{RunID: run.ID, corpus: src}

	active := p.doc.Active()
	ranAny := false
	var last Kind

	for _, alias := range active {
		if _, ok := registry[alias]; !ok {
			p.logger.Warn("skipping unregistered process", slog.String("alias", alias))
			out.Skipped = append(out.Skipped, alias)
			continue
		}

		proc, err := p.CreateProcess(alias)
		if err != nil {
			return nil, p.failRun(ctx, run, out, err)
		}

		switch proc := proc.(type) {
		case Normalizer:
			result, err := proc.Normalize(ctx, out.corpus, persist)
			if err != nil {
				return nil, p.failRun(ctx, run, out, err)
			}
			if result.PersistErr != nil {
				p.logger.Warn("normalized corpus was not persisted",
					slog.String("alias", alias),
					slog.String("error", result.PersistErr.Error()))
			}
			out.addNormalized(result)
			out.corpus = result.Source()

		case Featurizer:
			if ranAny && last == KindFeaturizer {
				p.logger.Info("featurizer not run, it directly follows another featurizer",
					slog.String("alias", alias))
				out.Skipped = append(out.Skipped, alias)
				continue
			}
			// a stream can be read once; training reads it and the stages
			// after the featurizer, or the caller, read it again
			if out.corpus.Kind() == corpus.KindStream {
				records, err := out.corpus.Collect(ctx)
				if err != nil {
					return nil, p.failRun(ctx, run, out, err)
				}
				out.corpus = corpus.FromList(records)
				out.resolvePending()
			}
			if err := proc.Train(ctx, out.corpus, false); err != nil {
				return nil, p.failRun(ctx, run, out, err)
			}
			if persist {
				paths, err := proc.Persist(ctx)
				if err != nil {
					return nil, p.failRun(ctx, run, out, err)
				}
				out.addPersisted(paths...)
			}

		default:
			return nil, p.failRun(ctx, run, out, fmt.Errorf("process %s has unsupported kind %s", alias, proc.Kind()))
		}

		ranAny = true
		last = proc.Kind()
		out.Stages = append(out.Stages, alias)
	}

	p.completeRun(ctx, run, out)
	return out, nil
}

// RunProcess runs the single process declared under alias. A normalizer
// normalizes src; a featurizer turns src into vectors with its trained
// model.
func (p *Pipeline) RunProcess(ctx context.Context, alias string, src *corpus.Source, persist bool) (*Output, error) {
	if src == nil {
		return nil, apperrors.InvalidCorpus(nil)
	}

	run := p.startRun(ctx, domain.RunModeSingle, alias, src, persist)
	out := &Output{RunID: run.ID, corpus: src}

	proc, err := p.CreateProcess(alias)
	if err != nil {
		return nil, p.failRun(ctx, run, out, err)
	}

	switch proc := proc.(type) {
	case Normalizer:
		result, err := proc.Normalize(ctx, src, persist)
		if err != nil {
			return nil, p.failRun(ctx, run, out, err)
		}
		if result.PersistErr != nil {
			p.logger.Warn("normalized corpus was not persisted",
				slog.String("alias", alias),
				slog.String("error", result.PersistErr.Error()))
		}
		out.addNormalized(result)
		out.corpus = result.Source()

	case Featurizer:
		records, err := src.Collect(ctx)
		if err != nil {
			return nil, p.failRun(ctx, run, out, err)
		}
		features, err := proc.Process(ctx, records)
		if err != nil {
			return nil, p.failRun(ctx, run, out, err)
		}
		out.corpus = corpus.FromList(records)
		out.Features = features
	}

	out.Stages = append(out.Stages, alias)
	p.completeRun(ctx, run, out)
	return out, nil
}

// TrainProcess trains the featurizer declared under alias on src
func (p *Pipeline) TrainProcess(ctx context.Context, alias string, src *corpus.Source, persist bool) (*Output, error) {
	if src == nil {
		return nil, apperrors.InvalidCorpus(nil)
	}

	run := p.startRun(ctx, domain.RunModeSingle, alias, src, persist)
	out := &Output{RunID: run.ID, corpus: src}

	proc, err := p.CreateProcess(alias)
	if err != nil {
		return nil, p.failRun(ctx, run, out, err)
	}
	featurizer, ok := proc.(Featurizer)
	if !ok {
		return nil, p.failRun(ctx, run, out,
			apperrors.BadRequest(fmt.Sprintf("process %s is a %s and cannot be trained", alias, proc.Kind())))
	}

	if err := featurizer.Train(ctx, src, false); err != nil {
		return nil, p.failRun(ctx, run, out, err)
	}
	if persist {
		paths, err := featurizer.Persist(ctx)
		if err != nil {
			return nil, p.failRun(ctx, run, out, err)
		}
		out.addPersisted(paths...)
	}

	out.Stages = append(out.Stages, alias)
	p.completeRun(ctx, run, out)
	return out, nil
}

func (p *Pipeline) startRun(ctx context.Context, mode, alias string, src *corpus.Source, persist bool) *domain.Run {
	run := domain.NewRun(mode, p.doc.Source, alias, persist)
	if src != nil {
		run.CorpusKind = src.Kind().String()
	}
	p.logger.Info("pipeline run started",
		slog.String("run_id", run.ID.String()),
		slog.String("mode", mode),
		slog.String("corpus", run.CorpusKind),
	)
	p.record(ctx, run)
	return run
}

func (p *Pipeline) completeRun(ctx context.Context, run *domain.Run, out *Output) {
	records := -1
	if out.corpus != nil && out.corpus.Materialized() {
		records = len(out.corpus.Records())
	}
	run.Stages = out.Stages
	run.Skipped = out.Skipped
	run.PersistedTo = out.PersistedTo
	run.Complete(records)

	p.logger.Info("pipeline run completed",
		slog.String("run_id", run.ID.String()),
		slog.Any("stages", out.Stages),
		slog.Any("skipped", out.Skipped),
		slog.Duration("duration", run.Duration()),
	)
	p.record(ctx, run)
}

func (p *Pipeline) failRun(ctx context.Context, run *domain.Run, out *Output, err error) error {
	run.Stages = out.Stages
	run.Skipped = out.Skipped
	run.PersistedTo = out.PersistedTo
	run.Fail(err)

	p.logger.Error("pipeline run failed",
		slog.String("run_id", run.ID.String()),
		slog.String("error", err.Error()),
	)
	p.record(ctx, run)
	return err
}

// record never fails a run, history is best effort
func (p *Pipeline) record(ctx context.Context, run *domain.Run) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRun(ctx, run); err != nil {
		p.logger.Warn("failed to record pipeline run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
