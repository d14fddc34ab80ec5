package normalization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// Engine applies a compiled chain to a corpus. Materialized input is
// processed eagerly; file and stream input are processed one record per
// pull.
type Engine struct {
	chain       *Chain
	fingerprint string
	sink        Sink
	target      Target
	cache       Cache
	logger      *slog.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithSink enables persistence of the normalized corpus under dir. An empty
// dir lets the sink pick the default location for alias.
func WithSink(sink Sink, alias, dir string) EngineOption {
	return func(e *Engine) {
		e.sink = sink
		e.target.Alias = alias
		e.target.Dir = dir
	}
}

// WithFileName overrides the output file name
func WithFileName(name string) EngineOption {
	return func(e *Engine) {
		e.target.FileName = name
	}
}

// WithCache memoizes per-record results
func WithCache(cache Cache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine for chain
func NewEngine(chain *Chain, opts ...EngineOption) *Engine {
	if chain == nil {
		chain = &Chain{}
	}
	e := &Engine{
		chain:  chain,
		target: Target{FileName: DefaultCorpusFileName},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil {
		e.fingerprint = chain.Fingerprint()
	}
	return e
}

// Result is the output of one Normalize call. Exactly one of Records and
// Stream is set, matching the shape of the input.
type Result struct {
	Records []string
	Stream  *corpus.Source

	// PersistedTo is the file written, empty when nothing was persisted.
	// For streamed results it is known once the first record is pulled.
	PersistedTo string
	// PersistErr records a persistence failure. Persistence is best effort
	// and never fails the normalization itself.
	PersistErr error
}

// Materialized reports whether the records are in memory
func (r *Result) Materialized() bool {
	return r.Stream == nil
}

// Source hands the output to the next stage as a corpus
func (r *Result) Source() *corpus.Source {
	if r.Stream != nil {
		return r.Stream
	}
	return corpus.FromList(r.Records)
}

// Normalize runs the chain over every record of src. When persist is set
// the output is also written through the configured sink.
func (e *Engine) Normalize(ctx context.Context, src *corpus.Source, persist bool) (*Result, error) {
	if src == nil {
		return nil, apperrors.InvalidCorpus(nil)
	}

	e.logger.Debug("normalizing corpus",
		slog.String("kind", src.Kind().String()),
		slog.Int("rules", e.chain.Len()),
		slog.Bool("persist", persist),
	)

	if src.Materialized() {
		return e.normalizeEager(ctx, src.Records(), persist)
	}
	return e.normalizeLazy(ctx, src, persist), nil
}

// NormalizeText runs the chain over a single record
func (e *Engine) NormalizeText(ctx context.Context, text string) (string, error) {
	out, err := e.normalizeRecord(ctx, text)
	if err != nil {
		return "", transformError(err, 0)
	}
	return out, nil
}

func (e *Engine) normalizeEager(ctx context.Context, in []string, persist bool) (*Result, error) {
	records := make([]string, 0, len(in))
	for i, text := range in {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.normalizeRecord(ctx, text)
		if err != nil {
			return nil, transformError(err, i)
		}
		records = append(records, out)
	}

	result := &Result{Records: records}
	if persist {
		result.PersistedTo, result.PersistErr = e.persistAll(ctx, records)
	}

	e.logger.Info("corpus normalized",
		slog.Int("records", len(records)),
		slog.String("persisted_to", result.PersistedTo),
	)
	return result, nil
}

func (e *Engine) normalizeLazy(ctx context.Context, src *corpus.Source, persist bool) *Result {
	result := &Result{}

	result.Stream = corpus.FromStream(func(yield func(string, error) bool) {
		var writer RecordWriter
		if persist {
			writer, result.PersistedTo, result.PersistErr = e.openWriter(ctx)
		}
		defer func() {
			// writer is nil once a failed write disabled persistence
			if writer == nil {
				return
			}
			if err := writer.Close(); err != nil {
				e.logger.Warn("failed to close corpus writer",
					slog.String("path", result.PersistedTo),
					slog.String("error", err.Error()),
				)
			}
		}()

		index := 0
		for text, err := range src.All() {
			if err != nil {
				yield("", err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			out, err := e.normalizeRecord(ctx, text)
			if err != nil {
				yield("", transformError(err, index))
				return
			}

			if writer != nil {
				if err := writer.Write(out); err != nil {
					e.logger.Warn("failed to persist record, persistence disabled for this run",
						slog.String("path", result.PersistedTo),
						slog.String("error", err.Error()),
					)
					result.PersistErr = apperrors.PersistenceError(err, result.PersistedTo)
					_ = writer.Close()
					writer = nil
				}
			}

			if !yield(out, nil) {
				return
			}
			index++
		}
	})

	return result
}

func (e *Engine) normalizeRecord(ctx context.Context, text string) (string, error) {
	if e.cache == nil {
		return e.chain.Apply(text)
	}

	key := e.cacheKey(text)
	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Debug("record cache lookup failed", slog.String("error", err.Error()))
	} else if ok {
		return cached, nil
	}

	out, err := e.chain.Apply(text)
	if err != nil {
		return "", err
	}
	if err := e.cache.Set(ctx, key, out); err != nil {
		e.logger.Debug("record cache store failed", slog.String("error", err.Error()))
	}
	return out, nil
}

func (e *Engine) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.fingerprint + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) persistAll(ctx context.Context, records []string) (string, error) {
	if e.sink == nil {
		e.logger.Warn("persistence requested but no sink configured")
		return "", nil
	}

	path, err := e.sink.WriteAll(ctx, e.target, records)
	if errors.Is(err, ErrNoTarget) {
		e.logger.Debug("no output directory configured, skipping persistence", slog.String("alias", e.target.Alias))
		return "", nil
	}
	if err != nil {
		e.logger.Warn("failed to persist normalized corpus",
			slog.String("alias", e.target.Alias),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return path, nil
}

func (e *Engine) openWriter(ctx context.Context) (RecordWriter, string, error) {
	if e.sink == nil {
		e.logger.Warn("persistence requested but no sink configured")
		return nil, "", nil
	}

	writer, path, err := e.sink.OpenWriter(ctx, e.target)
	if errors.Is(err, ErrNoTarget) {
		e.logger.Debug("no output directory configured, skipping persistence", slog.String("alias", e.target.Alias))
		return nil, "", nil
	}
	if err != nil {
		e.logger.Warn("failed to open corpus writer",
			slog.String("alias", e.target.Alias),
			slog.String("error", err.Error()),
		)
		return nil, "", err
	}
	return writer, path, nil
}

func transformError(err error, record int) error {
	var ruleErr *RuleError
	if errors.As(err, &ruleErr) {
		return apperrors.TransformError(ruleErr.Err, ruleErr.Rule, record)
	}
	return apperrors.TransformError(err, "", record)
}
