package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/pipeline"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/cache"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/database"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/parsers"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/storage"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/config"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
)

// app holds the dependencies shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.CorpusStore
	readers  *parsers.ReaderFactory
	runs     database.RunStore
	redis    *cache.RedisCache
	records  normalization.Cache
	pipeline *pipeline.Service
}

// appFactory builds the app for a command invocation
type appFactory func(ctx context.Context) (*app, error)

// newApp loads the configuration from the environment and wires the store,
// the run history and the record cache. Redis is preferred for the cache;
// without it records are memoized in process.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Initialize(cfg.Environment, cfg.LogLevel)
	cfg.LogConfig(log)

	if cfg.RegexTimeoutMs > 0 {
		normalization.SetMatchTimeout(time.Duration(cfg.RegexTimeoutMs) * time.Millisecond)
	}

	store, err := storage.NewCorpusStore(&storage.StoreConfig{
		BasePath:    cfg.StorageBasePath,
		DefaultDirs: cfg.DefaultDirs,
		VocabDirs:   cfg.VocabDirs,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  log,
		store:   store,
		readers: parsers.NewReaderFactory(parsers.DefaultReaderConfig()),
	}

	runs, err := database.OpenRunStore(ctx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	a.runs = runs

	if cfg.Cache.Enabled {
		c, err := cache.NewRedisCache(&cfg.Cache, log)
		if err != nil {
			log.Warn("redis record cache unavailable, falling back to memory",
				slog.String("error", err.Error()))
		} else {
			a.redis = c
			a.records = c
		}
	}
	if a.records == nil && cfg.Cache.MemoryEntries > 0 {
		c, err := cache.NewMemoryCache(cfg.Cache.MemoryEntries)
		if err != nil {
			return nil, err
		}
		a.records = c
	}

	a.pipeline = pipeline.NewService(cfg.ResolvePipelineConfig, a.pipelineOptions()...)
	return a, nil
}

func (a *app) pipelineOptions() []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithSink(a.store),
		pipeline.WithArtifactStore(a.store),
	}
	if a.runs != nil {
		opts = append(opts, pipeline.WithRunRecorder(a.runs))
	}
	if a.records != nil {
		opts = append(opts, pipeline.WithCache(a.records))
	}
	return opts
}

// Close releases the connections opened by newApp
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.runs != nil {
		errs = append(errs, a.runs.Close())
	}
	return errors.Join(errs...)
}
