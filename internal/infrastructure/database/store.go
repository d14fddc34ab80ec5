package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	"github.com/julchia/pypipe-preprocessing-tool/internal/infrastructure/database/repositories"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/config"
)

// RunStore is the run history used by the CLI, the API and the worker
type RunStore interface {
	RecordRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// postgresRunStore ties the GORM repository to the connection it owns
type postgresRunStore struct {
	*repositories.RunRepository
	db *PostgresDB
}

func (s *postgresRunStore) Close() error {
	return s.db.Close()
}

// NewPostgresRunStore migrates the schema and wraps db as a RunStore
func NewPostgresRunStore(db *PostgresDB, logger *slog.Logger) (RunStore, error) {
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return &postgresRunStore{
		RunRepository: repositories.NewRunRepository(db.DB, logger),
		db:            db,
	}, nil
}

// OpenRunStore opens the run history selected by cfg.Driver. The "none"
// driver returns a nil store and no error.
func OpenRunStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (RunStore, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		store, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		db, err := NewPostgresDB(cfg, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresRunStore(db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
