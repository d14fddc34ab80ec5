package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunRepository stores pipeline run history using GORM
type RunRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRunRepository creates a new repository instance
func NewRunRepository(db *gorm.DB, logger *slog.Logger) *RunRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// RecordRun inserts the run or overwrites the stored copy. It is called once
// when a run starts and again when it finishes.
func (r *RunRepository) RecordRun(ctx context.Context, run *domain.Run) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(run).
		Error

	if err != nil {
		r.logger.Error("failed to record run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
		return apperrors.DatabaseError(err)
	}

	return nil
}

// GetRun retrieves one run by id
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	var run domain.Run

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&run).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return &run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var runs []domain.Run

	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&runs).Error; err != nil {
		r.logger.Error("failed to list runs", slog.String("error", err.Error()))
		return nil, apperrors.DatabaseError(err)
	}

	return runs, nil
}

// CountByStatus returns how many runs are in each status
func (r *RunRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var results []statusCount

	err := r.db.WithContext(ctx).
		Model(&domain.Run{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).
		Error

	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	counts := make(map[string]int64, len(results))
	for _, result := range results {
		counts[result.Status] = result.Count
	}

	return counts, nil
}

// DeleteRunsBefore removes runs started before cutoff
func (r *RunRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&domain.Run{})

	if result.Error != nil {
		return 0, apperrors.DatabaseError(result.Error)
	}

	r.logger.Info("deleted old runs",
		slog.Int64("count", result.RowsAffected),
		slog.Time("cutoff", cutoff))

	return result.RowsAffected, nil
}
