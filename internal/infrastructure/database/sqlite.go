package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteRunStore keeps run history in a local SQLite file. It is the
// default store for CLI use, where no database server is available.
type SQLiteRunStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (and creates if needed) the SQLite database at path
// with WAL mode enabled. ":memory:" gives a throwaway store.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRunStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite run store opened", slog.String("path", path))

	return &SQLiteRunStore{db: db, path: path, logger: logger}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	config TEXT,
	process_alias TEXT,
	corpus_kind TEXT,
	persist INTEGER NOT NULL DEFAULT 0,
	stages TEXT,
	skipped TEXT,
	persisted_to TEXT,
	records INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'running',
	error TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

// Ping checks if the database is reachable
func (s *SQLiteRunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordRun inserts the run or overwrites the stored copy
func (s *SQLiteRunStore) RecordRun(ctx context.Context, run *domain.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	const stmt = `
INSERT INTO pipeline_runs (
	id, mode, config, process_alias, corpus_kind, persist, stages, skipped,
	persisted_to, records, status, error, started_at, finished_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	mode=excluded.mode,
	config=excluded.config,
	process_alias=excluded.process_alias,
	corpus_kind=excluded.corpus_kind,
	persist=excluded.persist,
	stages=excluded.stages,
	skipped=excluded.skipped,
	persisted_to=excluded.persisted_to,
	records=excluded.records,
	status=excluded.status,
	error=excluded.error,
	finished_at=excluded.finished_at;
`

	var finished sql.NullString
	if run.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*run.FinishedAt), Valid: true}
	}

	persist := 0
	if run.Persist {
		persist = 1
	}

	_, err := s.db.ExecContext(ctx, stmt,
		run.ID.String(),
		run.Mode,
		run.Config,
		run.ProcessAlias,
		run.CorpusKind,
		persist,
		run.Stages,
		run.Skipped,
		run.PersistedTo,
		run.Records,
		run.Status,
		run.Error,
		formatTime(run.StartedAt),
		finished,
		formatTime(run.CreatedAt),
	)
	if err != nil {
		s.logger.Error("failed to record run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
		return apperrors.DatabaseError(err)
	}
	return nil
}

const selectRun = `
SELECT id, mode, config, process_alias, corpus_kind, persist, stages, skipped,
	persisted_to, records, status, error, started_at, finished_at, created_at
FROM pipeline_runs`

// GetRun retrieves one run by id
func (s *SQLiteRunStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	query := selectRun + " ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountByStatus returns how many runs are in each status
func (s *SQLiteRunStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM pipeline_runs GROUP BY status")
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DeleteRunsBefore removes runs started before cutoff
func (s *SQLiteRunStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pipeline_runs WHERE started_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var (
		run                                 domain.Run
		id, startedAt, createdAt            string
		config, processAlias, kind, errText sql.NullString
		finishedAt                          sql.NullString
		persist                             int
	)

	err := row.Scan(
		&id,
		&run.Mode,
		&config,
		&processAlias,
		&kind,
		&persist,
		&run.Stages,
		&run.Skipped,
		&run.PersistedTo,
		&run.Records,
		&run.Status,
		&errText,
		&startedAt,
		&finishedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.Config = config.String
	run.ProcessAlias = processAlias.String
	run.CorpusKind = kind.String
	run.Error = errText.String
	run.Persist = persist != 0
	run.StartedAt = parseTime(startedAt)
	run.CreatedAt = parseTime(createdAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
