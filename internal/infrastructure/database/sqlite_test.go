package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/config"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLiteRunStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "runs.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRunStore_RecordAndGet(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	run := domain.NewRun(domain.RunModeSequence, "preprocessing_1", "", true)
	run.CorpusKind = "list"
	run.Stages = domain.StringList{"regex_norm", "countvec"}
	require.NoError(t, store.RecordRun(ctx, run))

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, stored.Status)
	assert.True(t, stored.Persist)
	assert.Equal(t, domain.StringList{"regex_norm", "countvec"}, stored.Stages)
	assert.Nil(t, stored.FinishedAt)

	run.PersistedTo = domain.StringList{"data/models/regex_norm/normcorpus.txt"}
	run.Complete(2)
	require.NoError(t, store.RecordRun(ctx, run))

	stored, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Records)
	require.NotNil(t, stored.FinishedAt)
	assert.WithinDuration(t, *run.FinishedAt, *stored.FinishedAt, time.Millisecond)
	assert.Equal(t, run.PersistedTo, stored.PersistedTo)
}

func TestSQLiteRunStore_GetMissing(t *testing.T) {
	store := setupSQLite(t)

	_, err := store.GetRun(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestSQLiteRunStore_ListAndCount(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := domain.NewRun(domain.RunModeSingle, "cfg.yml", "regex_norm", false)
		run.StartedAt = base.Add(time.Duration(i) * time.Hour)
		if i == 1 {
			run.Fail(errors.New("boom"))
		} else {
			run.Complete(i)
		}
		require.NoError(t, store.RecordRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt), "most recent first")

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.RunStatusCompleted])
	assert.Equal(t, int64(1), counts[domain.RunStatusFailed])

	removed, err := store.DeleteRunsBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestSQLiteRunStore_InMemory(t *testing.T) {
	store, err := OpenSQLite(context.Background(), ":memory:", logger.Discard())
	require.NoError(t, err)
	defer store.Close()

	run := domain.NewRun(domain.RunModeSequence, "cfg", "", false)
	require.NoError(t, store.RecordRun(context.Background(), run))
	require.NoError(t, store.Ping(context.Background()))
}

func TestOpenRunStore_Drivers(t *testing.T) {
	ctx := context.Background()

	none, err := OpenRunStore(ctx, &config.DatabaseConfig{Driver: "none"}, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, none)

	sqlite, err := OpenRunStore(ctx, &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "runs.db"),
	}, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, sqlite)
	assert.NoError(t, sqlite.Close())

	_, err = OpenRunStore(ctx, &config.DatabaseConfig{Driver: "mysql"}, logger.Discard())
	assert.Error(t, err)
}
