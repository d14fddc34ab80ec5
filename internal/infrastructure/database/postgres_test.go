package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/domain"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL testcontainer for testing
func setupTestDB(t *testing.T) *PostgresDB {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	// Create PostgreSQL container
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	// Cleanup container after test
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := OpenPostgres(connStr, "silent", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestPostgresRunStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	store, err := NewPostgresRunStore(db, logger.Discard())
	require.NoError(t, err)

	run := domain.NewRun(domain.RunModeSequence, "preprocessing_1", "", false)
	run.Stages = domain.StringList{"regex_norm"}
	require.NoError(t, store.RecordRun(ctx, run))

	run.Complete(4)
	require.NoError(t, store.RecordRun(ctx, run))

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.Records)
	assert.Equal(t, domain.StringList{"regex_norm"}, stored.Stages)

	failed := domain.NewRun(domain.RunModeSingle, "preprocessing_1", "countvec", false)
	failed.Fail(errors.New("no trained model"))
	require.NoError(t, store.RecordRun(ctx, failed))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.RunStatusCompleted])
	assert.Equal(t, int64(1), counts[domain.RunStatusFailed])

	assert.Equal(t, "up", db.Health(ctx)["status"])
}
