package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/levelport/internal/storage/postgres"
	"github.com/cory-johannsen/levelport/internal/testutil"
)

func TestRunRepository_RecordGetList(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	repo := postgres.NewRunRepository(pc.Pool.DB())
	ctx := context.Background()

	first, err := repo.Record(ctx, postgres.Run{
		SourcePath:       "maps/DM-Deck16.t3d",
		OutputPath:       "out/DM-Deck16.t3d",
		SourceGeneration: "UE1",
		TargetGeneration: "UE4",
		Status:           postgres.StatusOK,
		ActorsIn:         120,
		ActorsOut:        118,
		Diagnostics:      map[string]int{"rule_gap": 3, "dropped": 2},
		Duration:         1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.SourcePath, got.SourcePath)
	assert.Equal(t, map[string]int{"rule_gap": 3, "dropped": 2}, got.Diagnostics)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)

	second, err := repo.Record(ctx, postgres.Run{
		SourcePath:       "maps/broken.t3d",
		SourceGeneration: "UE2",
		TargetGeneration: "UE3",
		Status:           postgres.StatusFailed,
		Error:            "line 4: unmatched End Actor",
	})
	require.NoError(t, err)

	runs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, postgres.ErrRunNotFound)

	require.NoError(t, pc.Pool.Health(ctx, time.Second))
}

func TestMigrate_NoChangeOnSecondRun(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)

	res, err := postgres.Migrate(pc.Config.DSN(), testutil.MigrationsDir(), 0, false)
	require.NoError(t, err)
	assert.True(t, res.NoChange)
	assert.Equal(t, uint(1), res.Version)
}
