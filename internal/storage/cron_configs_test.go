package storage

import (
	"context"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCronConfig(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	none, err := db.GetCronConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, none)

	next := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertCronConfig(ctx, &models.CronConfig{
		EnterpriseName: "acme",
		Schedule:       "0 0 * * *",
		Enabled:        true,
		NextRun:        &next,
	}))

	require.NoError(t, db.UpsertCronConfig(ctx, &models.CronConfig{
		EnterpriseName: "acme",
		Schedule:       "0 6 * * *",
		Enabled:        false,
	}))

	got, err := db.GetCronConfig(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0 6 * * *", got.Schedule)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRun)

	var count int64
	require.NoError(t, db.DB().Model(&models.CronConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "one row per enterprise")
}

func TestUpdateCronRunTimes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertCronConfig(ctx, &models.CronConfig{EnterpriseName: "acme", Schedule: "0 0 * * *", Enabled: true}))

	last := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	next := last.Add(24 * time.Hour)
	require.NoError(t, db.UpdateCronRunTimes(ctx, "acme", last, &next))

	got, err := db.GetCronConfig(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.LastRun.Equal(last))
	assert.True(t, got.NextRun.Equal(next))

	assert.Error(t, db.UpdateCronRunTimes(ctx, "globex", last, &next))
}

func TestListEnabledCronConfigs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertCronConfig(ctx, &models.CronConfig{EnterpriseName: "globex", Schedule: "@hourly", Enabled: true}))
	require.NoError(t, db.UpsertCronConfig(ctx, &models.CronConfig{EnterpriseName: "acme", Schedule: "0 0 * * *", Enabled: true}))
	require.NoError(t, db.UpsertCronConfig(ctx, &models.CronConfig{EnterpriseName: "initech", Schedule: "0 0 * * *", Enabled: false}))

	cfgs, err := db.ListEnabledCronConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "acme", cfgs[0].EnterpriseName)
	assert.Equal(t, "globex", cfgs[1].EnterpriseName)
}
