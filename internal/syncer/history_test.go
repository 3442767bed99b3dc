package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecorder_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	topic := pubsub.NewTopic[models.SyncHistory](64)
	t.Cleanup(topic.Close)
	sub := topic.Subscribe("octo-ent")

	rec := NewHistoryRecorder(db, topic, testLogger())
	ctx := context.Background()

	h, err := rec.Create(ctx, "octo-ent", "sync-1", []string{"acme", "globex"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusInProgress, h.Status)
	assert.Equal(t, 2, h.TotalOrganizations)
	assert.Equal(t, 0, h.CompletedOrganizations)

	latest := baseTime.Add(time.Hour)
	_, err = rec.UpdateOrg(ctx, "sync-1", "acme", models.OrgResult{
		TotalMigrations:     250,
		TotalPages:          3,
		ElapsedTimeMs:       1200,
		LatestMigrationDate: &latest,
	})
	require.NoError(t, err)
	_, err = rec.UpdateOrg(ctx, "sync-1", "globex", models.OrgResult{Error: "upstream exploded"})
	require.NoError(t, err)

	done, err := rec.Complete(ctx, "sync-1", models.SyncStatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, done.Status)
	require.NotNil(t, done.EndTime)
	assert.False(t, done.EndTime.Before(done.StartTime))
	assert.Nil(t, done.ErrorMessage)

	stored, err := db.GetSyncHistory(ctx, "sync-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CompletedOrganizations)
	acme := stored.Org("acme")
	require.NotNil(t, acme)
	assert.Equal(t, 250, acme.TotalMigrations)
	assert.Equal(t, 3, acme.TotalPages)
	assert.True(t, acme.Completed)
	require.NotNil(t, acme.LatestMigrationDate)
	assert.True(t, acme.LatestMigrationDate.Equal(latest))
	assert.Equal(t, []string{"upstream exploded"}, stored.Org("globex").Errors)

	msgs := drain(sub)
	require.Len(t, msgs, 4)
	assert.Equal(t, 0, msgs[0].CompletedOrganizations)
	assert.Equal(t, 1, msgs[1].CompletedOrganizations)
	assert.Equal(t, 2, msgs[2].CompletedOrganizations)
	assert.Equal(t, models.SyncStatusCompleted, msgs[3].Status)
}

func TestHistoryRecorder_RejectsDoubleCompletion(t *testing.T) {
	db := setupTestDB(t)
	rec := NewHistoryRecorder(db, nil, testLogger())
	ctx := context.Background()

	_, err := rec.Create(ctx, "octo-ent", "sync-1", []string{"acme"})
	require.NoError(t, err)
	_, err = rec.UpdateOrg(ctx, "sync-1", "acme", models.OrgResult{TotalMigrations: 1})
	require.NoError(t, err)

	_, err = rec.UpdateOrg(ctx, "sync-1", "acme", models.OrgResult{TotalMigrations: 2})
	assert.Error(t, err)
	_, err = rec.UpdateOrg(ctx, "sync-1", "unknown", models.OrgResult{})
	assert.Error(t, err)

	stored, err := db.GetSyncHistory(ctx, "sync-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CompletedOrganizations)
	assert.Equal(t, 1, stored.Org("acme").TotalMigrations)
}

func TestHistoryRecorder_CompleteRequiresEveryOrganization(t *testing.T) {
	db := setupTestDB(t)
	rec := NewHistoryRecorder(db, nil, testLogger())
	ctx := context.Background()

	_, err := rec.Create(ctx, "octo-ent", "sync-1", []string{"acme", "globex"})
	require.NoError(t, err)
	_, err = rec.UpdateOrg(ctx, "sync-1", "acme", models.OrgResult{})
	require.NoError(t, err)

	_, err = rec.Complete(ctx, "sync-1", models.SyncStatusCompleted, "")
	assert.Error(t, err)

	failed, err := rec.Complete(ctx, "sync-1", models.SyncStatusFailed, "credential revoked")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "credential revoked", *failed.ErrorMessage)

	_, err = rec.Complete(ctx, "sync-1", models.SyncStatusFailed, "again")
	assert.Error(t, err)
}

func TestHistoryRecorder_PublishedCopyIsDetached(t *testing.T) {
	db := setupTestDB(t)
	topic := pubsub.NewTopic[models.SyncHistory](8)
	t.Cleanup(topic.Close)
	sub := topic.Subscribe(pubsub.AllKeys)

	rec := NewHistoryRecorder(db, topic, testLogger())
	h, err := rec.Create(context.Background(), "octo-ent", "sync-1", []string{"acme"})
	require.NoError(t, err)

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	msgs[0].Organizations[0].Login = "changed"
	assert.Equal(t, "acme", h.Organizations[0].Login)
}
