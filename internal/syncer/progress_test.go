package syncer

import (
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T, orgs ...string) (*Tracker, *fakeClock, *pubsub.Subscription[models.EnterpriseProgress]) {
	t.Helper()
	topic := pubsub.NewTopic[models.EnterpriseProgress](256)
	t.Cleanup(topic.Close)
	sub := topic.Subscribe("octo-ent")

	clock := &fakeClock{t: baseTime}
	tr := NewTracker(TrackerConfig{
		SyncID:     "sync-1",
		Enterprise: "octo-ent",
		Orgs:       orgs,
		Topic:      topic,
		BatchSize:  10,
		Now:        clock.now,
	})
	return tr, clock, sub
}

func TestTracker_StartsPending(t *testing.T) {
	tr, _, _ := newTestTracker(t, "acme", "globex", "acme")

	snap := tr.Snapshot()
	assert.Equal(t, "octo-ent", snap.EnterpriseName)
	assert.Equal(t, "sync-1", snap.SyncID)
	require.Len(t, snap.Organizations, 2)
	for _, org := range snap.Organizations {
		assert.Equal(t, models.OrgPending, org.State)
		assert.False(t, org.IsCompleted)
		assert.Nil(t, org.ProcessingRate)
	}
}

func TestTracker_BroadcastCarriesEveryOrganization(t *testing.T) {
	tr, _, sub := newTestTracker(t, "acme", "globex")

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Organizations, 2)
	assert.Equal(t, models.OrgFetching, msgs[0].Organizations[0].State)
	assert.Equal(t, models.OrgPending, msgs[0].Organizations[1].State)
}

func TestTracker_RateAndETA(t *testing.T) {
	tr, clock, sub := newTestTracker(t, "acme")

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	clock.advance(time.Second)
	require.NoError(t, tr.PageFetched("acme", 1, 4))
	require.NoError(t, tr.Transition("acme", models.OrgEventFirstPage, ""))
	drain(sub)

	// ten records in two seconds
	clock.advance(2 * time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.RecordProcessed("acme"))
	}

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	org := msgs[0].Organizations[0]
	assert.Equal(t, 10, org.MigrationsCount)
	assert.Equal(t, int64(3000), org.ElapsedTimeMs)
	require.NotNil(t, org.ProcessingRate)
	assert.InDelta(t, 5.0, *org.ProcessingRate, 0.0001)
	// three pages left at ten records each, five per second
	require.NotNil(t, org.EstimatedTimeRemainingMs)
	assert.Equal(t, int64(6000), *org.EstimatedTimeRemainingMs)
}

func TestTracker_RateUnknownWithoutNewRecords(t *testing.T) {
	tr, clock, sub := newTestTracker(t, "acme")

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	clock.advance(time.Second)
	require.NoError(t, tr.PageFetched("acme", 1, 2))

	msgs := drain(sub)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1].Organizations[0]
	assert.Nil(t, last.ProcessingRate)
	assert.Nil(t, last.EstimatedTimeRemainingMs)
}

func TestTracker_RateUnknownOnZeroInterval(t *testing.T) {
	tr, _, sub := newTestTracker(t, "acme")

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.RecordProcessed("acme"))
	}

	msgs := drain(sub)
	last := msgs[len(msgs)-1].Organizations[0]
	assert.Equal(t, 10, last.MigrationsCount)
	assert.Nil(t, last.ProcessingRate)
}

func TestTracker_PagesNeverMoveBackward(t *testing.T) {
	tr, _, _ := newTestTracker(t, "acme")

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	require.NoError(t, tr.PageFetched("acme", 2, 5))
	require.NoError(t, tr.PageFetched("acme", 1, 3))

	org, ok := tr.Org("acme")
	require.True(t, ok)
	assert.Equal(t, 2, org.CurrentPage)
	assert.Equal(t, 5, org.TotalPages)
}

func TestTracker_CompletionZeroesETA(t *testing.T) {
	tr, clock, _ := newTestTracker(t, "acme", "globex")

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	clock.advance(time.Second)
	require.NoError(t, tr.Transition("acme", models.OrgEventExhausted, ""))

	require.NoError(t, tr.Transition("globex", models.OrgEventStart, ""))
	require.NoError(t, tr.Transition("globex", models.OrgEventFailed, "boom"))

	acme, _ := tr.Org("acme")
	assert.Equal(t, models.OrgDoneOK, acme.State)
	assert.True(t, acme.IsCompleted)
	assert.Nil(t, acme.Error)
	require.NotNil(t, acme.EstimatedTimeRemainingMs)
	assert.Equal(t, int64(0), *acme.EstimatedTimeRemainingMs)
	assert.Equal(t, int64(1000), acme.ElapsedTimeMs)

	globex, _ := tr.Org("globex")
	assert.Equal(t, models.OrgDoneError, globex.State)
	require.NotNil(t, globex.Error)
	assert.Equal(t, "boom", *globex.Error)
}

func TestTracker_RejectsInvalidTransitions(t *testing.T) {
	tr, _, _ := newTestTracker(t, "acme")

	assert.Error(t, tr.Transition("acme", models.OrgEventExhausted, ""))
	assert.Error(t, tr.Transition("nobody", models.OrgEventStart, ""))
	assert.Error(t, tr.PageFetched("nobody", 1, 1))
	assert.Error(t, tr.RecordProcessed("nobody"))

	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	require.NoError(t, tr.Transition("acme", models.OrgEventExhausted, ""))
	assert.Error(t, tr.Transition("acme", models.OrgEventStart, ""))
}

func TestTracker_SnapshotIsDetached(t *testing.T) {
	tr, _, _ := newTestTracker(t, "acme")
	require.NoError(t, tr.Transition("acme", models.OrgEventStart, ""))
	require.NoError(t, tr.Transition("acme", models.OrgEventFailed, "first"))

	snap := tr.Snapshot()
	*snap.Organizations[0].Error = "mutated"

	org, _ := tr.Org("acme")
	assert.Equal(t, "first", *org.Error)
}

func TestTracker_NilTopic(t *testing.T) {
	tr := NewTracker(TrackerConfig{SyncID: "s", Enterprise: "e", Orgs: []string{"a"}})
	assert.NoError(t, tr.Transition("a", models.OrgEventStart, ""))
	assert.NoError(t, tr.RecordProcessed("a"))
}
