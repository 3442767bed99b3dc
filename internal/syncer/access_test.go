package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessChecker_Check(t *testing.T) {
	db := setupTestDB(t)
	provider := newFakeProvider(map[string]int{}, "acme", "globex", "initech")
	provider.admin["globex"] = false
	provider.adminErr["initech"] = errors.New("forbidden")

	checker := NewAccessChecker(db, time.Minute, testLogger())
	ctx := context.Background()

	statuses, err := checker.Check(ctx, "octo-ent", provider)
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	byLogin := map[string]bool{}
	for _, s := range statuses {
		byLogin[s.OrgLogin] = s.HasAccess
		assert.False(t, s.LastChecked.IsZero())
	}
	assert.Equal(t, map[string]bool{"acme": true, "globex": false, "initech": false}, byLogin)

	stored, err := checker.Statuses(ctx, "octo-ent")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, s := range stored {
		if s.OrgLogin == "initech" {
			require.NotNil(t, s.ErrorMessage)
			assert.Contains(t, *s.ErrorMessage, "forbidden")
		}
	}
}

func TestAccessChecker_RecheckReplacesRows(t *testing.T) {
	db := setupTestDB(t)
	provider := newFakeProvider(map[string]int{}, "acme", "globex")
	checker := NewAccessChecker(db, time.Minute, testLogger())
	ctx := context.Background()

	_, err := checker.Check(ctx, "octo-ent", provider)
	require.NoError(t, err)

	// globex left the enterprise and acme lost admin
	provider.orgs = provider.orgs[:1]
	provider.admin["acme"] = false
	_, err = checker.Check(ctx, "octo-ent", provider)
	require.NoError(t, err)

	stored, err := checker.Statuses(ctx, "octo-ent")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "acme", stored[0].OrgLogin)
	assert.False(t, stored[0].HasAccess)

	has, known, err := checker.HasAccess(ctx, "octo-ent", "acme")
	require.NoError(t, err)
	assert.True(t, known)
	assert.False(t, has)

	_, known, err = checker.HasAccess(ctx, "octo-ent", "globex")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestAccessChecker_HasAccessFallsBackToStore(t *testing.T) {
	db := setupTestDB(t)
	provider := newFakeProvider(map[string]int{}, "acme")
	ctx := context.Background()

	_, err := NewAccessChecker(db, time.Minute, testLogger()).Check(ctx, "octo-ent", provider)
	require.NoError(t, err)

	// a fresh checker has an empty cache
	fresh := NewAccessChecker(db, time.Minute, testLogger())
	has, known, err := fresh.HasAccess(ctx, "octo-ent", "acme")
	require.NoError(t, err)
	assert.True(t, known)
	assert.True(t, has)

	_, known, err = fresh.HasAccess(ctx, "other-ent", "acme")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestAccessChecker_ListFailure(t *testing.T) {
	db := setupTestDB(t)
	provider := newFakeProvider(map[string]int{}, "acme")
	checker := NewAccessChecker(db, time.Minute, testLogger())
	ctx := context.Background()

	_, err := checker.Check(ctx, "octo-ent", provider)
	require.NoError(t, err)

	provider.listErr = errors.New("enterprise not found")
	_, err = checker.Check(ctx, "octo-ent", provider)
	var listErr *OrganizationListError
	require.ErrorAs(t, err, &listErr)
	assert.Equal(t, "octo-ent", listErr.Enterprise)

	// previous results survive a failed check
	stored, err := checker.Statuses(ctx, "octo-ent")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
