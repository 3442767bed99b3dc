package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
	"github.com/patrickmn/go-cache"
)

// DefaultAccessCacheTTL bounds how long an access check is trusted in memory
const DefaultAccessCacheTTL = 30 * time.Minute

// AccessChecker verifies the credential can administer each organization of
// an enterprise and keeps the outcome in the store and an in-memory cache
type AccessChecker struct {
	store  storage.OrgAccessStore
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewAccessChecker creates a checker whose cache entries live for ttl
func NewAccessChecker(store storage.OrgAccessStore, ttl time.Duration, logger *slog.Logger) *AccessChecker {
	if ttl <= 0 {
		ttl = DefaultAccessCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessChecker{
		store: store,
		// no janitor: expired entries are skipped on read and replaced on the next check
		cache:  cache.New(ttl, 0),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func accessKey(enterprise, org string) string {
	return enterprise + "/" + org
}

// Check replaces every stored status for enterprise with a fresh check of
// each organization. A failed check is stored as no access with the error.
func (a *AccessChecker) Check(ctx context.Context, enterprise string, provider Provider) ([]*models.OrgAccessStatus, error) {
	orgs, err := provider.ListEnterpriseOrganizations(ctx, enterprise)
	if err != nil {
		return nil, &OrganizationListError{Enterprise: enterprise, Err: err}
	}

	removed, err := a.store.DeleteOrgAccessStatuses(ctx, enterprise)
	if err != nil {
		return nil, err
	}
	prefix := accessKey(enterprise, "")
	for key := range a.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			a.cache.Delete(key)
		}
	}
	a.logger.Debug("Cleared org access statuses", "enterprise", enterprise, "removed", removed)

	statuses := make([]*models.OrgAccessStatus, 0, len(orgs))
	for _, org := range orgs {
		status := &models.OrgAccessStatus{
			EnterpriseName: enterprise,
			OrgLogin:       org.Login,
		}

		ok, checkErr := provider.CheckOrganizationAdmin(ctx, org.Login)
		if checkErr != nil {
			msg := checkErr.Error()
			status.ErrorMessage = &msg
			a.logger.Warn("Organization access check failed",
				"enterprise", enterprise,
				"org", org.Login,
				"error", checkErr)
		} else {
			status.HasAccess = ok
		}
		status.LastChecked = a.now()

		if err := a.store.CreateOrgAccessStatus(ctx, status); err != nil {
			return nil, fmt.Errorf("failed to store access for %s: %w", org.Login, err)
		}
		a.cache.SetDefault(accessKey(enterprise, org.Login), status.HasAccess)
		statuses = append(statuses, status)
	}

	a.logger.Info("Organization access checked",
		"enterprise", enterprise,
		"organizations", len(statuses))

	return statuses, nil
}

// HasAccess returns the last known access for an organization. known is
// false when the organization has never been checked.
func (a *AccessChecker) HasAccess(ctx context.Context, enterprise, org string) (hasAccess, known bool, err error) {
	if v, found := a.cache.Get(accessKey(enterprise, org)); found {
		return v.(bool), true, nil
	}

	status, err := a.store.GetOrgAccessStatus(ctx, enterprise, org)
	if err != nil {
		return false, false, err
	}
	if status == nil {
		return false, false, nil
	}
	a.cache.SetDefault(accessKey(enterprise, org), status.HasAccess)
	return status.HasAccess, true, nil
}

// Statuses returns the stored statuses for enterprise
func (a *AccessChecker) Statuses(ctx context.Context, enterprise string) ([]*models.OrgAccessStatus, error) {
	return a.store.ListOrgAccessStatuses(ctx, enterprise)
}
