package syncer

import (
	"context"

	"github.com/kuhlman-labs/migration-tracker/internal/github"
)

// Provider is the upstream a run reads from. *github.Client implements it.
type Provider interface {
	ListEnterpriseOrganizations(ctx context.Context, enterpriseSlug string) ([]github.Organization, error)
	ListOrganizationMigrations(ctx context.Context, orgLogin string, pageSize int, before *string) (*github.MigrationPage, error)
	CheckOrganizationAdmin(ctx context.Context, orgLogin string) (bool, error)
}

var _ Provider = (*github.Client)(nil)

// ProviderFactory builds a Provider for a caller-supplied credential
type ProviderFactory func(credential string) (Provider, error)

// UnattendedProvider builds a Provider from the configured credential, for
// runs with no caller such as cron ticks
type UnattendedProvider func() (Provider, error)

// GitHubProviders adapts a github.ClientFactory and CredentialProvider to the
// two constructors the orchestrator needs
func GitHubProviders(f *github.ClientFactory, creds *github.CredentialProvider) (ProviderFactory, UnattendedProvider) {
	forToken := func(token string) (Provider, error) {
		client, err := f.ForToken(token)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	unattended := func() (Provider, error) {
		client, err := creds.Client(f)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return forToken, unattended
}
