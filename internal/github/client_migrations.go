package github

import (
	"context"

	"github.com/shurcooL/githubv4"
)

// DefaultMigrationPageSize is the largest page GitHub serves for repositoryMigrations
const DefaultMigrationPageSize = 100

// MigrationSourceNode is the migration source as GitHub reports it. Any field
// may be missing.
type MigrationSourceNode struct {
	ID   *string `graphql:"id"`
	Name *string `graphql:"name"`
	Type *string `graphql:"type"`
	URL  *string `graphql:"url"`
}

// MigrationNode is one repositoryMigrations node. Fields are pointers so the
// ingestion side can tell a missing value from an empty one.
type MigrationNode struct {
	ID              *string              `graphql:"id"`
	SourceURL       *string              `graphql:"sourceUrl"`
	MigrationLogURL *string              `graphql:"migrationLogUrl"`
	State           *string              `graphql:"state"`
	WarningsCount   *int                 `graphql:"warningsCount"`
	FailureReason   *string              `graphql:"failureReason"`
	CreatedAt       *string              `graphql:"createdAt"`
	RepositoryName  *string              `graphql:"repositoryName"`
	MigrationSource *MigrationSourceNode `graphql:"migrationSource"`
}

// MigrationPage is one backward page of an organization's migrations
type MigrationPage struct {
	Nodes           []MigrationNode
	HasPreviousPage bool
	StartCursor     string
	// TotalCount is nil when GitHub omitted it
	TotalCount *int
}

// ListOrganizationMigrations fetches the page of migrations that ends just
// before cursor. A nil cursor returns the most recent page. Pages are walked
// backward because GitHub only guarantees a stable order in that direction.
func (c *Client) ListOrganizationMigrations(ctx context.Context, orgLogin string, pageSize int, before *string) (*MigrationPage, error) {
	if pageSize <= 0 || pageSize > DefaultMigrationPageSize {
		pageSize = DefaultMigrationPageSize
	}

	var query struct {
		Organization *struct {
			RepositoryMigrations struct {
				TotalCount *int `graphql:"totalCount"`
				PageInfo   struct {
					HasPreviousPage bool    `graphql:"hasPreviousPage"`
					StartCursor     *string `graphql:"startCursor"`
				} `graphql:"pageInfo"`
				Nodes []MigrationNode `graphql:"nodes"`
			} `graphql:"repositoryMigrations(last: $pageSize, before: $cursor)"`
		} `graphql:"organization(login: $login)"`
	}

	var cursor *githubv4.String
	if before != nil {
		cursor = githubv4.NewString(githubv4.String(*before))
	}
	variables := map[string]interface{}{
		"login":    githubv4.String(orgLogin),
		"pageSize": githubv4.Int(pageSize),
		"cursor":   cursor,
	}

	if err := c.query(ctx, "ListOrganizationMigrations", &query, variables); err != nil {
		return nil, err
	}
	if query.Organization == nil {
		return nil, &APIError{
			Message:   "organization " + orgLogin + " not found",
			Operation: "ListOrganizationMigrations",
			BaseURL:   c.baseURL,
			Err:       ErrNotFound,
		}
	}

	conn := query.Organization.RepositoryMigrations
	page := &MigrationPage{
		Nodes:           conn.Nodes,
		HasPreviousPage: conn.PageInfo.HasPreviousPage,
		TotalCount:      conn.TotalCount,
	}
	if conn.PageInfo.StartCursor != nil {
		page.StartCursor = *conn.PageInfo.StartCursor
	}
	// A page claiming more data without a cursor would loop forever
	if page.HasPreviousPage && page.StartCursor == "" {
		page.HasPreviousPage = false
	}

	c.logger.Debug("Organization migrations page fetched",
		"org", orgLogin,
		"nodes", len(page.Nodes),
		"has_previous_page", page.HasPreviousPage)

	return page, nil
}
