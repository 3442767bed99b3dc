package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"
)

// Organization is an organization belonging to an enterprise
type Organization struct {
	ID    string
	Login string
	Name  string
}

type orgNode struct {
	ID    string  `graphql:"id"`
	Login string  `graphql:"login"`
	Name  *string `graphql:"name"`
}

// ListEnterpriseOrganizations lists every organization in an enterprise
func (c *Client) ListEnterpriseOrganizations(ctx context.Context, enterpriseSlug string) ([]Organization, error) {
	var query struct {
		Enterprise *struct {
			Organizations struct {
				Nodes    []orgNode `graphql:"nodes"`
				PageInfo struct {
					HasNextPage bool   `graphql:"hasNextPage"`
					EndCursor   string `graphql:"endCursor"`
				} `graphql:"pageInfo"`
			} `graphql:"organizations(first: 100, after: $cursor)"`
		} `graphql:"enterprise(slug: $slug)"`
	}

	var orgs []Organization
	var cursor *githubv4.String

	for {
		variables := map[string]interface{}{
			"slug":   githubv4.String(enterpriseSlug),
			"cursor": cursor,
		}

		if err := c.query(ctx, "ListEnterpriseOrganizations", &query, variables); err != nil {
			return nil, err
		}
		if query.Enterprise == nil {
			return nil, &APIError{
				Message:   fmt.Sprintf("enterprise %q not found", enterpriseSlug),
				Operation: "ListEnterpriseOrganizations",
				BaseURL:   c.baseURL,
				Err:       ErrNotFound,
			}
		}

		for _, n := range query.Enterprise.Organizations.Nodes {
			org := Organization{ID: n.ID, Login: n.Login}
			if n.Name != nil {
				org.Name = *n.Name
			}
			orgs = append(orgs, org)
		}

		page := query.Enterprise.Organizations.PageInfo
		if !page.HasNextPage {
			break
		}
		next := githubv4.String(page.EndCursor)
		cursor = &next
	}

	c.logger.Debug("Enterprise organizations listed",
		"enterprise", enterpriseSlug,
		"total_orgs", len(orgs))

	return orgs, nil
}

// CheckOrganizationAdmin reports whether the credential can administer org
func (c *Client) CheckOrganizationAdmin(ctx context.Context, orgLogin string) (bool, error) {
	var query struct {
		Organization *struct {
			ViewerCanAdminister bool `graphql:"viewerCanAdminister"`
		} `graphql:"organization(login: $login)"`
	}

	variables := map[string]interface{}{
		"login": githubv4.String(orgLogin),
	}

	if err := c.query(ctx, "CheckOrganizationAdmin", &query, variables); err != nil {
		return false, err
	}
	if query.Organization == nil {
		return false, &APIError{
			Message:   fmt.Sprintf("organization %q not found", orgLogin),
			Operation: "CheckOrganizationAdmin",
			BaseURL:   c.baseURL,
			Err:       ErrNotFound,
		}
	}

	return query.Organization.ViewerCanAdminister, nil
}
