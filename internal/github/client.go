package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client wraps the GitHub GraphQL and REST clients with pacing and retries
type Client struct {
	rest        *github.Client
	graphql     *githubv4.Client
	baseURL     string
	rateLimiter *RateLimiter
	retryer     *Retryer
	logger      *slog.Logger
}

// ClientConfig configures the GitHub client
type ClientConfig struct {
	BaseURL string
	// Token is used when TokenSource is nil
	Token       string
	TokenSource oauth2.TokenSource
	Timeout     time.Duration
	RetryConfig RetryConfig
	// MinInterval is the minimum spacing between any two requests
	MinInterval time.Duration
	// Transport overrides the base HTTP transport, mainly for tests
	Transport http.RoundTripper
	// SkipRateLimitBootstrap avoids the initial REST rate_limit call
	SkipRateLimitBootstrap bool
	Logger                 *slog.Logger
}

// InstanceType represents the type of GitHub instance
type InstanceType int

const (
	// InstanceTypeGitHub is standard GitHub.com
	InstanceTypeGitHub InstanceType = iota
	// InstanceTypeGHEC is GitHub Enterprise Cloud with data residency
	InstanceTypeGHEC
	// InstanceTypeGHES is GitHub Enterprise Server (self-hosted)
	InstanceTypeGHES
)

const (
	// GitHubAPIURL is the standard GitHub.com API URL
	GitHubAPIURL = "https://api.github.com"
)

func detectInstanceType(baseURL string) InstanceType {
	if baseURL == "" || baseURL == GitHubAPIURL {
		return InstanceTypeGitHub
	}
	// e.g. https://octocorp.ghe.com or https://api.octocorp.ghe.com
	if strings.Contains(baseURL, ".ghe.com") {
		return InstanceTypeGHEC
	}
	return InstanceTypeGHES
}

func buildGraphQLURL(baseURL string) string {
	switch detectInstanceType(baseURL) {
	case InstanceTypeGitHub:
		return GitHubAPIURL + "/graphql"
	case InstanceTypeGHEC:
		domain := strings.TrimPrefix(baseURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		domain = strings.TrimPrefix(domain, "api.")
		domain = strings.TrimSuffix(domain, "/")
		return fmt.Sprintf("https://api.%s/graphql", domain)
	default:
		u := strings.TrimSuffix(baseURL, "/")
		u = strings.TrimSuffix(u, "/api/v3")
		u = strings.TrimSuffix(u, "/api")
		return u + "/api/graphql"
	}
}

// NewClient creates a GitHub client for one credential
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = DefaultRetryConfig()
	}

	ts := cfg.TokenSource
	if ts == nil {
		if cfg.Token == "" {
			return nil, fmt.Errorf("%w: no token provided", ErrUnauthorized)
		}
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	rateLimiter := NewRateLimiter(cfg.MinInterval, cfg.Logger)
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &rateLimitTransport{base: base, limiter: rateLimiter},
		},
	}

	restClient := github.NewClient(httpClient)
	graphqlURL := buildGraphQLURL(cfg.BaseURL)
	graphqlClient := githubv4.NewClient(httpClient)
	if detectInstanceType(cfg.BaseURL) != InstanceTypeGitHub {
		var err error
		restClient, err = restClient.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, WrapError(err, "NewClient", cfg.BaseURL)
		}
		graphqlClient = githubv4.NewEnterpriseClient(graphqlURL, httpClient)
	}

	cfg.Logger.Debug("GitHub client configured",
		"base_url", cfg.BaseURL,
		"graphql_url", graphqlURL,
		"instance_type", detectInstanceType(cfg.BaseURL))

	client := &Client{
		rest:        restClient,
		graphql:     graphqlClient,
		baseURL:     cfg.BaseURL,
		rateLimiter: rateLimiter,
		retryer:     NewRetryer(cfg.RetryConfig, rateLimiter, cfg.Logger),
		logger:      cfg.Logger,
	}

	if !cfg.SkipRateLimitBootstrap {
		if err := client.updateRateLimits(context.Background()); err != nil {
			cfg.Logger.Warn("Failed to initialize rate limits", "error", err)
		}
	}

	return client, nil
}

// BaseURL returns the base URL of the GitHub instance
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RateLimiter returns the client's rate limiter
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// query executes a GraphQL query with retry logic
func (c *Client) query(ctx context.Context, operation string, q interface{}, variables map[string]interface{}) error {
	return c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		start := time.Now()
		err := c.graphql.Query(ctx, q, variables)
		duration := time.Since(start)

		if err != nil {
			wrapped := WrapError(err, operation, c.baseURL)
			c.logger.Debug("GitHub GraphQL query failed",
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", wrapped)
			return wrapped
		}

		c.logger.Debug("GitHub GraphQL query completed",
			"operation", operation,
			"duration_ms", duration.Milliseconds())
		return nil
	})
}

func (c *Client) updateRateLimits(ctx context.Context) error {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return WrapError(err, "GetRateLimits", c.baseURL)
	}
	if limits != nil && limits.GraphQL != nil {
		c.rateLimiter.UpdateLimits(limits.GraphQL.Remaining, limits.GraphQL.Limit, limits.GraphQL.Reset.Time)
	}
	return nil
}

// RateLimitStatus returns the GraphQL quota as last reported by GitHub
func (c *Client) RateLimitStatus(ctx context.Context) (*github.Rate, error) {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return nil, WrapError(err, "GetRateLimits", c.baseURL)
	}
	if limits == nil || limits.GraphQL == nil {
		return nil, fmt.Errorf("rate limit response has no graphql section")
	}
	return limits.GraphQL, nil
}
