package github

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jferrl/go-githubauth"
	"golang.org/x/oauth2"
)

// ClientFactory builds a Client per credential. Manual syncs arrive with
// the caller's token, so a long-lived client cannot be shared.
type ClientFactory struct {
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
	RetryConfig RetryConfig
	Transport   http.RoundTripper
	// SkipRateLimitBootstrap is forwarded to every client built
	SkipRateLimitBootstrap bool
	Logger                 *slog.Logger
}

func (f *ClientFactory) config() ClientConfig {
	return ClientConfig{
		BaseURL:                f.BaseURL,
		Timeout:                f.Timeout,
		MinInterval:            f.MinInterval,
		RetryConfig:            f.RetryConfig,
		Transport:              f.Transport,
		SkipRateLimitBootstrap: f.SkipRateLimitBootstrap,
		Logger:                 f.Logger,
	}
}

// ForToken returns a client authenticated with a personal access token
func (f *ClientFactory) ForToken(token string) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	cfg := f.config()
	cfg.Token = token
	return NewClient(cfg)
}

// ForTokenSource returns a client whose token is refreshed by ts
func (f *ClientFactory) ForTokenSource(ts oauth2.TokenSource) (*Client, error) {
	if ts == nil {
		return nil, fmt.Errorf("%w: no token source", ErrUnauthorized)
	}
	cfg := f.config()
	cfg.TokenSource = ts
	return NewClient(cfg)
}

// AppCredentials identifies a GitHub App installation
type AppCredentials struct {
	AppID          int64
	PrivateKey     string // PEM text or a path to a PEM file
	InstallationID int64
}

// Valid reports whether every field is set
func (a AppCredentials) Valid() bool {
	return a.AppID > 0 && a.PrivateKey != "" && a.InstallationID > 0
}

func loadPrivateKey(key string) ([]byte, error) {
	if strings.Contains(key, "-----BEGIN") {
		return []byte(key), nil
	}
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
	}
	return data, nil
}

// CredentialProvider supplies the credential for syncs that run without a
// user present, such as cron ticks. A personal token wins over an App.
type CredentialProvider struct {
	token  string
	source oauth2.TokenSource
}

// NewCredentialProvider builds a provider from a token or App installation.
// With neither configured the provider is valid but Available reports false.
func NewCredentialProvider(token string, app AppCredentials) (*CredentialProvider, error) {
	p := &CredentialProvider{token: strings.TrimSpace(token)}
	if p.token != "" || !app.Valid() {
		return p, nil
	}

	key, err := loadPrivateKey(app.PrivateKey)
	if err != nil {
		return nil, err
	}
	appSource, err := githubauth.NewApplicationTokenSource(app.AppID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App token source: %w", err)
	}
	p.source = oauth2.ReuseTokenSource(nil, githubauth.NewInstallationTokenSource(app.InstallationID, appSource))
	return p, nil
}

// Available reports whether any credential is configured
func (p *CredentialProvider) Available() bool {
	return p != nil && (p.token != "" || p.source != nil)
}

// Client builds a client for the configured credential
func (p *CredentialProvider) Client(f *ClientFactory) (*Client, error) {
	switch {
	case p == nil || !p.Available():
		return nil, fmt.Errorf("%w: no credential configured for unattended syncs", ErrUnauthorized)
	case p.token != "":
		return f.ForToken(p.token)
	default:
		return f.ForTokenSource(p.source)
	}
}
