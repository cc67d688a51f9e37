package github

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	ghauth "github.com/cli/go-gh/v2/pkg/auth"

	"orgsync/pkg/config"
)

// Token sources reported by TokenResolver.
const (
	TokenSourceEnv    = "GITHUB_TOKEN"
	TokenSourceConfig = "config"
	TokenSourceApp    = "github-app"
)

// TokenResolver finds a GitHub token: the GITHUB_TOKEN environment variable
// first, then the config file, then the gh CLI's stored credentials.
type TokenResolver struct {
	// lookupGH is auth.TokenForHost; replaced in tests.
	lookupGH func(host string) (string, string)
}

// NewTokenResolver creates a resolver backed by the gh CLI.
func NewTokenResolver() *TokenResolver {
	return &TokenResolver{lookupGH: ghauth.TokenForHost}
}

// Resolve returns the token and where it came from. An empty token means
// none is available.
func (tr *TokenResolver) Resolve(cfg *config.Config) (token, source string) {
	if t := strings.TrimSpace(os.Getenv(config.EnvToken)); t != "" {
		return t, TokenSourceEnv
	}
	if cfg != nil && strings.TrimSpace(cfg.GitHub.Token) != "" {
		return strings.TrimSpace(cfg.GitHub.Token), TokenSourceConfig
	}
	if tr.lookupGH != nil {
		if t, src := tr.lookupGH(hostFor(cfg)); t != "" {
			return t, "gh:" + src
		}
	}
	return "", ""
}

// hostFor returns the GitHub host for gh CLI lookups.
func hostFor(cfg *config.Config) string {
	if cfg == nil || cfg.GitHub.BaseURL == "" {
		return "github.com"
	}
	u, err := url.Parse(cfg.GitHub.BaseURL)
	if err != nil || u.Host == "" {
		return "github.com"
	}
	return u.Host
}

// NewClientFromConfig builds a client from configuration. GitHub App
// credentials are preferred over a token when both are configured.
func NewClientFromConfig(cfg *config.Config, resolver *TokenResolver) (*Client, string, error) {
	var client *Client
	var source string

	if cfg.GitHub.App.Configured() {
		c, err := NewClientFromApp(cfg.GitHub.App.AppID, cfg.GitHub.App.InstallationID, cfg.GitHub.App.PrivateKeyPath)
		if err != nil {
			return nil, "", err
		}
		client, source = c, TokenSourceApp
	} else {
		token, src := resolver.Resolve(cfg)
		if token == "" {
			return nil, "", fmt.Errorf("no GitHub credentials found\n\n%s", GetAuthInstructions())
		}
		client, source = NewClient(token), src
	}

	if cfg.GitHub.BaseURL != "" {
		if err := client.SetBaseURL(cfg.GitHub.BaseURL); err != nil {
			return nil, "", err
		}
	}
	return client, source, nil
}

// TokenInfo contains information about the authenticated identity
type TokenInfo struct {
	User   string `json:"user"`
	Source string `json:"source"`
}

// ValidateAccess checks the credentials by reading the authenticated user.
// GitHub App installations have no user, so for them the organization's
// repository listing is read instead.
func ValidateAccess(ctx context.Context, client APIClient, org, source string) (*TokenInfo, error) {
	if source == TokenSourceApp {
		if _, err := client.ListOrganizationRepositories(ctx, org); err != nil {
			return nil, fmt.Errorf("failed to validate GitHub App installation: %w", err)
		}
		return &TokenInfo{User: "app installation on " + org, Source: source}, nil
	}

	user, err := client.GetUser(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to validate GitHub token: %w", err)
	}
	return &TokenInfo{User: user.Login, Source: source}, nil
}

// GetAuthInstructions returns instructions for setting up GitHub authentication
func GetAuthInstructions() string {
	return `GitHub authentication is required. Use one of the following methods:

1. Environment Variable (recommended for CI):
   export GITHUB_TOKEN="your_token"

2. Configuration File (~/.orgsync/config.yaml):

   github:
     token: "your_token"

3. GitHub App installation:

   github:
     app:
       app_id: 12345
       installation_id: 67890
       private_key_path: /path/to/key.pem

4. The gh CLI: run "gh auth login".

The token needs the repo and admin:org scopes to manage repositories and teams.`
}
