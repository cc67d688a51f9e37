package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"orgsync/pkg/manifest"
)

// Client implements the APIClient interface using the GitHub REST API, with
// GraphQL for organization-wide listings.
type Client struct {
	client  *github.Client
	graphql *githubv4.Client
	http    *http.Client
	limiter *RateLimiter
	retry   *RetryConfig
}

// Ensure Client implements APIClient.
var _ APIClient = (*Client)(nil)

// NewClient creates a new GitHub API client with the provided token
func NewClient(token string) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return newClient(oauth2.NewClient(context.Background(), ts))
}

// NewClientFromApp creates a client authenticated as a GitHub App installation.
func NewClientFromApp(appID, installationID int64, privateKeyPath string) (*Client, error) {
	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}
	return newClient(&http.Client{Transport: itr}), nil
}

func newClient(httpClient *http.Client) *Client {
	return &Client{
		client:  github.NewClient(httpClient),
		graphql: githubv4.NewClient(httpClient),
		http:    httpClient,
		limiter: NewRateLimiter(nil),
		retry:   DefaultRetryConfig(),
	}
}

// SetBaseURL points the client at a GitHub Enterprise Server API, e.g.
// https://github.example.com/api/v3/. GraphQL is derived from the same host.
func (c *Client) SetBaseURL(baseURL string) error {
	enterprise, err := c.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return fmt.Errorf("invalid GitHub base URL %q: %w", baseURL, err)
	}
	c.client = enterprise
	c.graphql = githubv4.NewEnterpriseClient(graphQLURL(enterprise.BaseURL.String()), c.http)
	return nil
}

func graphQLURL(restURL string) string {
	trimmed := strings.TrimSuffix(restURL, "/")
	if strings.HasSuffix(trimmed, "/api/v3") {
		return strings.TrimSuffix(trimmed, "/v3") + "/graphql"
	}
	return trimmed + "/graphql"
}

// SetRetryConfig replaces the retry policy; nil restores the default.
func (c *Client) SetRetryConfig(cfg *RetryConfig) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	c.retry = cfg
}

// RateLimit reports the pacing statistics gathered so far and the wait the
// next call would incur.
func (c *Client) RateLimit() (RateLimiterStats, time.Duration) {
	return c.limiter.Stats(), c.limiter.Delay()
}

// call runs one API request under the rate limiter and retry policy.
func (c *Client) call(ctx context.Context, resource string, fn func() (*github.Response, error)) error {
	return WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := fn()
		c.limiter.Observe(resp)
		if err != nil {
			return WrapGitHubError(err, resource)
		}
		return nil
	}, c.retry)
}

func repoResource(owner, name string) string {
	return fmt.Sprintf("repository %s/%s", owner, name)
}

// GetRepository retrieves a repository by owner and name
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*Repository, error) {
	var repo *github.Repository
	err := c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = c.client.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertGitHubRepository(repo), nil
}

// CreateRepository creates a repository in the organization, from a template
// when one is given.
func (c *Client) CreateRepository(ctx context.Context, owner string, spec NewRepository) (*Repository, error) {
	var created *github.Repository
	resource := repoResource(owner, spec.Name)

	if spec.Template != "" {
		tOwner, tName := owner, spec.Template
		if o, n, ok := strings.Cut(spec.Template, "/"); ok {
			tOwner, tName = o, n
		}
		req := &github.TemplateRepoRequest{
			Name:    github.String(spec.Name),
			Owner:   github.String(owner),
			Private: github.Bool(spec.Visibility != "public"),
		}
		if spec.Description != "" {
			req.Description = github.String(spec.Description)
		}
		err := c.call(ctx, resource, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			created, resp, err = c.client.Repositories.CreateFromTemplate(ctx, tOwner, tName, req)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		return convertGitHubRepository(created), nil
	}

	repo := &github.Repository{
		Name: github.String(spec.Name),
	}
	if spec.Description != "" {
		repo.Description = github.String(spec.Description)
	}
	if spec.Visibility != "" {
		repo.Visibility = github.String(spec.Visibility)
	}

	err := c.call(ctx, resource, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = c.client.Repositories.Create(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertGitHubRepository(created), nil
}

// EditRepository applies a batched settings edit in one call.
func (c *Client) EditRepository(ctx context.Context, owner, name string, edit RepositoryEdit) error {
	repo := &github.Repository{
		Description:         edit.Description,
		Visibility:          edit.Visibility,
		HasIssues:           edit.HasIssues,
		HasWiki:             edit.HasWiki,
		HasProjects:         edit.HasProjects,
		DefaultBranch:       edit.DefaultBranch,
		AllowSquashMerge:    edit.AllowSquashMerge,
		AllowMergeCommit:    edit.AllowMergeCommit,
		AllowRebaseMerge:    edit.AllowRebaseMerge,
		AllowAutoMerge:      edit.AllowAutoMerge,
		DeleteBranchOnMerge: edit.DeleteBranchOnMerge,
		AllowUpdateBranch:   edit.AllowUpdateBranch,
		Archived:            edit.Archived,
	}

	return c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.Edit(ctx, owner, name, repo)
		return resp, err
	})
}

// ReplaceTopics replaces all repository topics.
func (c *Client) ReplaceTopics(ctx context.Context, owner, name string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	return c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.ReplaceAllTopics(ctx, owner, name, topics)
		return resp, err
	})
}

// orgRepositoriesQuery pages through an organization's repositories.
type orgRepositoriesQuery struct {
	Organization struct {
		Repositories struct {
			Nodes []struct {
				Name       string
				Visibility githubv4.RepositoryVisibility
				IsArchived bool
			}
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
		} `graphql:"repositories(first: 100, after: $cursor)"`
	} `graphql:"organization(login: $org)"`
}

// ListOrganizationRepositories lists every repository of org through GraphQL.
func (c *Client) ListOrganizationRepositories(ctx context.Context, org string) ([]OrgRepository, error) {
	var repos []OrgRepository
	var cursor *githubv4.String

	for {
		var query orgRepositoriesQuery
		variables := map[string]interface{}{
			"org":    githubv4.String(org),
			"cursor": cursor,
		}

		err := WithRetry(ctx, func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := c.graphql.Query(ctx, &query, variables); err != nil {
				return WrapGitHubError(err, fmt.Sprintf("repositories of organization %s", org))
			}
			return nil
		}, c.retry)
		if err != nil {
			return nil, err
		}

		for _, node := range query.Organization.Repositories.Nodes {
			repos = append(repos, OrgRepository{
				Name:       node.Name,
				Visibility: strings.ToLower(string(node.Visibility)),
				Archived:   node.IsArchived,
			})
		}

		if !query.Organization.Repositories.PageInfo.HasNextPage {
			break
		}
		end := query.Organization.Repositories.PageInfo.EndCursor
		cursor = &end
	}

	return repos, nil
}

// VulnerabilityAlertsEnabled reports whether Dependabot alerts are on.
func (c *Client) VulnerabilityAlertsEnabled(ctx context.Context, owner, name string) (bool, error) {
	var enabled bool
	err := c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		enabled, resp, err = c.client.Repositories.GetVulnerabilityAlerts(ctx, owner, name)
		return resp, err
	})
	return enabled, err
}

// EnableVulnerabilityAlerts turns on Dependabot alerts.
func (c *Client) EnableVulnerabilityAlerts(ctx context.Context, owner, name string) error {
	return c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		return c.client.Repositories.EnableVulnerabilityAlerts(ctx, owner, name)
	})
}

// AutomatedSecurityFixesEnabled reports whether Dependabot security updates are on.
func (c *Client) AutomatedSecurityFixesEnabled(ctx context.Context, owner, name string) (bool, error) {
	var fixes *github.AutomatedSecurityFixes
	err := c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		fixes, resp, err = c.client.Repositories.GetAutomatedSecurityFixes(ctx, owner, name)
		return resp, err
	})
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fixes.GetEnabled(), nil
}

// EnableAutomatedSecurityFixes turns on Dependabot security updates.
func (c *Client) EnableAutomatedSecurityFixes(ctx context.Context, owner, name string) error {
	return c.call(ctx, repoResource(owner, name), func() (*github.Response, error) {
		return c.client.Repositories.EnableAutomatedSecurityFixes(ctx, owner, name)
	})
}

// ListRulesets lists the rulesets defined on the repository itself.
func (c *Client) ListRulesets(ctx context.Context, owner, name string) ([]RulesetSummary, error) {
	var rulesets []*github.Ruleset
	err := c.call(ctx, fmt.Sprintf("rulesets of repository %s/%s", owner, name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		rulesets, resp, err = c.client.Repositories.GetAllRulesets(ctx, owner, name, false)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]RulesetSummary, 0, len(rulesets))
	for _, rs := range rulesets {
		summaries = append(summaries, RulesetSummary{
			ID:     rs.GetID(),
			Name:   rs.Name,
			Target: rs.GetTarget(),
		})
	}
	return summaries, nil
}

// GetRuleset reads a full repository ruleset in desired-state form.
func (c *Client) GetRuleset(ctx context.Context, owner, name string, id int64) (*manifest.Ruleset, error) {
	var rs *github.Ruleset
	err := c.call(ctx, fmt.Sprintf("ruleset %d of repository %s/%s", id, owner, name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		rs, resp, err = c.client.Repositories.GetRuleset(ctx, owner, name, id, false)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertGitHubRuleset(rs)
}

// CreateRuleset creates a repository ruleset.
func (c *Client) CreateRuleset(ctx context.Context, owner, name string, ruleset manifest.Ruleset) error {
	rs, err := buildRuleset(ruleset)
	if err != nil {
		return err
	}
	return c.call(ctx, fmt.Sprintf("ruleset %s of repository %s/%s", ruleset.Name, owner, name), func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.CreateRuleset(ctx, owner, name, rs)
		return resp, err
	})
}

// UpdateRuleset replaces an existing ruleset.
func (c *Client) UpdateRuleset(ctx context.Context, owner, name string, id int64, ruleset manifest.Ruleset) error {
	rs, err := buildRuleset(ruleset)
	if err != nil {
		return err
	}
	return c.call(ctx, fmt.Sprintf("ruleset %s of repository %s/%s", ruleset.Name, owner, name), func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.UpdateRuleset(ctx, owner, name, id, rs)
		return resp, err
	})
}

// buildRuleset converts a desired ruleset into the API representation.
func buildRuleset(ruleset manifest.Ruleset) (*github.Ruleset, error) {
	rs := &github.Ruleset{
		Name:        ruleset.Name,
		Target:      github.String(ruleset.Target),
		Enforcement: ruleset.Enforcement,
	}

	include := ruleset.Conditions.RefName.Include
	exclude := ruleset.Conditions.RefName.Exclude
	if len(include) > 0 || len(exclude) > 0 {
		if include == nil {
			include = []string{}
		}
		if exclude == nil {
			exclude = []string{}
		}
		rs.Conditions = &github.RulesetConditions{
			RefName: &github.RulesetRefConditionParameters{Include: include, Exclude: exclude},
		}
	}

	for _, actor := range ruleset.BypassActors {
		a := &github.BypassActor{
			ActorID:   github.Int64(actor.ActorID),
			ActorType: github.String(actor.ActorType),
		}
		if actor.BypassMode != "" {
			a.BypassMode = github.String(actor.BypassMode)
		}
		rs.BypassActors = append(rs.BypassActors, a)
	}

	for _, rule := range ruleset.Rules {
		r := &github.RepositoryRule{Type: rule.Type}
		if len(rule.Parameters) > 0 {
			data, err := json.Marshal(rule.Parameters)
			if err != nil {
				return nil, fmt.Errorf("ruleset %s: invalid parameters for rule %s: %w", ruleset.Name, rule.Type, err)
			}
			raw := json.RawMessage(data)
			r.Parameters = &raw
		}
		rs.Rules = append(rs.Rules, r)
	}

	return rs, nil
}

// GetRequiredStatusChecks returns the required checks of a branch, or an
// empty set when the branch has none.
func (c *Client) GetRequiredStatusChecks(ctx context.Context, owner, name, branch string) (*StatusChecks, error) {
	var checks *github.RequiredStatusChecks
	err := c.call(ctx, fmt.Sprintf("branch protection %s/%s:%s", owner, name, branch), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		checks, resp, err = c.client.Repositories.GetRequiredStatusChecks(ctx, owner, name, branch)
		return resp, err
	})
	if IsNotFound(err) {
		return &StatusChecks{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := &StatusChecks{Strict: checks.Strict}
	if checks.Contexts != nil {
		result.Contexts = *checks.Contexts
	}
	return result, nil
}

// UpdateRequiredStatusChecks replaces the required checks of a protected branch.
func (c *Client) UpdateRequiredStatusChecks(ctx context.Context, owner, name, branch string, checks StatusChecks) error {
	req := &github.RequiredStatusChecksRequest{
		Strict:   github.Bool(checks.Strict),
		Contexts: checks.Contexts,
	}
	return c.call(ctx, fmt.Sprintf("branch protection %s/%s:%s", owner, name, branch), func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.UpdateRequiredStatusChecks(ctx, owner, name, branch, req)
		return resp, err
	})
}

func teamResource(org, slug string) string {
	return fmt.Sprintf("team %s/%s", org, slug)
}

// GetTeam retrieves a team by slug
func (c *Client) GetTeam(ctx context.Context, org, slug string) (*Team, error) {
	var team *github.Team
	err := c.call(ctx, teamResource(org, slug), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		team, resp, err = c.client.Teams.GetTeamBySlug(ctx, org, slug)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertGitHubTeam(team), nil
}

// CreateTeam creates a closed team, nested under ParentTeamID when set.
func (c *Client) CreateTeam(ctx context.Context, org string, spec NewTeam) (*Team, error) {
	newTeam := github.NewTeam{
		Name:    spec.Name,
		Privacy: github.String("closed"),
	}
	if spec.Description != "" {
		newTeam.Description = github.String(spec.Description)
	}
	if spec.ParentTeamID != 0 {
		newTeam.ParentTeamID = github.Int64(spec.ParentTeamID)
	}

	var team *github.Team
	err := c.call(ctx, teamResource(org, spec.Name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		team, resp, err = c.client.Teams.CreateTeam(ctx, org, newTeam)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertGitHubTeam(team), nil
}

// DeleteTeam deletes a team by slug
func (c *Client) DeleteTeam(ctx context.Context, org, slug string) error {
	return c.call(ctx, teamResource(org, slug), func() (*github.Response, error) {
		return c.client.Teams.DeleteTeamBySlug(ctx, org, slug)
	})
}

// ListChildTeams lists the direct child teams of a team.
func (c *Client) ListChildTeams(ctx context.Context, org, slug string) ([]Team, error) {
	opts := &github.ListOptions{PerPage: 100}
	var all []Team

	err := c.call(ctx, teamResource(org, slug), func() (*github.Response, error) {
		all = nil     // Reset on retry
		opts.Page = 0 // Reset pagination on retry

		for {
			teams, resp, err := c.client.Teams.ListChildTeamsByParentSlug(ctx, org, slug, opts)
			if err != nil {
				return resp, err
			}
			for _, t := range teams {
				all = append(all, *convertGitHubTeam(t))
			}
			if resp.NextPage == 0 {
				return resp, nil
			}
			opts.Page = resp.NextPage
		}
	})
	return all, err
}

// ListTeamMembers lists the logins of all team members.
func (c *Client) ListTeamMembers(ctx context.Context, org, slug string) ([]string, error) {
	opts := &github.TeamListTeamMembersOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var members []string

	err := c.call(ctx, teamResource(org, slug), func() (*github.Response, error) {
		members = nil // Reset on retry
		opts.Page = 0 // Reset pagination on retry

		for {
			users, resp, err := c.client.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
			if err != nil {
				return resp, err
			}
			for _, u := range users {
				members = append(members, u.GetLogin())
			}
			if resp.NextPage == 0 {
				return resp, nil
			}
			opts.Page = resp.NextPage
		}
	})
	return members, err
}

// AddTeamMember adds or invites login as a regular team member.
func (c *Client) AddTeamMember(ctx context.Context, org, slug, login string) error {
	opts := &github.TeamAddTeamMembershipOptions{Role: "member"}
	return c.call(ctx, fmt.Sprintf("user %s in team %s/%s", login, org, slug), func() (*github.Response, error) {
		_, resp, err := c.client.Teams.AddTeamMembershipBySlug(ctx, org, slug, login, opts)
		return resp, err
	})
}

// RemoveTeamMember removes login from the team.
func (c *Client) RemoveTeamMember(ctx context.Context, org, slug, login string) error {
	return c.call(ctx, fmt.Sprintf("user %s in team %s/%s", login, org, slug), func() (*github.Response, error) {
		return c.client.Teams.RemoveTeamMembershipBySlug(ctx, org, slug, login)
	})
}

// repositoryPermissions orders API permissions from strongest to weakest.
var repositoryPermissions = []string{"admin", "maintain", "push", "triage", "pull"}

// GetTeamRepositoryPermission returns the team's API permission on repo, or
// "" when the team has no access.
func (c *Client) GetTeamRepositoryPermission(ctx context.Context, org, slug, repo string) (string, error) {
	var r *github.Repository
	err := c.call(ctx, fmt.Sprintf("team %s/%s on repository %s/%s", org, slug, org, repo), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = c.client.Teams.IsTeamRepoBySlug(ctx, org, slug, org, repo)
		return resp, err
	})
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	for _, p := range repositoryPermissions {
		if r.Permissions[p] {
			return p, nil
		}
	}
	return "", nil
}

// SetTeamRepositoryPermission grants the team an API permission
// (pull, triage, push, maintain, admin) on an organization repository.
func (c *Client) SetTeamRepositoryPermission(ctx context.Context, org, slug, repo, permission string) error {
	opts := &github.TeamAddTeamRepoOptions{Permission: permission}
	return c.call(ctx, fmt.Sprintf("team %s/%s on repository %s/%s", org, slug, org, repo), func() (*github.Response, error) {
		return c.client.Teams.AddTeamRepoBySlug(ctx, org, slug, org, repo, opts)
	})
}

// ListTeamRepositories lists the names of the repositories the team has
// access to.
func (c *Client) ListTeamRepositories(ctx context.Context, org, slug string) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	var names []string

	err := c.call(ctx, teamResource(org, slug), func() (*github.Response, error) {
		names = nil
		opts.Page = 0

		for {
			repos, resp, err := c.client.Teams.ListTeamReposBySlug(ctx, org, slug, opts)
			if err != nil {
				return resp, err
			}
			for _, r := range repos {
				names = append(names, r.GetName())
			}
			if resp.NextPage == 0 {
				return resp, nil
			}
			opts.Page = resp.NextPage
		}
	})
	return names, err
}

// RemoveTeamRepository revokes the team's access to an organization
// repository.
func (c *Client) RemoveTeamRepository(ctx context.Context, org, slug, repo string) error {
	return c.call(ctx, fmt.Sprintf("team %s/%s on repository %s/%s", org, slug, org, repo), func() (*github.Response, error) {
		return c.client.Teams.RemoveTeamRepoBySlug(ctx, org, slug, org, repo)
	})
}

// GetUser looks up an account; an empty login returns the authenticated user.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var user *github.User
	resource := "authenticated user"
	if login != "" {
		resource = fmt.Sprintf("user %s", login)
	}
	err := c.call(ctx, resource, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		user, resp, err = c.client.Users.Get(ctx, login)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &User{Login: user.GetLogin(), Name: user.GetName()}, nil
}

func issueResource(owner, repo string, number int) string {
	return fmt.Sprintf("issue %s/%s#%d", owner, repo, number)
}

// CreateIssueComment posts a comment on an issue.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	return c.call(ctx, issueResource(owner, repo, number), func() (*github.Response, error) {
		_, resp, err := c.client.Issues.CreateComment(ctx, owner, repo, number, comment)
		return resp, err
	})
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, owner, repo string, number int) error {
	req := &github.IssueRequest{State: github.String("closed")}
	return c.call(ctx, issueResource(owner, repo, number), func() (*github.Response, error) {
		_, resp, err := c.client.Issues.Edit(ctx, owner, repo, number, req)
		return resp, err
	})
}

// AddIssueLabels adds labels to an issue.
func (c *Client) AddIssueLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	return c.call(ctx, issueResource(owner, repo, number), func() (*github.Response, error) {
		_, resp, err := c.client.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
		return resp, err
	})
}

// GetFile reads a file through the contents API at ref (empty for the
// default branch).
func (c *Client) GetFile(ctx context.Context, owner, repo, path, ref string) (*FileContent, error) {
	var file *github.RepositoryContent
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	err := c.call(ctx, fmt.Sprintf("file %s in repository %s/%s", path, owner, repo), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, _, resp, err = c.client.Repositories.GetContents(ctx, owner, repo, path, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, NewGitHubError(ErrorTypeValidation, fmt.Sprintf("%s is a directory", path), nil)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &FileContent{Path: file.GetPath(), SHA: file.GetSHA(), Content: []byte(content)}, nil
}

// PutFile creates a file, or updates it when sha identifies the current blob.
func (c *Client) PutFile(ctx context.Context, owner, repo, path, message string, content []byte, sha string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
	}
	resource := fmt.Sprintf("file %s in repository %s/%s", path, owner, repo)

	if sha == "" {
		return c.call(ctx, resource, func() (*github.Response, error) {
			_, resp, err := c.client.Repositories.CreateFile(ctx, owner, repo, path, opts)
			return resp, err
		})
	}

	opts.SHA = github.String(sha)
	return c.call(ctx, resource, func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
		return resp, err
	})
}

// DeleteFile removes a file; sha must be the blob SHA of the current content.
func (c *Client) DeleteFile(ctx context.Context, owner, repo, path, message, sha string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(sha),
	}
	return c.call(ctx, fmt.Sprintf("file %s in repository %s/%s", path, owner, repo), func() (*github.Response, error) {
		_, resp, err := c.client.Repositories.DeleteFile(ctx, owner, repo, path, opts)
		return resp, err
	})
}

// convertGitHubRepository converts a GitHub API repository to our internal type
func convertGitHubRepository(repo *github.Repository) *Repository {
	visibility := repo.GetVisibility()
	if visibility == "" {
		visibility = "public"
		if repo.GetPrivate() {
			visibility = "private"
		}
	}

	return &Repository{
		ID:                  repo.GetID(),
		Name:                repo.GetName(),
		FullName:            repo.GetFullName(),
		Description:         repo.GetDescription(),
		Visibility:          visibility,
		Private:             repo.GetPrivate(),
		HasIssues:           repo.GetHasIssues(),
		HasWiki:             repo.GetHasWiki(),
		HasProjects:         repo.GetHasProjects(),
		DefaultBranch:       repo.GetDefaultBranch(),
		AllowSquashMerge:    repo.GetAllowSquashMerge(),
		AllowMergeCommit:    repo.GetAllowMergeCommit(),
		AllowRebaseMerge:    repo.GetAllowRebaseMerge(),
		AllowAutoMerge:      repo.GetAllowAutoMerge(),
		DeleteBranchOnMerge: repo.GetDeleteBranchOnMerge(),
		AllowUpdateBranch:   repo.GetAllowUpdateBranch(),
		Archived:            repo.GetArchived(),
		Topics:              repo.Topics,
	}
}

// convertGitHubRuleset converts an API ruleset to desired-state form.
// Rule parameters are decoded from JSON, so numbers become float64.
func convertGitHubRuleset(rs *github.Ruleset) (*manifest.Ruleset, error) {
	out := &manifest.Ruleset{
		Name:        rs.Name,
		Target:      rs.GetTarget(),
		Enforcement: rs.Enforcement,
	}

	if rs.Conditions != nil && rs.Conditions.RefName != nil {
		out.Conditions.RefName.Include = rs.Conditions.RefName.Include
		out.Conditions.RefName.Exclude = rs.Conditions.RefName.Exclude
	}

	for _, a := range rs.BypassActors {
		out.BypassActors = append(out.BypassActors, manifest.BypassActor{
			ActorID:    a.GetActorID(),
			ActorType:  a.GetActorType(),
			BypassMode: a.GetBypassMode(),
		})
	}

	for _, rule := range rs.Rules {
		r := manifest.Rule{Type: rule.Type}
		if rule.Parameters != nil {
			if err := json.Unmarshal(*rule.Parameters, &r.Parameters); err != nil {
				return nil, fmt.Errorf("ruleset %s: failed to decode %s parameters: %w", rs.Name, rule.Type, err)
			}
		}
		out.Rules = append(out.Rules, r)
	}

	return out, nil
}

// convertGitHubTeam converts a GitHub API team to our internal type
func convertGitHubTeam(team *github.Team) *Team {
	t := &Team{
		ID:          team.GetID(),
		Name:        team.GetName(),
		Slug:        team.GetSlug(),
		Description: team.GetDescription(),
	}
	if team.Parent != nil {
		t.ParentSlug = team.Parent.GetSlug()
	}
	return t
}
