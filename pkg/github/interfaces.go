package github

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"orgsync/pkg/manifest"
)

// APIClient defines the interface for GitHub API operations
type APIClient interface {
	// Repository operations
	GetRepository(ctx context.Context, owner, name string) (*Repository, error)
	CreateRepository(ctx context.Context, owner string, repo NewRepository) (*Repository, error)
	EditRepository(ctx context.Context, owner, name string, edit RepositoryEdit) error
	ReplaceTopics(ctx context.Context, owner, name string, topics []string) error
	ListOrganizationRepositories(ctx context.Context, org string) ([]OrgRepository, error)

	// Security features
	VulnerabilityAlertsEnabled(ctx context.Context, owner, name string) (bool, error)
	EnableVulnerabilityAlerts(ctx context.Context, owner, name string) error
	AutomatedSecurityFixesEnabled(ctx context.Context, owner, name string) (bool, error)
	EnableAutomatedSecurityFixes(ctx context.Context, owner, name string) error

	// Ruleset operations
	ListRulesets(ctx context.Context, owner, name string) ([]RulesetSummary, error)
	GetRuleset(ctx context.Context, owner, name string, id int64) (*manifest.Ruleset, error)
	CreateRuleset(ctx context.Context, owner, name string, ruleset manifest.Ruleset) error
	UpdateRuleset(ctx context.Context, owner, name string, id int64, ruleset manifest.Ruleset) error

	// Branch protection operations
	GetRequiredStatusChecks(ctx context.Context, owner, name, branch string) (*StatusChecks, error)
	UpdateRequiredStatusChecks(ctx context.Context, owner, name, branch string, checks StatusChecks) error

	// Team operations
	GetTeam(ctx context.Context, org, slug string) (*Team, error)
	CreateTeam(ctx context.Context, org string, team NewTeam) (*Team, error)
	DeleteTeam(ctx context.Context, org, slug string) error
	ListChildTeams(ctx context.Context, org, slug string) ([]Team, error)
	ListTeamMembers(ctx context.Context, org, slug string) ([]string, error)
	AddTeamMember(ctx context.Context, org, slug, login string) error
	RemoveTeamMember(ctx context.Context, org, slug, login string) error
	GetTeamRepositoryPermission(ctx context.Context, org, slug, repo string) (string, error)
	SetTeamRepositoryPermission(ctx context.Context, org, slug, repo, permission string) error
	ListTeamRepositories(ctx context.Context, org, slug string) ([]string, error)
	RemoveTeamRepository(ctx context.Context, org, slug, repo string) error

	// User operations
	GetUser(ctx context.Context, login string) (*User, error)

	// Issue operations
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
	CloseIssue(ctx context.Context, owner, repo string, number int) error
	AddIssueLabels(ctx context.Context, owner, repo string, number int, labels []string) error

	// Contents operations
	GetFile(ctx context.Context, owner, repo, path, ref string) (*FileContent, error)
	PutFile(ctx context.Context, owner, repo, path, message string, content []byte, sha string) error
	DeleteFile(ctx context.Context, owner, repo, path, message, sha string) error
}

// ChangeSet maps a setting name to a description of what reconciliation did
// to it, e.g. "has_wiki" -> "true → false" or "ruleset_main" -> "created".
type ChangeSet map[string]string

// ErrorPrefix starts the value of a ChangeSet entry that failed to apply.
const ErrorPrefix = "error: "

// Keys returns the setting names in sorted order.
func (c ChangeSet) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Errors returns the entries that record a failure.
func (c ChangeSet) Errors() ChangeSet {
	failed := ChangeSet{}
	for k, v := range c {
		if strings.HasPrefix(v, ErrorPrefix) {
			failed[k] = v
		}
	}
	return failed
}

// HasErrors reports whether any entry records a failure.
func (c ChangeSet) HasErrors() bool {
	return len(c.Errors()) > 0
}

// Merge copies the entries of other into c.
func (c ChangeSet) Merge(other ChangeSet) {
	for k, v := range other {
		c[k] = v
	}
}

// Markdown renders the change set as a two-column table for issue comments.
func (c ChangeSet) Markdown() string {
	if len(c) == 0 {
		return "_No changes were necessary._\n"
	}

	var b strings.Builder
	b.WriteString("| Setting | Change |\n|---|---|\n")
	for _, k := range c.Keys() {
		fmt.Fprintf(&b, "| `%s` | %s |\n", k, strings.ReplaceAll(c[k], "|", `\|`))
	}
	return b.String()
}

// ReconcileOptions tunes a reconciliation pass.
type ReconcileOptions struct {
	// DryRun computes the change set without mutating calls.
	DryRun bool
	// Prune removes what GitHub has and the files of record no longer list:
	// extra sub-teams and team access to unlisted repositories.
	Prune bool
}
