// Package githubtest provides a testify mock of github.APIClient.
package githubtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
)

// MockAPIClient is a mock implementation of APIClient for testing. Context
// arguments are not recorded; expectations list the remaining arguments.
type MockAPIClient struct {
	mock.Mock
}

var _ github.APIClient = (*MockAPIClient)(nil)

func (m *MockAPIClient) GetRepository(_ context.Context, owner, name string) (*github.Repository, error) {
	args := m.Called(owner, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.Repository), args.Error(1)
}

func (m *MockAPIClient) CreateRepository(_ context.Context, owner string, repo github.NewRepository) (*github.Repository, error) {
	args := m.Called(owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.Repository), args.Error(1)
}

func (m *MockAPIClient) EditRepository(_ context.Context, owner, name string, edit github.RepositoryEdit) error {
	args := m.Called(owner, name, edit)
	return args.Error(0)
}

func (m *MockAPIClient) ReplaceTopics(_ context.Context, owner, name string, topics []string) error {
	args := m.Called(owner, name, topics)
	return args.Error(0)
}

func (m *MockAPIClient) ListOrganizationRepositories(_ context.Context, org string) ([]github.OrgRepository, error) {
	args := m.Called(org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.OrgRepository), args.Error(1)
}

func (m *MockAPIClient) VulnerabilityAlertsEnabled(_ context.Context, owner, name string) (bool, error) {
	args := m.Called(owner, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockAPIClient) EnableVulnerabilityAlerts(_ context.Context, owner, name string) error {
	args := m.Called(owner, name)
	return args.Error(0)
}

func (m *MockAPIClient) AutomatedSecurityFixesEnabled(_ context.Context, owner, name string) (bool, error) {
	args := m.Called(owner, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockAPIClient) EnableAutomatedSecurityFixes(_ context.Context, owner, name string) error {
	args := m.Called(owner, name)
	return args.Error(0)
}

func (m *MockAPIClient) ListRulesets(_ context.Context, owner, name string) ([]github.RulesetSummary, error) {
	args := m.Called(owner, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.RulesetSummary), args.Error(1)
}

func (m *MockAPIClient) GetRuleset(_ context.Context, owner, name string, id int64) (*manifest.Ruleset, error) {
	args := m.Called(owner, name, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*manifest.Ruleset), args.Error(1)
}

func (m *MockAPIClient) CreateRuleset(_ context.Context, owner, name string, ruleset manifest.Ruleset) error {
	args := m.Called(owner, name, ruleset)
	return args.Error(0)
}

func (m *MockAPIClient) UpdateRuleset(_ context.Context, owner, name string, id int64, ruleset manifest.Ruleset) error {
	args := m.Called(owner, name, id, ruleset)
	return args.Error(0)
}

func (m *MockAPIClient) GetRequiredStatusChecks(_ context.Context, owner, name, branch string) (*github.StatusChecks, error) {
	args := m.Called(owner, name, branch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.StatusChecks), args.Error(1)
}

func (m *MockAPIClient) UpdateRequiredStatusChecks(_ context.Context, owner, name, branch string, checks github.StatusChecks) error {
	args := m.Called(owner, name, branch, checks)
	return args.Error(0)
}

func (m *MockAPIClient) GetTeam(_ context.Context, org, slug string) (*github.Team, error) {
	args := m.Called(org, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.Team), args.Error(1)
}

func (m *MockAPIClient) CreateTeam(_ context.Context, org string, team github.NewTeam) (*github.Team, error) {
	args := m.Called(org, team)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.Team), args.Error(1)
}

func (m *MockAPIClient) DeleteTeam(_ context.Context, org, slug string) error {
	args := m.Called(org, slug)
	return args.Error(0)
}

func (m *MockAPIClient) ListChildTeams(_ context.Context, org, slug string) ([]github.Team, error) {
	args := m.Called(org, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.Team), args.Error(1)
}

func (m *MockAPIClient) ListTeamMembers(_ context.Context, org, slug string) ([]string, error) {
	args := m.Called(org, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAPIClient) AddTeamMember(_ context.Context, org, slug, login string) error {
	args := m.Called(org, slug, login)
	return args.Error(0)
}

func (m *MockAPIClient) RemoveTeamMember(_ context.Context, org, slug, login string) error {
	args := m.Called(org, slug, login)
	return args.Error(0)
}

func (m *MockAPIClient) GetTeamRepositoryPermission(_ context.Context, org, slug, repo string) (string, error) {
	args := m.Called(org, slug, repo)
	return args.String(0), args.Error(1)
}

func (m *MockAPIClient) SetTeamRepositoryPermission(_ context.Context, org, slug, repo, permission string) error {
	args := m.Called(org, slug, repo, permission)
	return args.Error(0)
}

func (m *MockAPIClient) ListTeamRepositories(_ context.Context, org, slug string) ([]string, error) {
	args := m.Called(org, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAPIClient) RemoveTeamRepository(_ context.Context, org, slug, repo string) error {
	args := m.Called(org, slug, repo)
	return args.Error(0)
}

func (m *MockAPIClient) GetUser(_ context.Context, login string) (*github.User, error) {
	args := m.Called(login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.User), args.Error(1)
}

func (m *MockAPIClient) CreateIssueComment(_ context.Context, owner, repo string, number int, body string) error {
	args := m.Called(owner, repo, number, body)
	return args.Error(0)
}

func (m *MockAPIClient) CloseIssue(_ context.Context, owner, repo string, number int) error {
	args := m.Called(owner, repo, number)
	return args.Error(0)
}

func (m *MockAPIClient) AddIssueLabels(_ context.Context, owner, repo string, number int, labels []string) error {
	args := m.Called(owner, repo, number, labels)
	return args.Error(0)
}

func (m *MockAPIClient) GetFile(_ context.Context, owner, repo, path, ref string) (*github.FileContent, error) {
	args := m.Called(owner, repo, path, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*github.FileContent), args.Error(1)
}

func (m *MockAPIClient) PutFile(_ context.Context, owner, repo, path, message string, content []byte, sha string) error {
	args := m.Called(owner, repo, path, message, content, sha)
	return args.Error(0)
}

func (m *MockAPIClient) DeleteFile(_ context.Context, owner, repo, path, message, sha string) error {
	args := m.Called(owner, repo, path, message, sha)
	return args.Error(0)
}

// NotFound returns a 404 error as the client reports it.
func NotFound(resource string) error {
	return &github.GitHubError{Type: github.ErrorTypeNotFound, Message: "Resource not found", Resource: resource}
}
