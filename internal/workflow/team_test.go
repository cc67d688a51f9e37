package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"orgsync/internal/logging"
	"orgsync/pkg/form"
	"orgsync/pkg/github"
	"orgsync/pkg/github/githubtest"
	"orgsync/pkg/manifest"
)

const platformYAML = `teams:
  team_name: platform
  members: ["@alice", "bob"]
  repositories:
    - svc-a
  default_sub_teams:
    - name: platform-admins
      members: [carol]
    - name: platform-ghost
      members: []
`

func newTeamStore(t *testing.T) *manifest.Store {
	t.Helper()
	store := manifest.NewStore(t.TempDir())
	path := store.TeamPath("platform")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(platformYAML), 0o644))
	return store
}

func newTeamWorkflow(client github.APIClient, store *manifest.Store, rec Recorder) *TeamWorkflow {
	return NewTeamWorkflow(client, store, Options{Org: org, Recorder: rec, Log: logging.New(nil, nil, false)})
}

func TestTeamWorkflow_Sync(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("GetTeam", org, "platform").Return(&github.Team{ID: 1, Slug: "platform"}, nil)
	client.On("GetTeam", org, "platform-admins").Return(&github.Team{ID: 2, Slug: "platform-admins"}, nil)
	client.On("GetTeam", org, "platform-ghost").Return(nil, githubtest.NotFound("team platform-ghost"))
	client.On("ListTeamMembers", org, "platform").Return([]string{"alice", "dave"}, nil)
	client.On("ListTeamMembers", org, "platform-admins").Return([]string{"carol"}, nil)
	client.On("GetUser", "bob").Return(&github.User{Login: "bob"}, nil)
	client.On("AddTeamMember", org, "platform", "bob").Return(nil)
	client.On("RemoveTeamMember", org, "platform", "dave").Return(nil)
	client.On("GetTeamRepositoryPermission", org, "platform", "svc-a").Return("pull", nil)

	result := newTeamWorkflow(client, newTeamStore(t), nil).Sync(context.Background(), []string{"platform"}, github.ReconcileOptions{})
	require.NoError(t, result.Err())
	require.Len(t, result.Teams, 3)

	parent := result.Teams[0]
	assert.Equal(t, "platform", parent.Team)
	assert.Equal(t, []string{"bob"}, parent.Membership.Added)
	assert.Equal(t, []string{"dave"}, parent.Membership.Removed)
	assert.Equal(t, []string{"alice"}, parent.Membership.AlreadyMembers)
	assert.Empty(t, parent.Permissions)

	assert.Equal(t, []string{"carol"}, result.Teams[1].Membership.AlreadyMembers)
	assert.True(t, result.Teams[2].Skipped)
	client.AssertExpectations(t)
}

func TestTeamWorkflow_SyncMissingFile(t *testing.T) {
	result := newTeamWorkflow(&githubtest.MockAPIClient{}, manifest.NewStore(t.TempDir()), nil).
		Sync(context.Background(), []string{"nobody"}, github.ReconcileOptions{})

	var partial *github.PartialFailureError
	require.ErrorAs(t, result.Err(), &partial)
	assert.Equal(t, []string{"nobody"}, partial.GetFailedOperations())
}

func TestTeamWorkflow_ApplyCommandAdd(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListTeamMembers", org, "platform").Return([]string{"alice", "bob"}, nil)
	client.On("GetUser", "erin").Return(&github.User{Login: "erin"}, nil)
	client.On("GetUser", "ghost").Return(nil, githubtest.NotFound("user ghost"))
	client.On("AddTeamMember", org, "platform", "erin").Return(nil)

	store := newTeamStore(t)
	rec := &fakeRecorder{}
	cmd := &form.TeamCommand{Team: "platform", Operation: form.OperationAdd, Members: []string{"erin", "ghost"}}

	result, err := newTeamWorkflow(client, store, rec).ApplyCommand(context.Background(), cmd, github.ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"erin"}, result.Added)
	assert.Equal(t, []string{"ghost"}, result.NotFound)

	file, err := store.LoadTeam("platform")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "erin"}, file.Teams.Members)
	assert.Len(t, file.Teams.DefaultSubTeams, 2)
	assert.Equal(t, []string{store.TeamPath("platform")}, rec.paths)
}

func TestTeamWorkflow_ApplyCommandRemove(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListTeamMembers", org, "platform").Return([]string{"alice", "bob"}, nil)
	client.On("RemoveTeamMember", org, "platform", "bob").Return(nil)

	store := newTeamStore(t)
	cmd := &form.TeamCommand{Team: "Platform", Operation: form.OperationRemove, Members: []string{"BOB"}}

	result, err := newTeamWorkflow(client, store, nil).ApplyCommand(context.Background(), cmd, github.ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, result.Removed)

	file, err := store.LoadTeam("platform")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, file.Teams.Members)
}

func TestTeamWorkflow_ApplyCommandSyncDryRun(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListTeamMembers", org, "platform").Return([]string{"alice", "bob"}, nil)
	client.On("GetUser", "zoe").Return(&github.User{Login: "zoe"}, nil)

	store := newTeamStore(t)
	cmd := &form.TeamCommand{Team: "platform", Operation: form.OperationSync, Members: []string{"zoe"}}

	result, err := newTeamWorkflow(client, store, nil).ApplyCommand(context.Background(), cmd, github.ReconcileOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"zoe"}, result.Added)
	assert.Equal(t, []string{"alice", "bob"}, result.Removed)

	file, err := store.LoadTeam("platform")
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice", "bob"}, file.Teams.Members)
}

func TestTeamWorkflow_ApplyCommandUnmanagedTeam(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListTeamMembers", org, "infra").Return([]string{}, nil)
	client.On("GetUser", "alice").Return(&github.User{Login: "alice"}, nil)
	client.On("AddTeamMember", org, "infra", "alice").Return(nil)

	rec := &fakeRecorder{}
	cmd := &form.TeamCommand{Team: "infra", Operation: form.OperationAdd, Members: []string{"alice"}}

	result, err := newTeamWorkflow(client, newTeamStore(t), rec).ApplyCommand(context.Background(), cmd, github.ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, result.Added)
	assert.Empty(t, rec.paths)
}

func TestTeamWorkflow_SubTeams(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("GetTeam", org, "platform").Return(&github.Team{ID: 7, Slug: "platform"}, nil)
	client.On("ListChildTeams", org, "platform").Return([]github.Team{{ID: 8, Slug: "platform-admins"}}, nil)
	client.On("CreateTeam", org, github.NewTeam{Name: "platform-ghost", ParentTeamID: 7}).Return(&github.Team{ID: 9, Slug: "platform-ghost"}, nil)

	result, err := newTeamWorkflow(client, newTeamStore(t), nil).SubTeams(context.Background(), "platform", github.ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"platform-ghost"}, result.Created)
	assert.Equal(t, []string{"platform-admins"}, result.Existing)
	client.AssertNotCalled(t, "DeleteTeam", mock.Anything, mock.Anything)
}

func TestTeamWorkflow_Init(t *testing.T) {
	store := manifest.NewStore(t.TempDir())
	w := newTeamWorkflow(&githubtest.MockAPIClient{}, store, nil)

	path, err := w.Init("Payments", "checkout", "Payments team", []string{"@alice"})
	require.NoError(t, err)
	assert.Equal(t, store.TeamPath("payments"), path)

	file, err := store.LoadTeam("payments")
	require.NoError(t, err)
	assert.Equal(t, "Payments", file.Teams.TeamName)
	assert.Equal(t, []string{"alice"}, file.Teams.Members)
	require.Len(t, file.Teams.DefaultSubTeams, 2)
	assert.Equal(t, "Payments-maintainers", file.Teams.DefaultSubTeams[0].Name)
	assert.Equal(t, "Maintainers of checkout", file.Teams.DefaultSubTeams[0].Description)

	_, err = w.Init("Payments", "checkout", "", nil)
	assert.ErrorContains(t, err, "already exists")

	_, err = w.Init("!!!", "", "", nil)
	assert.ErrorContains(t, err, "invalid team name")
}

func TestTeamWorkflow_SyncPruneRevokesRepositories(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("GetTeam", org, "platform").Return(&github.Team{ID: 1, Slug: "platform"}, nil)
	client.On("GetTeam", org, "platform-admins").Return(&github.Team{ID: 2, Slug: "platform-admins"}, nil)
	client.On("GetTeam", org, "platform-ghost").Return(nil, githubtest.NotFound("team platform-ghost"))
	client.On("ListTeamMembers", org, "platform").Return([]string{"alice", "bob"}, nil)
	client.On("ListTeamMembers", org, "platform-admins").Return([]string{"carol"}, nil)
	client.On("GetTeamRepositoryPermission", org, "platform", "svc-a").Return("pull", nil)
	client.On("ListTeamRepositories", org, "platform").Return([]string{"svc-a", "legacy"}, nil)
	client.On("RemoveTeamRepository", org, "platform", "legacy").Return(nil)
	client.On("ListTeamRepositories", org, "platform-admins").Return([]string{"svc-a"}, nil)
	client.On("RemoveTeamRepository", org, "platform-admins", "svc-a").Return(nil)

	result := newTeamWorkflow(client, newTeamStore(t), nil).Sync(context.Background(), []string{"platform"}, github.ReconcileOptions{Prune: true})
	require.NoError(t, result.Err())
	require.Len(t, result.Teams, 3)

	assert.Equal(t, github.ChangeSet{"repo_legacy": "removed"}, result.Teams[0].Permissions)
	assert.Equal(t, github.ChangeSet{"repo_svc-a": "removed"}, result.Teams[1].Permissions)
	client.AssertExpectations(t)
}

func newPruneStore(t *testing.T) *manifest.Store {
	t.Helper()
	store := newTeamStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Root, manifest.TeamRegistryFile), []byte("teams:\n  - team_name: platform\n"), 0o644))
	legacy := store.TeamPath("legacy")
	require.NoError(t, os.MkdirAll(filepath.Dir(legacy), 0o755))
	require.NoError(t, os.WriteFile(legacy, []byte("teams:\n  team_name: Legacy\n  members: []\n"), 0o644))
	return store
}

func TestTeamWorkflow_Prune(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListChildTeams", org, "legacy").Return([]github.Team{{Slug: "legacy-admins"}}, nil)
	client.On("ListChildTeams", org, "legacy-admins").Return([]github.Team{}, nil)
	client.On("DeleteTeam", org, "legacy-admins").Return(nil).Once()
	client.On("DeleteTeam", org, "legacy").Return(nil).Once()

	store := newPruneStore(t)
	rec := &fakeRecorder{}
	result, err := newTeamWorkflow(client, store, rec).Prune(context.Background(), github.ReconcileOptions{Prune: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"legacy"}, result.Dirs)
	assert.Equal(t, []string{"legacy-admins", "legacy"}, result.Teams)
	assert.NoDirExists(t, filepath.Dir(store.TeamPath("legacy")))
	assert.FileExists(t, store.TeamPath("platform"))
	assert.Equal(t, []string{store.TeamPath("legacy")}, rec.paths)
	client.AssertExpectations(t)
}

func TestTeamWorkflow_PruneTeamAlreadyGone(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListChildTeams", org, "legacy").Return(nil, githubtest.NotFound("team acme/legacy"))

	store := newPruneStore(t)
	result, err := newTeamWorkflow(client, store, nil).Prune(context.Background(), github.ReconcileOptions{Prune: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"legacy"}, result.Dirs)
	assert.Empty(t, result.Teams)
	assert.NoDirExists(t, filepath.Dir(store.TeamPath("legacy")))
	client.AssertNotCalled(t, "DeleteTeam", mock.Anything, mock.Anything)
}

func TestTeamWorkflow_PruneFailureKeepsDirectory(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListChildTeams", org, "legacy").Return([]github.Team{}, nil)
	client.On("DeleteTeam", org, "legacy").Return(errors.New("forbidden"))

	store := newPruneStore(t)
	rec := &fakeRecorder{}
	result, err := newTeamWorkflow(client, store, rec).Prune(context.Background(), github.ReconcileOptions{Prune: true})
	require.NoError(t, err)

	require.Contains(t, result.Failed, "legacy")
	assert.ErrorContains(t, result.Failed["legacy"], "delete team legacy: forbidden")
	var partial *github.PartialFailureError
	assert.ErrorAs(t, result.Err(), &partial)
	assert.FileExists(t, store.TeamPath("legacy"))
	assert.Empty(t, rec.paths)
}

func TestTeamWorkflow_PruneDryRun(t *testing.T) {
	client := &githubtest.MockAPIClient{}
	client.On("ListChildTeams", org, "legacy").Return([]github.Team{{Slug: "legacy-admins"}}, nil)
	client.On("ListChildTeams", org, "legacy-admins").Return([]github.Team{}, nil)

	store := newPruneStore(t)
	rec := &fakeRecorder{}
	result, err := newTeamWorkflow(client, store, rec).Prune(context.Background(), github.ReconcileOptions{Prune: true, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"legacy"}, result.Dirs)
	assert.Equal(t, []string{"legacy-admins", "legacy"}, result.Teams)
	assert.FileExists(t, store.TeamPath("legacy"))
	assert.Empty(t, rec.paths)
	client.AssertNotCalled(t, "DeleteTeam", mock.Anything, mock.Anything)
}

func TestTeamWorkflow_PruneWithoutRegistry(t *testing.T) {
	client := &githubtest.MockAPIClient{}

	result, err := newTeamWorkflow(client, newTeamStore(t), nil).Prune(context.Background(), github.ReconcileOptions{Prune: true})
	require.NoError(t, err)
	assert.Empty(t, result.Dirs)
	assert.NoError(t, result.Err())
	client.AssertNotCalled(t, "ListChildTeams", mock.Anything, mock.Anything)
}
