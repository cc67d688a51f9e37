package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"orgsync/internal/logging"
	"orgsync/pkg/form"
	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
)

// TeamReport is the outcome of syncing one team.
type TeamReport struct {
	Team        string
	Skipped     bool
	Membership  *github.MembershipResult
	Permissions github.ChangeSet
}

// TeamSyncResult is the outcome of syncing team files.
type TeamSyncResult struct {
	Teams  []*TeamReport
	Failed map[string]error
}

// Err returns a *github.PartialFailureError when any team failed.
func (r *TeamSyncResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	var succeeded []string
	for _, t := range r.Teams {
		if _, failed := r.Failed[t.Team]; !failed && !t.Skipped {
			succeeded = append(succeeded, t.Team)
		}
	}
	return github.NewPartialFailureError(succeeded, r.Failed)
}

// TeamWorkflow runs the team flows against one organization.
type TeamWorkflow struct {
	client github.APIClient
	syncer *github.TeamSyncer
	store  *manifest.Store
	opts   Options
	log    *logging.Logger
}

// NewTeamWorkflow creates the team flows.
func NewTeamWorkflow(client github.APIClient, store *manifest.Store, opts Options) *TeamWorkflow {
	return &TeamWorkflow{
		client: client,
		syncer: github.NewTeamSyncer(client, opts.Org, opts.Log),
		store:  store,
		opts:   opts,
		log:    opts.Log,
	}
}

// Sync makes GitHub match the teams.yml of each directory: the parent team's
// members and repository access first, then each default sub-team. Teams
// missing on GitHub are skipped with a warning. With opts.Prune, access to
// repositories a team no longer lists is revoked.
func (w *TeamWorkflow) Sync(ctx context.Context, dirs []string, opts github.ReconcileOptions) *TeamSyncResult {
	result := &TeamSyncResult{Failed: map[string]error{}}

	for _, dir := range dirs {
		file, err := w.store.LoadTeam(dir)
		if err != nil {
			w.log.Error("%s: %v", dir, err)
			result.Failed[dir] = err
			continue
		}

		w.log.Phase("Syncing team %s", file.Teams.DisplayName())
		specs := append([]manifest.TeamSpec{file.Teams}, file.Teams.DefaultSubTeams...)
		for i, spec := range specs {
			var inherited []manifest.TeamRepository
			if i > 0 {
				inherited = file.Teams.Repositories
			}
			report, err := w.syncSpec(ctx, spec, inherited, opts)
			result.Teams = append(result.Teams, report)
			if err != nil {
				w.log.Error("%s: %v", report.Team, err)
				result.Failed[report.Team] = err
			}
		}
	}
	return result
}

func (w *TeamWorkflow) syncSpec(ctx context.Context, spec manifest.TeamSpec, inherited []manifest.TeamRepository, opts github.ReconcileOptions) (*TeamReport, error) {
	slug := manifest.Slug(spec.DisplayName())
	report := &TeamReport{Team: slug}

	if _, err := w.client.GetTeam(ctx, w.opts.Org, slug); err != nil {
		if github.IsNotFound(err) {
			w.log.Warn("Team %s does not exist in %s, skipping", slug, w.opts.Org)
			report.Skipped = true
			return report, nil
		}
		return report, err
	}

	membership, err := w.syncer.SyncMembership(ctx, slug, spec.NormalizedMembers(), opts)
	if err != nil {
		return report, err
	}
	report.Membership = membership

	permissions, err := w.syncer.SyncRepositoryPermissions(ctx, slug, spec.Repositories, spec.Permission(), opts)
	report.Permissions = permissions
	for _, repo := range inherited {
		if permissions["repo_"+repo.Name] == "removed" {
			w.log.Warn("%s lost direct access to %s, which it still inherits from its parent team", slug, repo.Name)
		}
	}
	if err != nil {
		return report, err
	}
	if len(membership.Failed) > 0 {
		return report, fmt.Errorf("%d membership change(s) failed", len(membership.Failed))
	}
	return report, nil
}

// ApplyCommand applies a /teams command to GitHub and updates the team's
// file of record. A team without a teams.yml is changed on GitHub only.
func (w *TeamWorkflow) ApplyCommand(ctx context.Context, cmd *form.TeamCommand, opts github.ReconcileOptions) (*github.MembershipResult, error) {
	dir, file, err := w.store.FindTeam(cmd.Team)
	if err != nil && !errors.Is(err, manifest.ErrNotFound) {
		return nil, err
	}

	slug := manifest.Slug(cmd.Team)
	if file != nil {
		slug = manifest.Slug(file.Teams.DisplayName())
	} else {
		w.log.Warn("No teams.yml declares %s; the file of record will not be updated", cmd.Team)
	}

	var result *github.MembershipResult
	switch cmd.Operation {
	case form.OperationAdd:
		result, err = w.syncer.ApplyMembership(ctx, slug, cmd.Members, nil, opts)
	case form.OperationRemove:
		result, err = w.syncer.ApplyMembership(ctx, slug, nil, cmd.Members, opts)
	case form.OperationSync:
		result, err = w.syncer.SyncMembership(ctx, slug, cmd.Members, opts)
	default:
		return nil, fmt.Errorf("unsupported operation %q", cmd.Operation)
	}
	if err != nil {
		return nil, err
	}

	if file == nil || opts.DryRun {
		return result, nil
	}

	file.Teams.Members = updatedMembers(file.Teams.NormalizedMembers(), cmd, result)
	path, err := w.store.SaveTeam(dir, file)
	if err != nil {
		return result, fmt.Errorf("failed to write team file: %w", err)
	}
	if err := w.opts.recorder().Record(ctx, path); err != nil {
		return result, fmt.Errorf("failed to record %s: %w", path, err)
	}
	return result, nil
}

// updatedMembers returns the file's member list after a command. Logins that
// did not resolve or failed to apply are not written.
func updatedMembers(current []string, cmd *form.TeamCommand, result *github.MembershipResult) []string {
	rejected := map[string]bool{}
	for _, l := range result.NotFound {
		rejected[strings.ToLower(l)] = true
	}
	for l := range result.Failed {
		rejected[strings.ToLower(l)] = true
	}

	var members []string
	seen := map[string]bool{}
	add := func(l string) {
		key := strings.ToLower(l)
		if seen[key] || rejected[key] {
			return
		}
		seen[key] = true
		members = append(members, l)
	}

	switch cmd.Operation {
	case form.OperationAdd:
		for _, l := range current {
			add(l)
		}
		for _, l := range cmd.Members {
			add(l)
		}
	case form.OperationRemove:
		removed := map[string]bool{}
		for _, l := range cmd.Members {
			removed[strings.ToLower(l)] = true
		}
		for _, l := range current {
			if !removed[strings.ToLower(l)] {
				add(l)
			}
		}
	case form.OperationSync:
		for _, l := range cmd.Members {
			add(l)
		}
	}

	if members == nil {
		members = []string{}
	}
	return members
}

// SubTeams creates the team's default sub-teams on GitHub, deleting
// unlisted children with opts.Prune.
func (w *TeamWorkflow) SubTeams(ctx context.Context, team string, opts github.ReconcileOptions) (*github.SubTeamResult, error) {
	_, file, err := w.store.FindTeam(team)
	if err != nil {
		return nil, err
	}
	return w.syncer.SyncSubTeams(ctx, manifest.Slug(file.Teams.DisplayName()), file.Teams.DefaultSubTeams, opts)
}

// PruneResult is the outcome of removing teams the registry no longer lists.
type PruneResult struct {
	// Dirs are the team directories removed from the workspace
	Dirs []string
	// Teams are the GitHub teams deleted, sub-teams first
	Teams  []string
	Failed map[string]error
}

// Err returns a *github.PartialFailureError when any team could not be pruned.
func (r *PruneResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return github.NewPartialFailureError(r.Dirs, r.Failed)
}

// Prune removes every team directory whose team the root teams.yml does not
// list. Its GitHub team is deleted first, sub-teams included, then the
// directory leaves the workspace and the removal is recorded. Without a
// root teams.yml nothing is pruned.
func (w *TeamWorkflow) Prune(ctx context.Context, opts github.ReconcileOptions) (*PruneResult, error) {
	registry, err := w.store.LoadTeamRegistry()
	if errors.Is(err, manifest.ErrNotFound) {
		w.log.Warn("No %s at the workspace root, no teams are pruned", manifest.TeamRegistryFile)
		return &PruneResult{Failed: map[string]error{}}, nil
	}
	if err != nil {
		return nil, err
	}
	keep := registry.Slugs()

	dirs, err := w.store.ListTeams()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Failed: map[string]error{}}
	for _, dir := range dirs {
		file, err := w.store.LoadTeam(dir)
		if err != nil {
			w.log.Error("%s: %v", dir, err)
			result.Failed[dir] = err
			continue
		}
		slug := manifest.Slug(file.Teams.DisplayName())
		if keep[slug] {
			continue
		}

		w.log.Phase("Pruning team %s", slug)
		if err := w.deleteTeam(ctx, slug, result, opts); err != nil {
			w.log.Error("%s: %v", slug, err)
			result.Failed[dir] = err
			continue
		}
		if opts.DryRun {
			w.log.Info("Would remove %s", dir)
			result.Dirs = append(result.Dirs, dir)
			continue
		}

		path, err := w.store.RemoveTeam(dir)
		if err != nil {
			result.Failed[dir] = err
			continue
		}
		if err := w.opts.recorder().Record(ctx, path); err != nil {
			result.Failed[dir] = fmt.Errorf("failed to record removal of %s: %w", path, err)
			continue
		}
		w.log.Success("Removed %s", dir)
		result.Dirs = append(result.Dirs, dir)
	}
	return result, nil
}

// deleteTeam deletes a GitHub team after its children. A team that is already
// gone is not an error.
func (w *TeamWorkflow) deleteTeam(ctx context.Context, slug string, result *PruneResult, opts github.ReconcileOptions) error {
	children, err := w.client.ListChildTeams(ctx, w.opts.Org, slug)
	if github.IsNotFound(err) {
		w.log.Debug("Team %s does not exist in %s", slug, w.opts.Org)
		return nil
	}
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := w.deleteTeam(ctx, child.Slug, result, opts); err != nil {
			return err
		}
	}

	if !opts.DryRun {
		if err := w.client.DeleteTeam(ctx, w.opts.Org, slug); err != nil && !github.IsNotFound(err) {
			return fmt.Errorf("delete team %s: %w", slug, err)
		}
	}
	w.log.Info("Deleted team %s", slug)
	result.Teams = append(result.Teams, slug)
	return nil
}

// Init scaffolds teams/<slug>/teams.yml for a new team. An existing file is
// never overwritten.
func (w *TeamWorkflow) Init(name, project, description string, members []string) (string, error) {
	dir := manifest.Slug(name)
	if dir == "" {
		return "", fmt.Errorf("invalid team name %q", name)
	}
	if _, err := os.Stat(w.store.TeamPath(dir)); err == nil {
		return "", fmt.Errorf("%s already exists", w.store.TeamPath(dir))
	}

	file := manifest.NewTeamFile(name, project, description, members, manifest.DefaultSubTeamTemplates)
	return w.store.SaveTeam(dir, file)
}
