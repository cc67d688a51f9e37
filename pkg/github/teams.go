package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"orgsync/internal/logging"
	"orgsync/pkg/manifest"
)

// MembershipResult is the outcome of a membership change.
type MembershipResult struct {
	Team           string            `json:"team"`
	Added          []string          `json:"added"`
	Removed        []string          `json:"removed"`
	AlreadyMembers []string          `json:"already_members"`
	NotFound       []string          `json:"not_found"`
	Failed         map[string]string `json:"failed,omitempty"`
}

// Markdown renders the result as a bulleted summary for issue comments.
func (m *MembershipResult) Markdown() string {
	var b strings.Builder
	line := func(label string, logins []string) {
		if len(logins) == 0 {
			return
		}
		quoted := make([]string, len(logins))
		for i, l := range logins {
			quoted[i] = "@" + l
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", label, strings.Join(quoted, ", "))
	}
	line("Added", m.Added)
	line("Removed", m.Removed)
	line("Already members", m.AlreadyMembers)
	line("Not found", m.NotFound)
	for _, login := range sortedKeys(m.Failed) {
		fmt.Fprintf(&b, "- **Failed** @%s: %s\n", login, m.Failed[login])
	}
	if b.Len() == 0 {
		return "_No membership changes were necessary._\n"
	}
	return b.String()
}

// SubTeamResult is the outcome of a sub-team sync.
type SubTeamResult struct {
	Created  []string `json:"created"`
	Existing []string `json:"existing"`
	Deleted  []string `json:"deleted"`
}

// TeamSyncer reconciles team membership, sub-teams and repository access.
type TeamSyncer struct {
	client APIClient
	org    string
	log    *logging.Logger
}

// NewTeamSyncer creates a team syncer for org.
func NewTeamSyncer(client APIClient, org string, log *logging.Logger) *TeamSyncer {
	return &TeamSyncer{client: client, org: org, log: log}
}

// SyncMembership makes the team's members exactly desired: it adds
// desired minus current and removes current minus desired. An empty desired
// list removes everyone.
func (s *TeamSyncer) SyncMembership(ctx context.Context, slug string, desired []string, opts ReconcileOptions) (*MembershipResult, error) {
	current, err := s.client.ListTeamMembers(ctx, s.org, slug)
	if err != nil {
		return nil, err
	}

	want := loginSet(desired)
	var remove []string
	for _, login := range current {
		if _, ok := want[strings.ToLower(login)]; !ok {
			remove = append(remove, login)
		}
	}

	return s.apply(ctx, slug, current, desired, remove, opts), nil
}

// ApplyMembership adds and removes the given logins, leaving other members
// untouched. Removing a login that is not a member is a no-op.
func (s *TeamSyncer) ApplyMembership(ctx context.Context, slug string, add, remove []string, opts ReconcileOptions) (*MembershipResult, error) {
	current, err := s.client.ListTeamMembers(ctx, s.org, slug)
	if err != nil {
		return nil, err
	}

	have := loginSet(current)
	var present []string
	for _, login := range remove {
		if actual, ok := have[strings.ToLower(login)]; ok {
			present = append(present, actual)
		} else {
			s.log.Debug("%s is not a member of %s", login, slug)
		}
	}

	return s.apply(ctx, slug, current, add, present, opts), nil
}

func (s *TeamSyncer) apply(ctx context.Context, slug string, current, add, remove []string, opts ReconcileOptions) *MembershipResult {
	result := &MembershipResult{Team: slug, Failed: map[string]string{}}
	have := loginSet(current)

	for _, login := range dedupe(add) {
		if _, ok := have[strings.ToLower(login)]; ok {
			result.AlreadyMembers = append(result.AlreadyMembers, login)
			continue
		}

		if _, err := s.client.GetUser(ctx, login); err != nil {
			if IsNotFound(err) {
				s.log.Warn("User %s does not exist, skipping", login)
				result.NotFound = append(result.NotFound, login)
				continue
			}
			result.Failed[login] = err.Error()
			continue
		}

		if !opts.DryRun {
			if err := s.client.AddTeamMember(ctx, s.org, slug, login); err != nil {
				s.log.Warn("Failed to add %s to %s: %v", login, slug, err)
				result.Failed[login] = err.Error()
				continue
			}
		}
		s.log.Debug("Added %s to %s", login, slug)
		result.Added = append(result.Added, login)
	}

	for _, login := range dedupe(remove) {
		if !opts.DryRun {
			if err := s.client.RemoveTeamMember(ctx, s.org, slug, login); err != nil {
				s.log.Warn("Failed to remove %s from %s: %v", login, slug, err)
				result.Failed[login] = err.Error()
				continue
			}
		}
		s.log.Debug("Removed %s from %s", login, slug)
		result.Removed = append(result.Removed, login)
	}

	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	return result
}

// SyncSubTeams creates the listed sub-teams under the parent when missing.
// With opts.Prune, child teams that are not listed are deleted.
func (s *TeamSyncer) SyncSubTeams(ctx context.Context, parentSlug string, subTeams []manifest.TeamSpec, opts ReconcileOptions) (*SubTeamResult, error) {
	parent, err := s.client.GetTeam(ctx, s.org, parentSlug)
	if err != nil {
		return nil, err
	}

	children, err := s.client.ListChildTeams(ctx, s.org, parentSlug)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(children))
	for _, c := range children {
		existing[c.Slug] = true
	}

	result := &SubTeamResult{}
	wanted := make(map[string]bool, len(subTeams))
	var failed []error

	for _, spec := range subTeams {
		name := spec.DisplayName()
		slug := manifest.Slug(name)
		wanted[slug] = true

		if existing[slug] {
			result.Existing = append(result.Existing, slug)
			continue
		}
		if !opts.DryRun {
			if _, err := s.client.CreateTeam(ctx, s.org, NewTeam{Name: name, Description: spec.Description, ParentTeamID: parent.ID}); err != nil {
				failed = append(failed, fmt.Errorf("create sub-team %s: %w", name, err))
				continue
			}
		}
		s.log.Info("Created sub-team %s under %s", slug, parentSlug)
		result.Created = append(result.Created, slug)
	}

	if opts.Prune {
		for _, c := range children {
			if wanted[c.Slug] {
				continue
			}
			if !opts.DryRun {
				if err := s.client.DeleteTeam(ctx, s.org, c.Slug); err != nil {
					failed = append(failed, fmt.Errorf("delete sub-team %s: %w", c.Slug, err))
					continue
				}
			}
			s.log.Info("Deleted sub-team %s", c.Slug)
			result.Deleted = append(result.Deleted, c.Slug)
		}
	}

	return result, errors.Join(failed...)
}

// SyncRepositoryPermissions grants the team access to each repository.
// Entries without a permission use defaultPermission. Change keys are
// "repo_<name>". With opts.Prune, access to repositories that are not listed
// is revoked and recorded as "removed"; an empty list then revokes all.
func (s *TeamSyncer) SyncRepositoryPermissions(ctx context.Context, slug string, repos []manifest.TeamRepository, defaultPermission string, opts ReconcileOptions) (ChangeSet, error) {
	changes := ChangeSet{}
	var failed []error

	for _, repo := range repos {
		key := "repo_" + repo.Name
		perm := repo.Permission
		if perm == "" {
			perm = defaultPermission
		}
		apiPerm, err := RepositoryPermission(perm)
		if err != nil {
			changes[key] = ErrorPrefix + err.Error()
			failed = append(failed, err)
			continue
		}

		current, err := s.client.GetTeamRepositoryPermission(ctx, s.org, slug, repo.Name)
		if err != nil {
			changes[key] = ErrorPrefix + err.Error()
			failed = append(failed, fmt.Errorf("repository %s: %w", repo.Name, err))
			continue
		}
		if current == apiPerm {
			continue
		}

		if !opts.DryRun {
			if err := s.client.SetTeamRepositoryPermission(ctx, s.org, slug, repo.Name, apiPerm); err != nil {
				changes[key] = ErrorPrefix + err.Error()
				failed = append(failed, fmt.Errorf("repository %s: %w", repo.Name, err))
				continue
			}
		}
		changes[key] = transition(current, apiPerm)
	}

	if opts.Prune {
		failed = append(failed, s.revokeUnlisted(ctx, slug, repos, changes, opts)...)
	}
	return changes, errors.Join(failed...)
}

func (s *TeamSyncer) revokeUnlisted(ctx context.Context, slug string, repos []manifest.TeamRepository, changes ChangeSet, opts ReconcileOptions) []error {
	listed := make(map[string]bool, len(repos))
	for _, r := range repos {
		listed[strings.ToLower(r.Name)] = true
	}

	current, err := s.client.ListTeamRepositories(ctx, s.org, slug)
	if err != nil {
		return []error{fmt.Errorf("list repositories of %s: %w", slug, err)}
	}

	var failed []error
	for _, name := range current {
		if listed[strings.ToLower(name)] {
			continue
		}
		key := "repo_" + name
		if !opts.DryRun {
			if err := s.client.RemoveTeamRepository(ctx, s.org, slug, name); err != nil {
				changes[key] = ErrorPrefix + err.Error()
				failed = append(failed, fmt.Errorf("repository %s: %w", name, err))
				continue
			}
		}
		s.log.Info("Removed %s access to %s", slug, name)
		changes[key] = "removed"
	}
	return failed
}

// RepositoryPermission maps a configured permission to the API value:
// read→pull, write→push; admin, maintain, triage, pull and push pass through.
func RepositoryPermission(p string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "read", "pull":
		return "pull", nil
	case "write", "push":
		return "push", nil
	case "admin":
		return "admin", nil
	case "maintain":
		return "maintain", nil
	case "triage":
		return "triage", nil
	default:
		return "", fmt.Errorf("unknown repository permission %q", p)
	}
}

// loginSet indexes logins by lowercase form; logins are case-insensitive.
func loginSet(logins []string) map[string]string {
	set := make(map[string]string, len(logins))
	for _, l := range logins {
		set[strings.ToLower(l)] = l
	}
	return set
}

func dedupe(logins []string) []string {
	seen := make(map[string]bool, len(logins))
	var out []string
	for _, l := range logins {
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
