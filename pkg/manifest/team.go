package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// TeamFile is the teams.yml file of record.
type TeamFile struct {
	Teams TeamSpec `yaml:"teams"`
}

// TeamSpec describes a team and, through DefaultSubTeams, its children.
// Sub-team entries traditionally use "name" where the parent uses "team_name".
type TeamSpec struct {
	TeamName              string           `yaml:"team_name,omitempty"`
	Name                  string           `yaml:"name,omitempty"`
	Description           string           `yaml:"description,omitempty"`
	Project               string           `yaml:"project,omitempty"`
	RepositoryPermission  string           `yaml:"repository_permission,omitempty"`
	RepositoryPermissions string           `yaml:"repository_permissions,omitempty"`
	Members               []string         `yaml:"members"`
	Repositories          []TeamRepository `yaml:"repositories,omitempty"`
	DefaultSubTeams       []TeamSpec       `yaml:"default_sub_teams,omitempty"`
}

// TeamRepository grants a team access to a repository. In YAML it is either a
// bare repository name or a mapping with name and permission.
type TeamRepository struct {
	Name       string `yaml:"name"`
	Permission string `yaml:"permission,omitempty"`
}

// UnmarshalYAML accepts both the scalar and mapping forms.
func (r *TeamRepository) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Name = node.Value
		return nil
	}
	type plain TeamRepository
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = TeamRepository(p)
	return nil
}

// DisplayName returns team_name, falling back to name.
func (t TeamSpec) DisplayName() string {
	if t.TeamName != "" {
		return t.TeamName
	}
	return t.Name
}

// Permission returns the default repository permission for the team.
func (t TeamSpec) Permission() string {
	if t.RepositoryPermission != "" {
		return t.RepositoryPermission
	}
	if t.RepositoryPermissions != "" {
		return t.RepositoryPermissions
	}
	return "read"
}

// NormalizedMembers returns the members as bare logins, without duplicates.
func (t TeamSpec) NormalizedMembers() []string {
	seen := make(map[string]bool, len(t.Members))
	out := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		login := NormalizeLogin(m)
		if login == "" || seen[strings.ToLower(login)] {
			continue
		}
		seen[strings.ToLower(login)] = true
		out = append(out, login)
	}
	return out
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// Slug derives the GitHub team slug from a team name.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugInvalid.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeLogin strips whitespace, quotes and a leading @ from a login.
func NormalizeLogin(login string) string {
	s := strings.TrimSpace(login)
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "@")
	return strings.TrimSpace(s)
}

// LoadTeam loads teams/<dir>/teams.yml.
func (s *Store) LoadTeam(dir string) (*TeamFile, error) {
	return LoadTeamFile(s.TeamPath(dir))
}

// SaveTeam writes teams/<dir>/teams.yml and returns its path.
func (s *Store) SaveTeam(dir string, team *TeamFile) (string, error) {
	path := s.TeamPath(dir)
	data, err := yaml.Marshal(team)
	if err != nil {
		return "", fmt.Errorf("failed to marshal team file: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// FindTeam locates the team directory whose teams.yml names the team, by
// team_name or by slug.
func (s *Store) FindTeam(teamName string) (string, *TeamFile, error) {
	dirs, err := s.ListTeams()
	if err != nil {
		return "", nil, err
	}

	want := Slug(teamName)
	for _, dir := range dirs {
		team, err := s.LoadTeam(dir)
		if err != nil {
			return "", nil, err
		}
		name := team.Teams.DisplayName()
		if strings.EqualFold(name, teamName) || Slug(name) == want {
			return dir, team, nil
		}
	}
	return "", nil, fmt.Errorf("%w: no teams.yml declares team %q", ErrNotFound, teamName)
}

// TeamRegistryFile at the workspace root lists the parent teams the
// organization keeps.
const TeamRegistryFile = "teams.yml"

// TeamRegistry is the decoded root teams.yml.
type TeamRegistry struct {
	Teams []TeamSpec `yaml:"teams"`
}

// Slugs returns the set of listed team slugs.
func (r *TeamRegistry) Slugs() map[string]bool {
	slugs := make(map[string]bool, len(r.Teams))
	for _, t := range r.Teams {
		slugs[Slug(t.DisplayName())] = true
	}
	return slugs
}

// LoadTeamRegistry reads the root teams.yml. A missing file returns an error
// wrapping ErrNotFound.
func (s *Store) LoadTeamRegistry() (*TeamRegistry, error) {
	path := filepath.Join(s.Root, TeamRegistryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var reg TeamRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, t := range reg.Teams {
		if t.DisplayName() == "" {
			return nil, fmt.Errorf("%s: teams[%d].team_name is required", path, i)
		}
	}
	return &reg, nil
}

// RemoveTeam deletes the teams/<dir> directory and returns the path its
// teams.yml had.
func (s *Store) RemoveTeam(dir string) (string, error) {
	path := s.TeamPath(dir)
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("failed to remove team directory %s: %w", dir, err)
	}
	return path, nil
}

// LoadTeamFile reads and decodes a teams.yml.
func LoadTeamFile(path string) (*TeamFile, error) {
	doc, err := LoadDocumentFile(path)
	if err != nil {
		return nil, err
	}
	if _, ok := doc.Section("teams"); !ok {
		return nil, fmt.Errorf("%s: missing top-level 'teams' mapping", path)
	}

	data, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	var team TeamFile
	if err := yaml.Unmarshal(data, &team); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if team.Teams.DisplayName() == "" {
		return nil, fmt.Errorf("%s: teams.team_name is required", path)
	}
	return &team, nil
}

// NewTeamFile scaffolds a team file. Sub-team templates may use the
// [team_name] and [project] placeholders in their names and descriptions.
func NewTeamFile(name, project, description string, members []string, subTeams []TeamSpec) *TeamFile {
	replacer := strings.NewReplacer("[team_name]", name, "[project]", project)

	subs := make([]TeamSpec, 0, len(subTeams))
	for _, tmpl := range subTeams {
		sub := tmpl
		sub.TeamName = replacer.Replace(sub.TeamName)
		sub.Name = replacer.Replace(sub.Name)
		sub.Description = replacer.Replace(sub.Description)
		if sub.Members == nil {
			sub.Members = []string{}
		}
		subs = append(subs, sub)
	}

	normalized := make([]string, 0, len(members))
	for _, m := range members {
		if login := NormalizeLogin(m); login != "" {
			normalized = append(normalized, login)
		}
	}

	return &TeamFile{Teams: TeamSpec{
		TeamName:             name,
		Description:          description,
		Project:              project,
		RepositoryPermission: "read",
		Members:              normalized,
		DefaultSubTeams:      subs,
	}}
}

// DefaultSubTeamTemplates are the sub-teams created for a new team.
var DefaultSubTeamTemplates = []TeamSpec{
	{Name: "[team_name]-maintainers", Description: "Maintainers of [project]", RepositoryPermission: "maintain"},
	{Name: "[team_name]-reviewers", Description: "Reviewers of [project]", RepositoryPermission: "write"},
}
