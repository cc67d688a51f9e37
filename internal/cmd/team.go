package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"orgsync/internal/gitops"
	"orgsync/internal/workflow"
	"orgsync/pkg/form"
	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
	"orgsync/pkg/picker"
)

var (
	teamDryRun      bool
	teamChanged     bool
	teamOperation   string
	teamMembers     []string
	teamPrune       bool
	teamProject     string
	teamDescription string
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Team management commands",
	Long: `Commands for managing organization teams from teams/<name>/teams.yml.

Available commands:
  sync      - Make GitHub team membership and repository access match the files
  members   - Add, remove or replace members and update the team file
  subteams  - Create a team's default sub-teams
  init      - Scaffold a new team file`,
}

var teamSyncCmd = &cobra.Command{
	Use:   "sync [team-dir...]",
	Short: "Sync teams from their files of record",
	Long: `Sync teams from their files of record. Without arguments every team under
teams/ is synced; with --changed only the team files changed by the last push.

With --prune, team directories whose team the root teams.yml no longer lists
are removed together with their GitHub teams, and each synced team loses
access to repositories its file no longer lists.`,
	RunE: runTeamSync,
}

var teamMembersCmd = &cobra.Command{
	Use:   "members [team]",
	Short: "Change a team's members on GitHub and in its file of record",
	Example: `  orgsync team members platform --operation add --member alice --member bob
  orgsync team members platform --operation sync --member alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTeamMembers,
}

var teamSubTeamsCmd = &cobra.Command{
	Use:   "subteams <team>",
	Short: "Create the team's default sub-teams on GitHub",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamSubTeams,
}

var teamInitCmd = &cobra.Command{
	Use:     "init <name>",
	Short:   "Scaffold teams/<name>/teams.yml",
	Example: `  orgsync team init payments --project checkout --member alice --member bob`,
	Args:    cobra.ExactArgs(1),
	RunE:    runTeamInit,
}

func init() {
	for _, c := range []*cobra.Command{teamSyncCmd, teamMembersCmd, teamSubTeamsCmd} {
		c.Flags().BoolVar(&teamDryRun, "dry-run", false, "Preview changes without applying them")
	}
	teamSyncCmd.Flags().BoolVar(&teamChanged, "changed", false, "Sync the team files changed by the last push")
	teamMembersCmd.Flags().StringVar(&teamOperation, "operation", "", "add, remove or sync")
	teamMembersCmd.Flags().StringSliceVar(&teamMembers, "member", nil, "GitHub login (repeatable)")
	_ = teamMembersCmd.MarkFlagRequired("operation")
	teamSubTeamsCmd.Flags().BoolVar(&teamPrune, "prune", false, "Delete child teams that are not listed")
	teamSyncCmd.Flags().BoolVar(&teamPrune, "prune", false, "Remove unlisted teams and revoke access to unlisted repositories")
	teamInitCmd.Flags().StringVar(&teamProject, "project", "", "Project the team owns")
	teamInitCmd.Flags().StringVar(&teamDescription, "description", "", "Team description")
	teamInitCmd.Flags().StringSliceVar(&teamMembers, "member", nil, "GitHub login (repeatable)")

	teamCmd.AddCommand(teamSyncCmd, teamMembersCmd, teamSubTeamsCmd, teamInitCmd)
}

func runTeamSync(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}

	dirs, err := teamTargets(cmd, s, args)
	if err != nil {
		return err
	}
	if len(dirs) == 0 && !teamPrune {
		fmt.Fprintln(cmd.OutOrStdout(), "No team files to sync.")
		return nil
	}

	teams, err := s.teams()
	if err != nil {
		return err
	}

	dryRunNote(cmd, teamDryRun)
	opts := github.ReconcileOptions{DryRun: teamDryRun, Prune: teamPrune}
	if teamPrune {
		pruned, err := teams.Prune(cmd.Context(), opts)
		if err != nil {
			return err
		}
		displayPrune(cmd.OutOrStdout(), pruned, teamDryRun)
		if err := pruned.Err(); err != nil {
			s.log.Warn("%v", err)
		}
		dirs = withoutDirs(dirs, pruned.Dirs)
	}
	if len(dirs) == 0 {
		return nil
	}

	result := teams.Sync(cmd.Context(), dirs, opts)
	displayTeamReports(cmd.OutOrStdout(), s.cfg.GitHub.Organization, result, teamDryRun)
	if err := result.Err(); err != nil {
		s.log.Warn("%v", err)
	}
	return nil
}

func withoutDirs(dirs, removed []string) []string {
	gone := make(map[string]bool, len(removed))
	for _, d := range removed {
		gone[d] = true
	}
	var kept []string
	for _, d := range dirs {
		if !gone[d] {
			kept = append(kept, d)
		}
	}
	return kept
}

func teamTargets(cmd *cobra.Command, s *session, args []string) ([]string, error) {
	if teamChanged {
		changes, err := gitops.ChangedFiles(cmd.Context(), s.root)
		if err != nil {
			return nil, err
		}
		return changes.Teams, nil
	}
	if len(args) > 0 {
		dirs := make([]string, 0, len(args))
		for _, arg := range args {
			dirs = append(dirs, teamDir(s.root, arg))
		}
		return dirs, nil
	}
	return s.store.ListTeams()
}

// teamDir accepts a team directory name or a path to its teams.yml.
func teamDir(root, arg string) string {
	path := arg
	if abs, err := filepath.Abs(arg); err == nil {
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	if dir, ok := manifest.TeamFromPath(filepath.ToSlash(path)); ok {
		return dir
	}
	return arg
}

func runTeamMembers(cmd *cobra.Command, args []string) error {
	op := form.Operation(strings.ToLower(teamOperation))
	switch op {
	case form.OperationAdd, form.OperationRemove:
		if len(teamMembers) == 0 {
			return fmt.Errorf("--operation %s requires at least one --member", op)
		}
	case form.OperationSync:
	default:
		return fmt.Errorf("invalid operation %q: must be add, remove or sync", teamOperation)
	}

	s, err := newSession()
	if err != nil {
		return err
	}

	var team string
	if len(args) == 1 {
		team = args[0]
	} else {
		if !isInteractive() {
			return fmt.Errorf("no team given")
		}
		if team, err = pickTeam(s.store); err != nil {
			return err
		}
	}

	teams, err := s.teams()
	if err != nil {
		return err
	}

	members := make([]string, 0, len(teamMembers))
	for _, m := range teamMembers {
		if login := manifest.NormalizeLogin(m); login != "" {
			members = append(members, login)
		}
	}

	dryRunNote(cmd, teamDryRun)
	result, err := teams.ApplyCommand(cmd.Context(), &form.TeamCommand{Team: team, Operation: op, Members: members}, github.ReconcileOptions{DryRun: teamDryRun})
	if result != nil {
		displayMembership(cmd.OutOrStdout(), result)
	}
	return err
}

func pickTeam(store *manifest.Store) (string, error) {
	dirs, err := store.ListTeams()
	if err != nil {
		return "", err
	}
	options := make([]picker.Option, 0, len(dirs))
	for _, dir := range dirs {
		opt := picker.Option{Value: dir}
		if file, err := store.LoadTeam(dir); err == nil {
			opt.Value = file.Teams.DisplayName()
			opt.Description = file.Teams.Description
		}
		options = append(options, opt)
	}
	return pickerFactory().Pick("Team", options)
}

func runTeamSubTeams(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	teams, err := s.teams()
	if err != nil {
		return err
	}

	dryRunNote(cmd, teamDryRun)
	result, err := teams.SubTeams(cmd.Context(), args[0], github.ReconcileOptions{DryRun: teamDryRun, Prune: teamPrune})
	if result != nil {
		out := cmd.OutOrStdout()
		for _, slug := range result.Created {
			fmt.Fprintf(out, "  + %s\n", slug)
		}
		for _, slug := range result.Existing {
			fmt.Fprintf(out, "  = %s\n", slug)
		}
		for _, slug := range result.Deleted {
			fmt.Fprintf(out, "  ⚠️  %s (DELETED)\n", slug)
		}
	}
	return err
}

func runTeamInit(cmd *cobra.Command, args []string) error {
	cfg := current.cfg
	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return err
	}

	teams := workflow.NewTeamWorkflow(nil, manifest.NewStore(root), workflow.Options{
		Org: cfg.GitHub.Organization,
		Log: current.log,
	})
	path, err := teams.Init(args[0], teamProject, teamDescription, teamMembers)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Team file created at: %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "📝 Add repositories and sub-team members, then run: orgsync team sync")
	return nil
}
