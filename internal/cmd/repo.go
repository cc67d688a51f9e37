package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"orgsync/internal/gitops"
	"orgsync/internal/workflow"
	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
	"orgsync/pkg/picker"
)

var (
	repoDryRun    bool
	repoFile      string
	repoTemplate  string
	repoChanged   bool
	pickerFactory = picker.Default
	isInteractive = picker.IsInteractive
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Repository management commands",
	Long: `Commands for managing organization repositories from their files of record.

Available commands:
  create    - Create a repository from the defaults and optional overrides
  update    - Layer overrides over a repository's file of record and apply them
  apply     - Apply files of record to GitHub
  sync-all  - Apply every file of record and report untracked repositories
  validate  - Validate a repository configuration file

Each repository is described by repositories/<name>/repository.yml, merged over
the organization defaults before it is validated and applied.`,
}

var repoCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a repository and write its file of record",
	Example: `  orgsync repo create svc-payments
  orgsync repo create svc-payments --file overrides.yml --template service-template
  orgsync repo create svc-payments --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRepoCreate,
}

var repoUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Apply overrides to an existing repository and its file of record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoUpdate,
}

var repoApplyCmd = &cobra.Command{
	Use:   "apply [paths...]",
	Short: "Apply repository files of record to GitHub",
	Long: `Apply repository files of record to GitHub.

Arguments may be repository names or paths to repositories/<name>/repository.yml.
With --changed, the files changed by the triggering push are applied. Run in a
terminal without arguments to pick a repository interactively.`,
	Example: `  orgsync repo apply svc-a svc-b
  orgsync repo apply repositories/svc-a/repository.yml --dry-run
  orgsync repo apply --changed`,
	RunE: runRepoApply,
}

var repoSyncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Apply every file of record and report untracked repositories",
	Args:  cobra.NoArgs,
	RunE:  runRepoSyncAll,
}

var repoValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a repository configuration file",
	Long: `Validate a repository configuration file merged over the organization
defaults. GitHub is not contacted.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepoValidate,
}

func init() {
	for _, c := range []*cobra.Command{repoCreateCmd, repoUpdateCmd, repoApplyCmd, repoSyncAllCmd} {
		c.Flags().BoolVar(&repoDryRun, "dry-run", false, "Preview changes without applying them")
	}
	repoCreateCmd.Flags().StringVar(&repoFile, "file", "", "YAML file with settings layered over the defaults")
	repoCreateCmd.Flags().StringVar(&repoTemplate, "template", "", "Template repository to generate from")
	repoUpdateCmd.Flags().StringVar(&repoFile, "file", "", "YAML file with settings layered over the file of record")
	repoApplyCmd.Flags().BoolVar(&repoChanged, "changed", false, "Apply the files of record changed by the last push")

	repoCmd.AddCommand(repoCreateCmd, repoUpdateCmd, repoApplyCmd, repoSyncAllCmd, repoValidateCmd)
}

func loadOverrides() (manifest.Document, error) {
	if repoFile == "" {
		return manifest.Document{}, nil
	}
	doc, err := manifest.LoadDocumentFile(repoFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", repoFile, err)
	}
	return doc, nil
}

func runRepoCreate(cmd *cobra.Command, args []string) error {
	overrides, err := loadOverrides()
	if err != nil {
		return err
	}
	s, err := newSession()
	if err != nil {
		return err
	}
	repos, err := s.repositories()
	if err != nil {
		return err
	}

	dryRunNote(cmd, repoDryRun)
	result, err := repos.Create(cmd.Context(), args[0], overrides, repoTemplate, github.ReconcileOptions{DryRun: repoDryRun})
	return reportRepository(cmd, s, result, err)
}

func runRepoUpdate(cmd *cobra.Command, args []string) error {
	overrides, err := loadOverrides()
	if err != nil {
		return err
	}
	s, err := newSession()
	if err != nil {
		return err
	}
	repos, err := s.repositories()
	if err != nil {
		return err
	}

	dryRunNote(cmd, repoDryRun)
	result, err := repos.Update(cmd.Context(), args[0], overrides, github.ReconcileOptions{DryRun: repoDryRun})
	return reportRepository(cmd, s, result, err)
}

// reportRepository prints a single-repository result. Settings that could not
// be applied are reported but do not fail the command.
func reportRepository(cmd *cobra.Command, s *session, result *workflow.Result, err error) error {
	var verrs manifest.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprintf(cmd.OutOrStdout(), "❌ Configuration validation failed:\n%s", verrs.Bulleted())
		return fmt.Errorf("configuration is invalid")
	}

	var partial *github.ReconcileError
	if err != nil && !errors.As(err, &partial) {
		return err
	}

	displayChanges(cmd.OutOrStdout(), s.cfg.GitHub.Organization, result.Repository, result.Changes, repoDryRun)
	if partial != nil {
		s.log.Warn("Some settings of %s could not be applied: %v", result.Repository, partial)
	}
	if result.Path != "" {
		s.log.Success("Wrote %s", result.Path)
	}
	return nil
}

func runRepoApply(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}

	names, err := repositoryTargets(cmd, s, args)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No repository files of record changed.")
		return nil
	}

	repos, err := s.repositories()
	if err != nil {
		return err
	}

	dryRunNote(cmd, repoDryRun)
	batch, err := repos.Apply(cmd.Context(), names, github.ReconcileOptions{DryRun: repoDryRun})
	if err != nil {
		return err
	}
	displayBatchResults(cmd.OutOrStdout(), s.cfg.GitHub.Organization, batch, repoDryRun)
	if err := batch.Err(); err != nil {
		s.log.Warn("%v", err)
	}
	return nil
}

// repositoryTargets resolves what apply should reconcile: the arguments, the
// changed files, or an interactive pick.
func repositoryTargets(cmd *cobra.Command, s *session, args []string) ([]string, error) {
	if repoChanged {
		changes, err := gitops.ChangedFiles(cmd.Context(), s.root)
		if err != nil {
			return nil, err
		}
		s.log.Debug("Changed files from %s: %d repositories", changes.Source, len(changes.Repositories))
		return changes.Repositories, nil
	}

	if len(args) > 0 {
		names := make([]string, 0, len(args))
		for _, arg := range args {
			names = append(names, repositoryName(s.root, arg))
		}
		return names, nil
	}

	if !isInteractive() {
		return nil, fmt.Errorf("no repositories given: pass names or paths, or use --changed")
	}
	name, err := pickRepository(s.store)
	if err != nil {
		return nil, err
	}
	return []string{name}, nil
}

// repositoryName accepts a repository name or a path to its file of record.
func repositoryName(root, arg string) string {
	path := arg
	if abs, err := filepath.Abs(arg); err == nil {
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	if name, ok := manifest.RepositoryFromPath(filepath.ToSlash(path)); ok {
		return name
	}
	return strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
}

func pickRepository(store *manifest.Store) (string, error) {
	names, err := store.ListRepositories()
	if err != nil {
		return "", err
	}
	options := make([]picker.Option, 0, len(names))
	for _, name := range names {
		opt := picker.Option{Value: name}
		if doc, err := store.LoadRepository(name); err == nil {
			opt.Description = doc.String(manifest.SectionRepository, "description")
		}
		options = append(options, opt)
	}
	return pickerFactory().Pick("Repository", options)
}

func runRepoSyncAll(cmd *cobra.Command, _ []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	repos, err := s.repositories()
	if err != nil {
		return err
	}

	dryRunNote(cmd, repoDryRun)
	batch, err := repos.SyncAll(cmd.Context(), github.ReconcileOptions{DryRun: repoDryRun})
	if err != nil {
		return err
	}
	displayBatchResults(cmd.OutOrStdout(), s.cfg.GitHub.Organization, batch, repoDryRun)
	if err := batch.Err(); err != nil {
		s.log.Warn("%v", err)
	}
	return nil
}

func runRepoValidate(cmd *cobra.Command, args []string) error {
	doc, err := manifest.LoadDocumentFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}

	cfg := current.cfg
	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return err
	}
	repos := workflow.NewRepositoryWorkflow(nil, manifest.NewStore(root), workflow.Options{
		Org:          cfg.GitHub.Organization,
		DefaultsFile: cfg.Workspace.DefaultsFile,
		Visibilities: cfg.Issue.AllowedVisibilities,
		Log:          current.log,
	})

	errs, err := repos.Validate(doc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if errs.HasErrors() {
		fmt.Fprintf(out, "❌ Configuration validation failed:\n%s", errs.Bulleted())
		return fmt.Errorf("%s is invalid", args[0])
	}
	fmt.Fprintf(out, "✅ %s is valid\n", args[0])
	return nil
}
