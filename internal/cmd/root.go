package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orgsync/internal/exitcode"
	"orgsync/internal/logging"
	"orgsync/pkg/config"
)

var (
	configFile    string
	orgFlag       string
	workspaceFlag string
	verboseFlag   bool
	noColorFlag   bool
)

// current is populated by the root command before any subcommand runs.
var current struct {
	cfg        *config.Config
	configPath string
	log        *logging.Logger
}

var rootCmd = &cobra.Command{
	Use:   "orgsync",
	Short: "Manage a GitHub organization as code",
	Long: `Orgsync keeps a GitHub organization in line with the files of record in a
configuration repository.

Repository settings, rulesets, security features and status checks live in
repositories/<name>/repository.yml; team membership and repository access live in
teams/<name>/teams.yml. Requests arrive as issue forms or /teams commands, are
validated, applied to GitHub and written back as files of record.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
}

// Execute runs the command tree and exits with exitcode.Failure on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := current.log
		if log == nil {
			log = logging.Default(false)
		}
		log.Error("%v", err)
		os.Exit(exitcode.Failure)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.orgsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&orgFlag, "org", "", "GitHub organization (overrides github.organization)")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "Checkout holding repositories/ and teams/ (overrides workspace.root)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Print debug output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(teamCmd)
}

// loadRuntime reads the config file, applies environment and flag overrides
// and builds the logger.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	path := configFile
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := config.LoadConfigFromPath(path)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if orgFlag != "" {
		cfg.GitHub.Organization = orgFlag
	}
	if workspaceFlag != "" {
		cfg.Workspace.Root = workspaceFlag
	}
	if verboseFlag {
		cfg.Verbose = true
	}

	logging.ConfigureColor(noColorFlag)
	current.cfg = cfg
	current.configPath = path
	current.log = logging.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Verbose)
	current.log.Debug("Loaded configuration from %s", path)
	return nil
}

func dryRunNote(cmd *cobra.Command, dryRun bool) {
	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "🔍 Dry-run mode: no changes will be made")
	}
}
