package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"orgsync/pkg/github"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long: `Commands for checking GitHub authentication.

Credentials are taken from GITHUB_TOKEN, the config file, a GitHub App
installation or the gh CLI, in that order.`,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which GitHub identity orgsync will use",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authStatusCmd)
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	s, err := newSession()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", github.GetAuthInstructions())
		return err
	}

	info, err := github.ValidateAccess(cmd.Context(), s.client, s.cfg.GitHub.Organization, s.source)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Authenticated as %s\n", info.User)
	fmt.Fprintf(out, "  • Credential source: %s\n", info.Source)
	fmt.Fprintf(out, "  • Organization: %s\n", s.cfg.GitHub.Organization)

	if r, ok := s.client.(github.RateLimitReporter); ok {
		stats, next := r.RateLimit()
		s.log.Debug("Rate limit: %d requests remaining, resets at %s", stats.RemainingRequests, stats.ResetTime.Format(time.RFC3339))
		s.log.Debug("Paced %d calls for %s in total, next call waits %s", stats.TotalWaits, stats.TotalDelayTime, next)
	}
	return nil
}
