package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"github.com/spf13/cobra"

	"orgsync/internal/gitops"
	"orgsync/internal/workflow"
	"orgsync/pkg/github"
)

// Environment set by GitHub Actions for the triggering event.
const (
	envEventName  = "GITHUB_EVENT_NAME"
	envRepository = "GITHUB_REPOSITORY"
)

var (
	issueNumber   int
	issueRepo     string
	issueBodyFile string
	issueLabels   []string
	issueDryRun   bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue request commands",
	Long: `Commands for processing repository and team requests filed as issues.

Repository requests use the issue form headings (### repo-name, ### repo-config,
...). Team membership requests start with a /teams line.`,
}

var issueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Apply the request in an issue and report back on it",
	Long: `Apply the request in an issue and report back on it.

Without --number and --body-file the issue is read from the Actions event
payload in GITHUB_EVENT_PATH. A valid request is applied, commented on and
closed; an invalid one is commented on and labeled, and stays open.`,
	Example: `  orgsync issue process
  orgsync issue process --repo acme/org-config --number 42 --body-file body.md --label repo-creation`,
	Args: cobra.NoArgs,
	RunE: runIssueProcess,
}

func init() {
	issueProcessCmd.Flags().IntVar(&issueNumber, "number", 0, "Issue number")
	issueProcessCmd.Flags().StringVar(&issueRepo, "repo", "", "Repository holding the issue as owner/name (default $GITHUB_REPOSITORY)")
	issueProcessCmd.Flags().StringVar(&issueBodyFile, "body-file", "", "File holding the issue body, - for stdin")
	issueProcessCmd.Flags().StringSliceVar(&issueLabels, "label", nil, "Issue label (repeatable)")
	issueProcessCmd.Flags().BoolVar(&issueDryRun, "dry-run", false, "Compute the outcome without changing GitHub or the issue")
	issueCmd.AddCommand(issueProcessCmd)
}

func runIssueProcess(cmd *cobra.Command, _ []string) error {
	issue, err := resolveIssue(cmd.InOrStdin())
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
	teams, err := s.teams()
	if err != nil {
		return err
	}

	dryRunNote(cmd, issueDryRun)
	s.log.Phase("Processing %s/%s#%d", issue.Owner, issue.Repo, issue.Number)
	w := workflow.NewIssueWorkflow(s.client, repos, teams, s.cfg.Issue.Labels, s.log)
	outcome, err := w.Process(cmd.Context(), issue, github.ReconcileOptions{DryRun: issueDryRun})
	if outcome != nil {
		displayOutcome(cmd.OutOrStdout(), issue, outcome)
	}
	return err
}

func displayOutcome(w io.Writer, issue workflow.Issue, outcome *workflow.IssueOutcome) {
	switch {
	case outcome.ValidationFailed:
		fmt.Fprintf(w, "\n❌ Issue #%d failed validation\n", issue.Number)
	case outcome.NotFound:
		fmt.Fprintf(w, "\n⚠️  Issue #%d: %s not found, left open\n", issue.Number, outcome.Target)
	case outcome.Closed:
		fmt.Fprintf(w, "\n✅ Issue #%d applied and closed\n", issue.Number)
	default:
		fmt.Fprintf(w, "\n⚠️  Issue #%d processed, left open\n", issue.Number)
	}
	fmt.Fprintf(w, "\n%s\n", outcome.Comment)
}

// resolveIssue builds the issue from the event payload, then lets the flags
// override it.
func resolveIssue(stdin io.Reader) (workflow.Issue, error) {
	var issue workflow.Issue

	if path := os.Getenv(gitops.EnvEventPath); path != "" {
		event, err := issueFromEvent(path, os.Getenv(envEventName))
		if err != nil {
			return issue, err
		}
		issue = event
	}

	if issueNumber != 0 {
		issue.Number = issueNumber
	}
	if len(issueLabels) > 0 {
		issue.Labels = issueLabels
	}
	if issueBodyFile != "" {
		body, err := readBody(issueBodyFile, stdin)
		if err != nil {
			return issue, err
		}
		issue.Body = body
	}

	full := issueRepo
	if full == "" && issue.Owner == "" {
		full = os.Getenv(envRepository)
	}
	if full != "" {
		owner, repo, ok := strings.Cut(full, "/")
		if !ok || owner == "" || repo == "" {
			return issue, fmt.Errorf("repository must be owner/name, got %q", full)
		}
		issue.Owner, issue.Repo = owner, repo
	}

	switch {
	case issue.Number == 0:
		return issue, errors.New("no issue: pass --number or run from an issues event")
	case issue.Owner == "":
		return issue, fmt.Errorf("no issue repository: pass --repo or set %s", envRepository)
	case strings.TrimSpace(issue.Body) == "":
		return issue, fmt.Errorf("issue #%d has an empty body", issue.Number)
	}
	return issue, nil
}

func readBody(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read issue body: %w", err)
	}
	return string(data), nil
}

// issueFromEvent reads an issues or issue_comment payload.
func issueFromEvent(path, eventName string) (workflow.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.Issue{}, fmt.Errorf("failed to read event payload: %w", err)
	}
	if eventName == "" {
		eventName = "issues"
	}

	payload, err := gh.ParseWebHook(eventName, data)
	if err != nil {
		return workflow.Issue{}, fmt.Errorf("failed to parse %s event: %w", eventName, err)
	}

	var ghIssue *gh.Issue
	var repo *gh.Repository
	switch e := payload.(type) {
	case *gh.IssuesEvent:
		ghIssue, repo = e.GetIssue(), e.GetRepo()
	case *gh.IssueCommentEvent:
		ghIssue, repo = e.GetIssue(), e.GetRepo()
	default:
		return workflow.Issue{}, fmt.Errorf("event %s does not carry an issue", eventName)
	}

	issue := workflow.Issue{
		Owner:  repo.GetOwner().GetLogin(),
		Repo:   repo.GetName(),
		Number: ghIssue.GetNumber(),
		Body:   ghIssue.GetBody(),
	}
	for _, label := range ghIssue.Labels {
		issue.Labels = append(issue.Labels, label.GetName())
	}
	return issue, nil
}
