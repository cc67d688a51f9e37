package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"orgsync/internal/logging"
	"orgsync/pkg/config"
	"orgsync/pkg/form"
	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
)

// Issue identifies the request issue and carries its body.
type Issue struct {
	Owner  string
	Repo   string
	Number int
	Body   string
	Labels []string
}

// Issue request kinds.
const (
	KindRepositoryCreate = "repository-create"
	KindRepositoryUpdate = "repository-update"
	KindTeamMembership   = "team-membership"
)

// IssueOutcome is what processing did with an issue.
type IssueOutcome struct {
	Kind             string
	Target           string
	Comment          string
	Closed           bool
	ValidationFailed bool
	// NotFound is set when the team or repository named by the request does
	// not exist
	NotFound bool
}

// IssueWorkflow turns request issues into repository and team changes and
// reports back on the issue.
type IssueWorkflow struct {
	client github.APIClient
	repos  *RepositoryWorkflow
	teams  *TeamWorkflow
	parser *form.Parser
	labels config.IssueLabels
	log    *logging.Logger
}

// NewIssueWorkflow creates the issue flow.
func NewIssueWorkflow(client github.APIClient, repos *RepositoryWorkflow, teams *TeamWorkflow, labels config.IssueLabels, log *logging.Logger) *IssueWorkflow {
	return &IssueWorkflow{
		client: client,
		repos:  repos,
		teams:  teams,
		parser: form.NewParser(),
		labels: labels,
		log:    log,
	}
}

// Process routes the issue, applies it and reports on it. Validation failures
// are commented and labeled and leave the issue open; a fully applied request
// is commented and closed; a partially applied one is commented only. With
// DryRun the outcome is computed but nothing is posted.
func (w *IssueWorkflow) Process(ctx context.Context, issue Issue, opts github.ReconcileOptions) (*IssueOutcome, error) {
	if form.IsTeamCommand(issue.Body) {
		return w.processTeam(ctx, issue, opts)
	}
	return w.processRepository(ctx, issue, opts)
}

func (w *IssueWorkflow) processTeam(ctx context.Context, issue Issue, opts github.ReconcileOptions) (*IssueOutcome, error) {
	outcome := &IssueOutcome{Kind: KindTeamMembership}

	cmd, err := form.ParseTeamCommand(issue.Body)
	if err != nil {
		return w.rejected(ctx, issue, outcome, []string{err.Error()}, opts)
	}
	outcome.Target = cmd.Team

	result, err := w.teams.ApplyCommand(ctx, cmd, opts)
	if github.IsNotFound(err) {
		return w.notFound(ctx, issue, outcome, fmt.Sprintf("Team `%s` was not found in %s.", cmd.Team, w.teams.opts.Org), opts)
	}
	if err != nil {
		return w.failed(ctx, issue, outcome, err, opts)
	}

	outcome.Comment = fmt.Sprintf("### Team `%s`: %s\n\n%s", cmd.Team, cmd.Operation, result.Markdown())
	return w.finish(ctx, issue, outcome, len(result.Failed) == 0, opts)
}

func (w *IssueWorkflow) processRepository(ctx context.Context, issue Issue, opts github.ReconcileOptions) (*IssueOutcome, error) {
	outcome := &IssueOutcome{}

	req, err := w.parser.ParseRepositoryRequest(issue.Body)
	if err != nil {
		var pe *form.ParseError
		if errors.As(err, &pe) {
			return w.rejected(ctx, issue, outcome, []string{pe.Error()}, opts)
		}
		return nil, err
	}

	name := req.Name()
	if name == "" {
		errs := manifest.Validate(req.Document)
		return w.rejected(ctx, issue, outcome, errs.Messages(), opts)
	}
	outcome.Target = name

	create, err := w.wantsCreate(ctx, issue, name)
	if err != nil {
		return w.failed(ctx, issue, outcome, err, opts)
	}

	var result *Result
	if create {
		outcome.Kind = KindRepositoryCreate
		result, err = w.repos.Create(ctx, name, req.Document, req.Template, opts)
	} else {
		outcome.Kind = KindRepositoryUpdate
		result, err = w.repos.Update(ctx, name, req.Document, opts)
	}

	var verrs manifest.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return w.rejected(ctx, issue, outcome, verrs.Messages(), opts)
	case errors.Is(err, ErrRepositoryExists):
		return w.rejected(ctx, issue, outcome, []string{err.Error()}, opts)
	case github.IsNotFound(err):
		return w.notFound(ctx, issue, outcome, fmt.Sprintf("Repository `%s/%s` was not found.", w.repos.opts.Org, name), opts)
	case err != nil && !isPartial(err):
		return w.failed(ctx, issue, outcome, err, opts)
	}

	verb := "updated"
	if result.Created {
		verb = "created"
	}
	outcome.Comment = fmt.Sprintf("### Repository `%s/%s` %s\n\n%s", w.repos.opts.Org, name, verb, result.Changes.Markdown())
	if result.Changes.HasErrors() {
		outcome.Comment += "\nSome settings could not be applied; the issue stays open for follow-up.\n"
	}
	return w.finish(ctx, issue, outcome, !result.Changes.HasErrors(), opts)
}

// wantsCreate routes by label, or by whether the repository exists.
func (w *IssueWorkflow) wantsCreate(ctx context.Context, issue Issue, name string) (bool, error) {
	for _, label := range issue.Labels {
		switch {
		case strings.EqualFold(label, w.labels.RepoCreation):
			return true, nil
		case strings.EqualFold(label, w.labels.RepoUpdate):
			return false, nil
		}
	}
	exists, err := w.repos.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (w *IssueWorkflow) rejected(ctx context.Context, issue Issue, outcome *IssueOutcome, messages []string, opts github.ReconcileOptions) (*IssueOutcome, error) {
	outcome.ValidationFailed = true

	var b strings.Builder
	b.WriteString("### ❌ Request could not be validated\n\n")
	for _, m := range messages {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	b.WriteString("\nEdit the issue and try again.\n")
	outcome.Comment = b.String()

	w.log.Warn("Issue #%d failed validation: %s", issue.Number, strings.Join(messages, "; "))
	if opts.DryRun {
		return outcome, nil
	}
	if err := w.client.CreateIssueComment(ctx, issue.Owner, issue.Repo, issue.Number, outcome.Comment); err != nil {
		return outcome, err
	}
	if err := w.client.AddIssueLabels(ctx, issue.Owner, issue.Repo, issue.Number, []string{w.labels.ValidationFailed}); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// notFound comments that the request names something that does not exist and
// leaves the issue open. It is not an error for the run.
func (w *IssueWorkflow) notFound(ctx context.Context, issue Issue, outcome *IssueOutcome, message string, opts github.ReconcileOptions) (*IssueOutcome, error) {
	outcome.NotFound = true
	outcome.Comment = fmt.Sprintf("### ⚠️ Nothing was changed\n\n%s Check the name and edit the issue.\n", message)
	w.log.Warn("Issue #%d: %s", issue.Number, message)
	return w.finish(ctx, issue, outcome, false, opts)
}

// failed reports an unexpected error on the issue and returns it.
func (w *IssueWorkflow) failed(ctx context.Context, issue Issue, outcome *IssueOutcome, cause error, opts github.ReconcileOptions) (*IssueOutcome, error) {
	outcome.Comment = fmt.Sprintf("### ❌ Request failed\n\n```\n%s\n```\n", cause)
	if !opts.DryRun {
		if err := w.client.CreateIssueComment(ctx, issue.Owner, issue.Repo, issue.Number, outcome.Comment); err != nil {
			w.log.Warn("Failed to comment on issue #%d: %v", issue.Number, err)
		}
	}
	return outcome, cause
}

func (w *IssueWorkflow) finish(ctx context.Context, issue Issue, outcome *IssueOutcome, closeIssue bool, opts github.ReconcileOptions) (*IssueOutcome, error) {
	if opts.DryRun {
		return outcome, nil
	}
	if err := w.client.CreateIssueComment(ctx, issue.Owner, issue.Repo, issue.Number, outcome.Comment); err != nil {
		return outcome, err
	}
	if !closeIssue {
		return outcome, nil
	}
	if err := w.client.CloseIssue(ctx, issue.Owner, issue.Repo, issue.Number); err != nil {
		return outcome, err
	}
	outcome.Closed = true
	return outcome, nil
}
