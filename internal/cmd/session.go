package cmd

import (
	"fmt"
	"path/filepath"

	"orgsync/internal/gitops"
	"orgsync/internal/logging"
	"orgsync/internal/workflow"
	"orgsync/pkg/config"
	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
)

// clientFactory builds the GitHub client and names its credential source.
// Tests replace it with a mock.
var clientFactory = func(cfg *config.Config) (github.APIClient, string, error) {
	client, source, err := github.NewClientFromConfig(cfg, github.NewTokenResolver())
	if err != nil {
		return nil, "", err
	}
	return client, source, nil
}

// session bundles what the repository, team and issue commands share.
type session struct {
	cfg    *config.Config
	log    *logging.Logger
	client github.APIClient
	source string
	store  *manifest.Store
	root   string
}

func newSession() (*session, error) {
	cfg := current.cfg
	// Credentials are checked by the client factory.
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace %q: %w", cfg.Workspace.Root, err)
	}

	client, source, err := clientFactory(cfg)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:    cfg,
		log:    current.log,
		client: client,
		source: source,
		store:  manifest.NewStore(root),
		root:   root,
	}, nil
}

// recorder picks how files of record leave the workspace: a git commit when
// git.commit is on, the contents API when git.contents_repository is set,
// otherwise they only stay on disk.
func (s *session) recorder() (workflow.Recorder, error) {
	switch {
	case s.cfg.Git.Commit:
		token, _ := github.NewTokenResolver().Resolve(s.cfg)
		committer, err := gitops.NewCommitter(s.root, s.cfg.Git, token, s.log)
		if err != nil {
			return nil, err
		}
		return committer, nil
	case s.cfg.Git.ContentsRepository != "":
		rec, err := workflow.NewContentsRecorder(s.client, s.cfg.Git.ContentsRepository, s.root, s.log)
		if err != nil {
			return nil, err
		}
		return rec, nil
	default:
		return nil, nil
	}
}

func (s *session) options() (workflow.Options, error) {
	rec, err := s.recorder()
	if err != nil {
		return workflow.Options{}, err
	}
	return workflow.Options{
		Org:          s.cfg.GitHub.Organization,
		DefaultsFile: s.cfg.Workspace.DefaultsFile,
		Visibilities: s.cfg.Issue.AllowedVisibilities,
		Recorder:     rec,
		Log:          s.log,
	}, nil
}

func (s *session) repositories() (*workflow.RepositoryWorkflow, error) {
	opts, err := s.options()
	if err != nil {
		return nil, err
	}
	return workflow.NewRepositoryWorkflow(s.client, s.store, opts), nil
}

func (s *session) teams() (*workflow.TeamWorkflow, error) {
	opts, err := s.options()
	if err != nil {
		return nil, err
	}
	return workflow.NewTeamWorkflow(s.client, s.store, opts), nil
}
