// Package workflow orchestrates the end-to-end flows: repository create,
// update and apply, organization-wide sync, issue processing and team sync.
// Each flow parses or loads desired state, merges it over the defaults,
// validates it, reconciles it against GitHub and persists the file of record.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"orgsync/internal/logging"
	"orgsync/pkg/github"
)

// ErrRepositoryExists is returned by Create for a repository that already exists.
var ErrRepositoryExists = errors.New("repository already exists")

// Recorder persists a file of record after it has been written to disk.
type Recorder interface {
	Record(ctx context.Context, path string) error
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string) error { return nil }

// ContentsRecorder writes files of record to a repository through the
// contents API. Paths are stored relative to Root.
type ContentsRecorder struct {
	client github.APIClient
	owner  string
	repo   string
	root   string
	log    *logging.Logger
}

// NewContentsRecorder creates a recorder for fullName ("owner/name").
func NewContentsRecorder(client github.APIClient, fullName, root string, log *logging.Logger) (*ContentsRecorder, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("contents repository must be owner/name, got %q", fullName)
	}
	return &ContentsRecorder{client: client, owner: owner, repo: repo, root: root, log: log}, nil
}

// Record uploads path unless the remote copy is identical. A path that no
// longer exists locally is deleted remotely.
func (c *ContentsRecorder) Record(ctx context.Context, path string) error {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c.remove(ctx, rel)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var sha string
	current, err := c.client.GetFile(ctx, c.owner, c.repo, rel, "")
	switch {
	case err == nil:
		if bytes.Equal(current.Content, content) {
			c.log.Debug("%s unchanged in %s/%s", rel, c.owner, c.repo)
			return nil
		}
		sha = current.SHA
	case github.IsNotFound(err):
	default:
		return err
	}

	if err := c.client.PutFile(ctx, c.owner, c.repo, rel, "orgsync: update "+rel, content, sha); err != nil {
		return err
	}
	c.log.Debug("uploaded %s to %s/%s", rel, c.owner, c.repo)
	return nil
}

func (c *ContentsRecorder) remove(ctx context.Context, rel string) error {
	current, err := c.client.GetFile(ctx, c.owner, c.repo, rel, "")
	if github.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.client.DeleteFile(ctx, c.owner, c.repo, rel, "orgsync: remove "+rel, current.SHA); err != nil {
		return err
	}
	c.log.Debug("deleted %s from %s/%s", rel, c.owner, c.repo)
	return nil
}

// Options configures the workflows.
type Options struct {
	// Org is the organization that owns every managed repository and team
	Org string
	// DefaultsFile is the defaults layer, relative to the store root unless absolute
	DefaultsFile string
	// Visibilities are the accepted repository visibilities
	Visibilities []string
	// Recorder persists written files of record; nil skips persistence
	Recorder Recorder
	Log      *logging.Logger
}

func (o Options) recorder() Recorder {
	if o.Recorder == nil {
		return noopRecorder{}
	}
	return o.Recorder
}
