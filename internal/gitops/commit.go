package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"gopkg.in/ini.v1"

	"orgsync/internal/logging"
	"orgsync/pkg/config"
)

// Fallback commit identity when neither the tool config nor git config names one.
const (
	DefaultAuthorName  = "orgsync"
	DefaultAuthorEmail = "orgsync@users.noreply.github.com"
)

// ErrNothingToCommit is returned by Commit when the file is unchanged.
var ErrNothingToCommit = errors.New("nothing to commit")

// Author is a commit identity.
type Author struct {
	Name  string
	Email string
}

// Committer records files of record in the workspace repository.
type Committer struct {
	repo   *git.Repository
	cfg    config.GitConfig
	token  string
	author Author
	log    *logging.Logger
}

// NewCommitter opens the repository containing root. token authenticates pushes
// over HTTPS and may be empty when cfg.Push is off.
func NewCommitter(root string, cfg config.GitConfig, token string, log *logging.Logger) (*Committer, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", root, err)
	}

	author := Author{Name: cfg.AuthorName, Email: cfg.AuthorEmail}
	if local, err := repo.Config(); err == nil {
		author = fillAuthor(author, Author{Name: local.User.Name, Email: local.User.Email})
	}
	if author.Name == "" || author.Email == "" {
		if home, err := os.UserHomeDir(); err == nil {
			found, err := AuthorFromGitConfig(filepath.Join(home, ".gitconfig"))
			if err != nil {
				log.Debug("could not read git author: %v", err)
			}
			author = fillAuthor(author, found)
		}
	}
	if author.Name == "" {
		author.Name = DefaultAuthorName
	}
	if author.Email == "" {
		author.Email = DefaultAuthorEmail
	}

	return &Committer{repo: repo, cfg: cfg, token: token, author: author, log: log}, nil
}

// Author returns the identity commits are made with.
func (c *Committer) Author() Author {
	return c.author
}

// Commit stages path and commits it with the message "orgsync: update <path>",
// or "orgsync: remove <path>" when the file no longer exists. It returns
// ErrNothingToCommit when the file matches HEAD.
func (c *Committer) Commit(path string) (plumbing.Hash, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	rel, err := worktreePath(wt.Filesystem.Root(), path)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	verb := "update"
	if _, statErr := os.Stat(filepath.Join(wt.Filesystem.Root(), rel)); errors.Is(statErr, os.ErrNotExist) {
		verb = "remove"
		_, err := wt.Remove(rel)
		if errors.Is(err, index.ErrEntryNotFound) {
			return plumbing.ZeroHash, ErrNothingToCommit
		}
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to stage removal of %s: %w", rel, err)
		}
	} else if _, err := wt.Add(rel); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to stage %s: %w", rel, err)
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if s, ok := status[rel]; !ok || s.Staging == git.Unmodified {
		return plumbing.ZeroHash, ErrNothingToCommit
	}

	hash, err := wt.Commit("orgsync: "+verb+" "+rel, &git.CommitOptions{
		Author: &object.Signature{Name: c.author.Name, Email: c.author.Email, When: time.Now()},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to commit %s: %w", rel, err)
	}

	c.log.Debug("committed %s as %s", rel, hash.String()[:7])
	return hash, nil
}

// Push sends HEAD to the configured remote. With git.branch set, HEAD is
// pushed to that branch; otherwise to the branch HEAD is on.
func (c *Committer) Push(ctx context.Context) error {
	head, err := c.repo.Head()
	if err != nil {
		return fmt.Errorf("getting HEAD: %w", err)
	}

	target := c.cfg.Branch
	if target == "" {
		if !head.Name().IsBranch() {
			return errors.New("HEAD is detached; set git.branch to push")
		}
		target = head.Name().Short()
	}

	local := plumbing.NewBranchReferenceName(target)
	if head.Name() != local {
		if err := c.repo.Storer.SetReference(plumbing.NewHashReference(local, head.Hash())); err != nil {
			return fmt.Errorf("failed to update %s: %w", local, err)
		}
	}

	opts := &git.PushOptions{
		RemoteName: c.remote(),
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", local, local))},
	}
	if c.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: c.token}
	}

	err = c.repo.PushContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", c.remote(), err)
	}
	c.log.Debug("pushed %s to %s", target, c.remote())
	return nil
}

// Record commits path and, when configured, pushes it. An unchanged file is
// not an error.
func (c *Committer) Record(ctx context.Context, path string) error {
	if _, err := c.Commit(path); err != nil {
		if errors.Is(err, ErrNothingToCommit) {
			c.log.Debug("%s unchanged, nothing to commit", path)
			return nil
		}
		return err
	}
	if !c.cfg.Push {
		return nil
	}
	return c.Push(ctx)
}

func fillAuthor(a, from Author) Author {
	if a.Name == "" {
		a.Name = from.Name
	}
	if a.Email == "" {
		a.Email = from.Email
	}
	return a
}

func (c *Committer) remote() string {
	if c.cfg.Remote == "" {
		return "origin"
	}
	return c.cfg.Remote
}

func worktreePath(root, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the repository at %s", path, root)
	}
	return rel, nil
}

// AuthorFromGitConfig returns the [user] identity from the first git config
// file that names one. Missing files are skipped.
func AuthorFromGitConfig(paths ...string) (Author, error) {
	var author Author
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true, Insensitive: true}, path)
		if err != nil {
			return author, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		section, err := cfg.GetSection("user")
		if err != nil {
			continue
		}
		if author.Name == "" {
			author.Name = section.Key("name").String()
		}
		if author.Email == "" {
			author.Email = section.Key("email").String()
		}
		if author.Name != "" && author.Email != "" {
			break
		}
	}
	return author, nil
}
