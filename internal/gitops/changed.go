// Package gitops detects which files of record changed in a push and commits
// the files the tool writes back to the workspace.
package gitops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	gh "github.com/google/go-github/v66/github"

	"orgsync/pkg/manifest"
)

// Environment variables consulted by ChangedFiles.
const (
	EnvChangedFiles = "CHANGED_FILES"
	EnvEventPath    = "GITHUB_EVENT_PATH"
)

// Source names where a changed-file list came from.
const (
	SourceEnv   = "env"
	SourceEvent = "push-event"
	SourceGit   = "git"
)

// Changes groups changed files of record by kind.
type Changes struct {
	// Repositories are repository names whose repository.yml changed
	Repositories []string
	// Teams are team directories whose teams.yml changed
	Teams []string
	// Source tells where the file list came from
	Source string
}

// Empty reports whether no file of record changed.
func (c *Changes) Empty() bool {
	return len(c.Repositories) == 0 && len(c.Teams) == 0
}

// ChangedFiles returns the files of record changed by the current push. The
// CHANGED_FILES variable wins, then the push event payload, then the diff of
// HEAD against its first parent in the repository at root.
func ChangedFiles(ctx context.Context, root string) (*Changes, error) {
	if raw := os.Getenv(EnvChangedFiles); strings.TrimSpace(raw) != "" {
		return Filter(splitFileList(raw), SourceEnv), nil
	}

	if eventPath := os.Getenv(EnvEventPath); eventPath != "" {
		files, ok, err := pushEventFiles(eventPath)
		if err != nil {
			return nil, err
		}
		if ok {
			return Filter(files, SourceEvent), nil
		}
	}

	files, err := headChanges(ctx, root)
	if err != nil {
		return nil, err
	}
	return Filter(files, SourceGit), nil
}

// Filter keeps only repository and team files of record, deduplicated and sorted.
func Filter(files []string, source string) *Changes {
	repos := make(map[string]bool)
	teams := make(map[string]bool)
	for _, f := range files {
		if name, ok := manifest.RepositoryFromPath(f); ok {
			repos[name] = true
			continue
		}
		if dir, ok := manifest.TeamFromPath(f); ok {
			teams[dir] = true
		}
	}
	return &Changes{Repositories: sortedKeys(repos), Teams: sortedKeys(teams), Source: source}
}

func splitFileList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}

// pushEventFiles reads added and modified paths from a push event payload.
// ok is false when the payload is not a push event.
func pushEventFiles(path string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read event payload %s: %w", path, err)
	}

	var event gh.PushEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, false, fmt.Errorf("failed to parse event payload %s: %w", path, err)
	}
	if len(event.Commits) == 0 && event.HeadCommit == nil {
		return nil, false, nil
	}

	var files []string
	commits := event.Commits
	if len(commits) == 0 {
		commits = []*gh.HeadCommit{event.HeadCommit}
	}
	for _, commit := range commits {
		files = append(files, commit.Added...)
		files = append(files, commit.Modified...)
	}
	return files, true, nil
}

// headChanges diffs HEAD against its first parent. A root commit reports
// every file in its tree.
func headChanges(ctx context.Context, root string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", root, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("getting HEAD: %w", err)
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("getting HEAD commit: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, err
	}

	var parentTree *object.Tree
	if headCommit.NumParents() > 0 {
		parent, err := headCommit.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("getting parent commit: %w", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, headTree, &object.DiffTreeOptions{})
	if err != nil {
		return nil, fmt.Errorf("diffing trees: %w", err)
	}

	var files []string
	for _, change := range changes {
		if name := changedName(change); name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

// changedName returns the path an added or modified change leaves behind.
// Deletions have nothing to reconcile.
func changedName(change *object.Change) string {
	action, err := change.Action()
	if err != nil {
		return ""
	}
	switch action {
	case merkletrie.Insert, merkletrie.Modify:
		return change.To.Name
	default:
		return ""
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
