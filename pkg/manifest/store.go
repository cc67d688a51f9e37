package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace layout.
const (
	RepositoriesDir     = "repositories"
	RepositoryFileName  = "repository.yml"
	TeamsDir            = "teams"
	TeamFileName        = "teams.yml"
	DefaultDefaultsFile = "default_repository.yml"
)

// ErrNotFound is returned when a file of record does not exist.
var ErrNotFound = errors.New("file of record not found")

// Store reads and writes files of record under a workspace root.
type Store struct {
	Root string
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// RepositoryPath returns repositories/<name>/repository.yml under the root.
func (s *Store) RepositoryPath(name string) string {
	return filepath.Join(s.Root, RepositoriesDir, name, RepositoryFileName)
}

// TeamPath returns teams/<dir>/teams.yml under the root.
func (s *Store) TeamPath(dir string) string {
	return filepath.Join(s.Root, TeamsDir, dir, TeamFileName)
}

// LoadRepository loads the file of record for a repository. A missing file
// returns an error wrapping ErrNotFound.
func (s *Store) LoadRepository(name string) (Document, error) {
	return LoadDocumentFile(s.RepositoryPath(name))
}

// SaveRepository writes the file of record for a repository and returns its path.
func (s *Store) SaveRepository(name string, doc Document) (string, error) {
	path := s.RepositoryPath(name)
	if err := SaveDocumentFile(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// LoadDefaults loads the defaults document. Relative paths resolve against the
// root. A missing file yields an empty Document; an unreadable or malformed
// one is an error.
func (s *Store) LoadDefaults(path string) (Document, error) {
	if path == "" {
		path = DefaultDefaultsFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Root, path)
	}

	doc, err := LoadDocumentFile(path)
	if errors.Is(err, ErrNotFound) {
		return Document{}, nil
	}
	return doc, err
}

// ListRepositories returns the names of all repositories with a file of record.
func (s *Store) ListRepositories() ([]string, error) {
	return s.listDirsContaining(RepositoriesDir, RepositoryFileName)
}

// ListTeams returns the directory names of all teams with a teams.yml.
func (s *Store) ListTeams() ([]string, error) {
	return s.listDirsContaining(TeamsDir, TeamFileName)
}

func (s *Store) listDirsContaining(dir, file string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Root, dir, entry.Name(), file)); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RepositoryFromPath reports whether a workspace-relative path is a repository
// file of record and returns the repository name it belongs to.
func RepositoryFromPath(rel string) (string, bool) {
	return matchRecordPath(rel, RepositoriesDir, RepositoryFileName)
}

// TeamFromPath reports whether a workspace-relative path is a teams.yml and
// returns its team directory.
func TeamFromPath(rel string) (string, bool) {
	return matchRecordPath(rel, TeamsDir, TeamFileName)
}

func matchRecordPath(rel, dir, file string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(rel)), "/")
	if len(parts) != 3 || parts[0] != dir || parts[2] != file || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// LoadDocumentFile reads a YAML document from disk.
func LoadDocumentFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// SaveDocumentFile writes a YAML document, creating parent directories.
func SaveDocumentFile(path string, doc Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
