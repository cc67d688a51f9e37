//go:build integration
// +build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func getProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "../.."
	}
	// Walk up until we find go.mod
	for dir != "/" {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return "../.."
}

// getBinaryPath returns the path to the orgsync binary for testing
func getBinaryPath(t *testing.T) string {
	// Use pre-built binary from CI or build locally
	binaryPath := os.Getenv("ORGSYNC_BINARY")
	if binaryPath == "" {
		buildCmd := exec.Command("go", "build", "-o", "orgsync-test", "./cmd/orgsync")
		buildCmd.Dir = getProjectRoot()
		var buildOut bytes.Buffer
		buildCmd.Stdout = &buildOut
		buildCmd.Stderr = &buildOut
		if err := buildCmd.Run(); err != nil {
			t.Fatalf("Failed to build binary: %v\nOutput: %s", err, buildOut.String())
		}
		binaryPath = filepath.Join(getProjectRoot(), "orgsync-test")

		t.Cleanup(func() {
			if err := os.Remove(binaryPath); err != nil {
				t.Logf("Failed to remove test binary: %v", err)
			}
		})
	} else if !filepath.IsAbs(binaryPath) {
		binaryPath = filepath.Join(getProjectRoot(), binaryPath)
	}

	return binaryPath
}

// removeEnvVar removes an environment variable from the environment slice
func removeEnvVar(env []string, key string) []string {
	var result []string
	prefix := key + "="
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			result = append(result, e)
		}
	}
	return result
}

func TestCLIIntegration(t *testing.T) {
	binaryPath := getBinaryPath(t)

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "no arguments (shows help)",
			args:     []string{},
			expected: []string{"orgsync", "repo", "team", "issue"},
		},
		{
			name:     "help command",
			args:     []string{"--help"},
			expected: []string{"Manage a GitHub organization as code", "--workspace", "--no-color"},
		},
		{
			name:     "auth help",
			args:     []string{"auth", "--help"},
			expected: []string{"status"},
		},
		{
			name:     "init help",
			args:     []string{"init", "--help"},
			expected: []string{"--force"},
		},
		{
			name:     "repo help",
			args:     []string{"repo", "--help"},
			expected: []string{"create", "update", "apply", "sync-all", "validate"},
		},
		{
			name:     "repo apply help",
			args:     []string{"repo", "apply", "--help"},
			expected: []string{"--dry-run", "--changed"},
		},
		{
			name:     "team help",
			args:     []string{"team", "--help"},
			expected: []string{"sync", "members", "subteams", "init"},
		},
		{
			name:     "issue process help",
			args:     []string{"issue", "process", "--help"},
			expected: []string{"--number", "--repo", "--body-file", "--label"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command(binaryPath, tt.args...)
			output, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatalf("Command failed: %v\nOutput: %s", err, output)
			}

			for _, expected := range tt.expected {
				if !strings.Contains(string(output), expected) {
					t.Errorf("Expected output to contain %q, got: %s", expected, output)
				}
			}
		})
	}
}
