package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"orgsync/pkg/config"
	"orgsync/pkg/github"
	"orgsync/pkg/picker"
)

func ptr[T any](v T) *T { return &v }

// resetFlags restores every flag to its default so that runs do not leak
// into each other through the package-level flag variables.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvToken, config.EnvOrganization, config.EnvWorkspace, config.EnvVerbose,
		config.EnvAppID, config.EnvAppInstallationID, config.EnvAppPrivateKeyPath,
		"GITHUB_EVENT_PATH", "GITHUB_EVENT_NAME", "GITHUB_REPOSITORY", "CHANGED_FILES",
	} {
		t.Setenv(key, "")
	}
}

type runOptions struct {
	client github.APIClient
	stdin  string
}

// run executes the root command with a fake client and returns the combined
// output.
func run(t *testing.T, opts runOptions, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	origFactory := clientFactory
	clientFactory = func(*config.Config) (github.APIClient, string, error) {
		return opts.client, "test", nil
	}
	t.Cleanup(func() { clientFactory = origFactory })

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(opts.stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newWorkspace creates a configuration checkout and returns the global flags
// pointing at it.
func newWorkspace(t *testing.T) (string, []string) {
	t.Helper()
	clearEnv(t)
	root := t.TempDir()
	writeFile(t, root, "default_repository.yml", "repository:\n  visibility: private\n")
	writeFile(t, root, "repositories/svc-a/repository.yml", "repository:\n  name: svc-a\n  description: Service A\n  has_wiki: true\n")
	writeFile(t, root, "teams/platform/teams.yml", "teams:\n  team_name: platform\n  members: [alice]\n")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	return root, []string{"--config", cfgPath, "--org", "acme", "--workspace", root, "--no-color"}
}

type fakePicker struct {
	value   string
	options []picker.Option
}

func (f *fakePicker) Pick(_ string, options []picker.Option) (string, error) {
	f.options = options
	return f.value, nil
}

func usePicker(t *testing.T, p picker.Picker, interactive bool) {
	t.Helper()
	origFactory, origInteractive := pickerFactory, isInteractive
	pickerFactory = func() picker.Picker { return p }
	isInteractive = func() bool { return interactive }
	t.Cleanup(func() {
		pickerFactory, isInteractive = origFactory, origInteractive
	})
}
