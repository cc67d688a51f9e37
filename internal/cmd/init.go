package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"orgsync/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize orgsync configuration",
	Long:  "Create a starter configuration file for orgsync",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file without asking")
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	configPath := current.configPath

	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Fprintf(out, "⚠️  Configuration file already exists at: %s\n", configPath)
		fmt.Fprint(out, "Do you want to overwrite it? (y/N): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			fmt.Fprintln(out, "Configuration initialization cancelled.")
			return nil
		}
	}

	starter := config.Default()
	starter.GitHub.Organization = "your-organization"
	if current.cfg != nil && current.cfg.GitHub.Organization != "" {
		starter.GitHub.Organization = current.cfg.GitHub.Organization
	}
	starter.Git.Commit = true

	if err := starter.SaveConfigToPath(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "✅ Configuration file created at: %s\n", configPath)
	fmt.Fprintln(out, "📝 Please edit the file to set your organization and workspace.")
	return nil
}
