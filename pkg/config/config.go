package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the orgsync configuration
type Config struct {
	GitHub    GitHubConfig    `yaml:"github" toml:"github"`
	Workspace WorkspaceConfig `yaml:"workspace" toml:"workspace"`
	Git       GitConfig       `yaml:"git" toml:"git"`
	Issue     IssueConfig     `yaml:"issue" toml:"issue"`
	Verbose   bool            `yaml:"verbose,omitempty" toml:"verbose,omitempty"`
}

// GitHubConfig holds credentials and the target organization
type GitHubConfig struct {
	Token        string    `yaml:"token,omitempty" toml:"token,omitempty"`
	Organization string    `yaml:"organization" toml:"organization"`
	BaseURL      string    `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	App          AppConfig `yaml:"app,omitempty" toml:"app,omitempty"`
}

// AppConfig holds GitHub App installation credentials
type AppConfig struct {
	AppID          int64  `yaml:"app_id,omitempty" toml:"app_id,omitempty"`
	InstallationID int64  `yaml:"installation_id,omitempty" toml:"installation_id,omitempty"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty" toml:"private_key_path,omitempty"`
}

// Configured reports whether all App credentials are present.
func (a AppConfig) Configured() bool {
	return a.AppID != 0 && a.InstallationID != 0 && a.PrivateKeyPath != ""
}

// WorkspaceConfig locates the files of record
type WorkspaceConfig struct {
	// Root is the checkout holding repositories/ and teams/
	Root string `yaml:"root,omitempty" toml:"root,omitempty"`
	// DefaultsFile is relative to Root unless absolute
	DefaultsFile string `yaml:"defaults_file,omitempty" toml:"defaults_file,omitempty"`
}

// GitConfig controls committing the files of record
type GitConfig struct {
	Commit      bool   `yaml:"commit" toml:"commit"`
	Push        bool   `yaml:"push" toml:"push"`
	Remote      string `yaml:"remote,omitempty" toml:"remote,omitempty"`
	Branch      string `yaml:"branch,omitempty" toml:"branch,omitempty"`
	AuthorName  string `yaml:"author_name,omitempty" toml:"author_name,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty" toml:"author_email,omitempty"`
	// ContentsRepository ("owner/name") receives files of record through the
	// contents API when Commit is off
	ContentsRepository string `yaml:"contents_repository,omitempty" toml:"contents_repository,omitempty"`
}

// IssueConfig tunes issue processing
type IssueConfig struct {
	AllowedVisibilities []string    `yaml:"allowed_visibilities,omitempty" toml:"allowed_visibilities,omitempty"`
	Labels              IssueLabels `yaml:"labels,omitempty" toml:"labels,omitempty"`
}

// IssueLabels names the labels that route and mark issues
type IssueLabels struct {
	RepoCreation     string `yaml:"repo_creation,omitempty" toml:"repo_creation,omitempty"`
	RepoUpdate       string `yaml:"repo_update,omitempty" toml:"repo_update,omitempty"`
	TeamMembership   string `yaml:"team_membership,omitempty" toml:"team_membership,omitempty"`
	ValidationFailed string `yaml:"validation_failed,omitempty" toml:"validation_failed,omitempty"`
}

// Environment variables that override the file.
const (
	EnvToken             = "GITHUB_TOKEN"
	EnvOrganization      = "GITHUB_ORGANIZATION"
	EnvWorkspace         = "GITHUB_WORKSPACE"
	EnvAppID             = "GITHUB_APP_ID"
	EnvAppInstallationID = "GITHUB_APP_INSTALLATION_ID"
	EnvAppPrivateKeyPath = "GITHUB_APP_PRIVATE_KEY_PATH"
	EnvVerbose           = "ORGSYNC_VERBOSE"
)

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}
	if c.Workspace.DefaultsFile == "" {
		c.Workspace.DefaultsFile = "default_repository.yml"
	}
	if c.Git.Remote == "" {
		c.Git.Remote = "origin"
	}
	if len(c.Issue.AllowedVisibilities) == 0 {
		c.Issue.AllowedVisibilities = []string{"internal", "private"}
	}
	labels := &c.Issue.Labels
	if labels.RepoCreation == "" {
		labels.RepoCreation = "repo-creation"
	}
	if labels.RepoUpdate == "" {
		labels.RepoUpdate = "repo-update"
	}
	if labels.TeamMembership == "" {
		labels.TeamMembership = "team-membership"
	}
	if labels.ValidationFailed == "" {
		labels.ValidationFailed = "validation-failed"
	}
}

// LoadConfig loads configuration from the default location
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadConfigFromPath(configPath)
}

// LoadConfigFromPath loads configuration from a specific path. A missing file
// yields the defaults. Files ending in .toml are decoded as TOML, anything
// else as YAML.
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyDefaults()
	return &config, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// ApplyEnv overrides file values with environment variables. Environment
// values win, matching how CI injects credentials.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		c.GitHub.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOrganization)); v != "" {
		c.GitHub.Organization = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkspace)); v != "" {
		c.Workspace.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAppPrivateKeyPath)); v != "" {
		c.GitHub.App.PrivateKeyPath = v
	}

	for env, dst := range map[string]*int64{
		EnvAppID:             &c.GitHub.App.AppID,
		EnvAppInstallationID: &c.GitHub.App.InstallationID,
	} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", env, err)
		}
		*dst = n
	}

	if v := strings.TrimSpace(os.Getenv(EnvVerbose)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", EnvVerbose, err)
		}
		c.Verbose = b
	}
	return nil
}

// SaveConfig saves configuration to the default location
func (c *Config) SaveConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveConfigToPath(configPath)
}

// SaveConfigToPath saves configuration to a specific path, in TOML when the
// path ends in .toml.
func (c *Config) SaveConfigToPath(path string) error {
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config may hold a token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".orgsync", "config.yaml"), nil
}

// Validate reports the conditions that make a run impossible: no
// organization, or no way to authenticate. The token may also come from the
// gh CLI, so hasToken is supplied by the caller after token resolution.
func (c *Config) Validate(hasToken bool) error {
	var missing []string
	if c.GitHub.Organization == "" {
		missing = append(missing, fmt.Sprintf("organization (set %s or github.organization)", EnvOrganization))
	}
	if !hasToken && !c.GitHub.App.Configured() {
		missing = append(missing, fmt.Sprintf("credentials (set %s, github.token, or github.app)", EnvToken))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, "; "))
	}
	return nil
}
