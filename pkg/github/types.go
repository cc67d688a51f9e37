package github

// Repository is the live state of a GitHub repository, read once per
// reconciliation pass.
type Repository struct {
	ID                  int64    `json:"id"`
	Name                string   `json:"name"`
	FullName            string   `json:"full_name"`
	Description         string   `json:"description"`
	Visibility          string   `json:"visibility"`
	Private             bool     `json:"private"`
	HasIssues           bool     `json:"has_issues"`
	HasWiki             bool     `json:"has_wiki"`
	HasProjects         bool     `json:"has_projects"`
	DefaultBranch       string   `json:"default_branch"`
	AllowSquashMerge    bool     `json:"allow_squash_merge"`
	AllowMergeCommit    bool     `json:"allow_merge_commit"`
	AllowRebaseMerge    bool     `json:"allow_rebase_merge"`
	AllowAutoMerge      bool     `json:"allow_auto_merge"`
	DeleteBranchOnMerge bool     `json:"delete_branch_on_merge"`
	AllowUpdateBranch   bool     `json:"allow_update_branch"`
	Archived            bool     `json:"archived"`
	Topics              []string `json:"topics"`
}

// RepositoryEdit carries the settings of a single batched repository edit.
// Nil fields are left unchanged.
type RepositoryEdit struct {
	Description         *string `json:"description,omitempty"`
	Visibility          *string `json:"visibility,omitempty"`
	HasIssues           *bool   `json:"has_issues,omitempty"`
	HasWiki             *bool   `json:"has_wiki,omitempty"`
	HasProjects         *bool   `json:"has_projects,omitempty"`
	DefaultBranch       *string `json:"default_branch,omitempty"`
	AllowSquashMerge    *bool   `json:"allow_squash_merge,omitempty"`
	AllowMergeCommit    *bool   `json:"allow_merge_commit,omitempty"`
	AllowRebaseMerge    *bool   `json:"allow_rebase_merge,omitempty"`
	AllowAutoMerge      *bool   `json:"allow_auto_merge,omitempty"`
	DeleteBranchOnMerge *bool   `json:"delete_branch_on_merge,omitempty"`
	AllowUpdateBranch   *bool   `json:"allow_update_branch,omitempty"`
	Archived            *bool   `json:"archived,omitempty"`
}

// IsEmpty reports whether the edit changes nothing.
func (e RepositoryEdit) IsEmpty() bool {
	return e == RepositoryEdit{}
}

// NewRepository describes a repository to create in an organization.
type NewRepository struct {
	Name        string
	Description string
	Visibility  string
	// Template is an optional "owner/name" or bare name of a template repository.
	Template string
}

// RulesetSummary identifies an existing ruleset.
type RulesetSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

// StatusChecks are the required status checks of a protected branch.
type StatusChecks struct {
	Strict   bool     `json:"strict"`
	Contexts []string `json:"contexts"`
}

// Team is a GitHub team.
type Team struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ParentSlug  string `json:"parent_slug,omitempty"`
}

// NewTeam describes a team to create.
type NewTeam struct {
	Name         string
	Description  string
	ParentTeamID int64
}

// User is the authenticated user or a looked-up account.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// FileContent is a file read through the contents API. SHA is required to
// update the file.
type FileContent struct {
	Path    string
	SHA     string
	Content []byte
}

// OrgRepository is one entry of the organization repository listing.
type OrgRepository struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	Archived   bool   `json:"archived"`
}
