package github

import (
	"fmt"
	"strconv"

	"orgsync/pkg/manifest"
)

// setting is one settable scalar repository attribute. desired returns the
// configured value and whether it is configured at all; stage copies the
// desired value into a batched edit.
type setting struct {
	name    string
	desired func(*manifest.RepositorySettings) (string, bool)
	live    func(*Repository) string
	stage   func(*RepositoryEdit, *manifest.RepositorySettings)
}

func boolSetting(
	name string,
	desired func(*manifest.RepositorySettings) *bool,
	live func(*Repository) bool,
	field func(*RepositoryEdit) **bool,
) setting {
	return setting{
		name: name,
		desired: func(s *manifest.RepositorySettings) (string, bool) {
			v := desired(s)
			if v == nil {
				return "", false
			}
			return strconv.FormatBool(*v), true
		},
		live: func(r *Repository) string {
			return strconv.FormatBool(live(r))
		},
		stage: func(e *RepositoryEdit, s *manifest.RepositorySettings) {
			v := *desired(s)
			*field(e) = &v
		},
	}
}

func stringSetting(
	name string,
	desired func(*manifest.RepositorySettings) *string,
	live func(*Repository) string,
	field func(*RepositoryEdit) **string,
) setting {
	return setting{
		name: name,
		desired: func(s *manifest.RepositorySettings) (string, bool) {
			v := desired(s)
			if v == nil {
				return "", false
			}
			return *v, true
		},
		live: live,
		stage: func(e *RepositoryEdit, s *manifest.RepositorySettings) {
			v := *desired(s)
			*field(e) = &v
		},
	}
}

// repositorySettings is the complete list of scalar settings the reconciler
// manages. Anything not listed here is never edited.
var repositorySettings = []setting{
	stringSetting("visibility",
		func(s *manifest.RepositorySettings) *string {
			if s.Visibility == "" {
				return nil
			}
			return &s.Visibility
		},
		func(r *Repository) string { return r.Visibility },
		func(e *RepositoryEdit) **string { return &e.Visibility }),
	stringSetting("description",
		func(s *manifest.RepositorySettings) *string { return s.Description },
		func(r *Repository) string { return r.Description },
		func(e *RepositoryEdit) **string { return &e.Description }),
	boolSetting("has_issues",
		func(s *manifest.RepositorySettings) *bool { return s.HasIssues },
		func(r *Repository) bool { return r.HasIssues },
		func(e *RepositoryEdit) **bool { return &e.HasIssues }),
	boolSetting("has_wiki",
		func(s *manifest.RepositorySettings) *bool { return s.HasWiki },
		func(r *Repository) bool { return r.HasWiki },
		func(e *RepositoryEdit) **bool { return &e.HasWiki }),
	boolSetting("has_projects",
		func(s *manifest.RepositorySettings) *bool { return s.HasProjects },
		func(r *Repository) bool { return r.HasProjects },
		func(e *RepositoryEdit) **bool { return &e.HasProjects }),
	stringSetting("default_branch",
		func(s *manifest.RepositorySettings) *string { return s.DefaultBranch },
		func(r *Repository) string { return r.DefaultBranch },
		func(e *RepositoryEdit) **string { return &e.DefaultBranch }),
	boolSetting("allow_squash_merge",
		func(s *manifest.RepositorySettings) *bool { return s.AllowSquashMerge },
		func(r *Repository) bool { return r.AllowSquashMerge },
		func(e *RepositoryEdit) **bool { return &e.AllowSquashMerge }),
	boolSetting("allow_merge_commit",
		func(s *manifest.RepositorySettings) *bool { return s.AllowMergeCommit },
		func(r *Repository) bool { return r.AllowMergeCommit },
		func(e *RepositoryEdit) **bool { return &e.AllowMergeCommit }),
	boolSetting("allow_rebase_merge",
		func(s *manifest.RepositorySettings) *bool { return s.AllowRebaseMerge },
		func(r *Repository) bool { return r.AllowRebaseMerge },
		func(e *RepositoryEdit) **bool { return &e.AllowRebaseMerge }),
	boolSetting("allow_auto_merge",
		func(s *manifest.RepositorySettings) *bool { return s.AllowAutoMerge },
		func(r *Repository) bool { return r.AllowAutoMerge },
		func(e *RepositoryEdit) **bool { return &e.AllowAutoMerge }),
	boolSetting("delete_branch_on_merge",
		func(s *manifest.RepositorySettings) *bool { return s.DeleteBranchOnMerge },
		func(r *Repository) bool { return r.DeleteBranchOnMerge },
		func(e *RepositoryEdit) **bool { return &e.DeleteBranchOnMerge }),
	boolSetting("allow_update_branch",
		func(s *manifest.RepositorySettings) *bool { return s.AllowUpdateBranch },
		func(r *Repository) bool { return r.AllowUpdateBranch },
		func(e *RepositoryEdit) **bool { return &e.AllowUpdateBranch }),
	boolSetting("archived",
		func(s *manifest.RepositorySettings) *bool { return s.Archived },
		func(r *Repository) bool { return r.Archived },
		func(e *RepositoryEdit) **bool { return &e.Archived }),
}

// stagedSetting is a setting whose desired value differs from live.
type stagedSetting struct {
	setting
	from, to string
}

// diffSettings returns the settings that need to change, in table order.
func diffSettings(desired *manifest.RepositorySettings, live *Repository) []stagedSetting {
	var staged []stagedSetting
	for _, s := range repositorySettings {
		want, ok := s.desired(desired)
		if !ok {
			continue
		}
		have := s.live(live)
		if want == have {
			continue
		}
		staged = append(staged, stagedSetting{setting: s, from: have, to: want})
	}
	return staged
}

// buildEdit folds staged settings into one batched edit.
func buildEdit(desired *manifest.RepositorySettings, staged []stagedSetting) RepositoryEdit {
	var edit RepositoryEdit
	for _, s := range staged {
		s.stage(&edit, desired)
	}
	return edit
}

// transition renders "<old> → <new>".
func transition(from, to string) string {
	return fmt.Sprintf("%s → %s", quoteEmpty(from), quoteEmpty(to))
}

func quoteEmpty(v string) string {
	if v == "" {
		return `""`
	}
	return v
}
