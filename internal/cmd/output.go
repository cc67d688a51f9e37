package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"orgsync/internal/workflow"
	"orgsync/pkg/github"
)

// displayChanges prints one repository's ChangeSet and returns the number of
// potentially destructive changes.
func displayChanges(w io.Writer, owner, repo string, changes github.ChangeSet, dryRun bool) int {
	if len(changes) == 0 {
		fmt.Fprintf(w, "\n📦 %s/%s: No changes needed\n", owner, repo)
		return 0
	}

	if dryRun {
		fmt.Fprintf(w, "\n🔍 Planned changes for %s/%s:\n", owner, repo)
	} else {
		fmt.Fprintf(w, "\n📋 Changes for %s/%s:\n", owner, repo)
	}

	destructive := 0
	for _, key := range changes.Keys() {
		value := changes[key]
		switch {
		case strings.HasPrefix(value, github.ErrorPrefix):
			fmt.Fprintf(w, "  ❌ %s: %s\n", key, strings.TrimPrefix(value, github.ErrorPrefix))
		case key == "visibility" && strings.HasSuffix(value, "public"):
			fmt.Fprintf(w, "  ⚠️  %s: %s (MAKING REPOSITORY PUBLIC)\n", key, value)
			destructive++
		case key == "archived" && strings.HasSuffix(value, "true"):
			fmt.Fprintf(w, "  ⚠️  %s: %s (ARCHIVING REPOSITORY)\n", key, value)
			destructive++
		case value == "removed":
			fmt.Fprintf(w, "  ⚠️  %s: removed (REVOKING ACCESS)\n", key)
			destructive++
		case value == "created":
			fmt.Fprintf(w, "  + %s\n", key)
		default:
			fmt.Fprintf(w, "  ~ %s: %s\n", key, value)
		}
	}
	return destructive
}

// displayBatchResults prints every repository's changes followed by a summary.
func displayBatchResults(w io.Writer, owner string, batch *workflow.BatchResult, dryRun bool) {
	destructive := 0
	changed := 0
	for _, r := range batch.Results {
		if len(r.Changes) > 0 {
			changed++
		}
		destructive += displayChanges(w, owner, r.Repository, r.Changes, dryRun)
	}

	if len(batch.Failed) > 0 {
		fmt.Fprintf(w, "\n❌ Failed repositories:\n")
		for _, name := range sortedErrorKeys(batch.Failed) {
			fmt.Fprintf(w, "  • %s/%s: %v\n", owner, name, batch.Failed[name])
		}
	}

	if len(batch.Untracked) > 0 {
		fmt.Fprintf(w, "\n⏭️  Repositories without a file of record:\n")
		for _, name := range batch.Untracked {
			fmt.Fprintf(w, "  • %s/%s\n", owner, name)
		}
	}

	fmt.Fprintf(w, "\n📊 Summary:\n")
	fmt.Fprintf(w, "  • Total repositories: %d\n", len(batch.Results)+countMissing(batch))
	fmt.Fprintf(w, "  • Repositories with changes: %d\n", changed)
	fmt.Fprintf(w, "  • Failed: %d\n", len(batch.Failed))
	if destructive > 0 {
		fmt.Fprintf(w, "  • Potentially destructive changes: %d\n", destructive)
		if dryRun {
			fmt.Fprintf(w, "\n⚠️  WARNING: %d potentially destructive change(s) detected!\n", destructive)
			fmt.Fprintf(w, "   Review these changes carefully before applying.\n")
		}
	}
}

// countMissing counts failed repositories that produced no result.
func countMissing(batch *workflow.BatchResult) int {
	seen := make(map[string]bool, len(batch.Results))
	for _, r := range batch.Results {
		seen[r.Repository] = true
	}
	n := 0
	for name := range batch.Failed {
		if !seen[name] {
			n++
		}
	}
	return n
}

func displayMembership(w io.Writer, result *github.MembershipResult) {
	fmt.Fprintf(w, "\n👥 %s:\n", result.Team)
	if len(result.Added)+len(result.Removed)+len(result.NotFound)+len(result.Failed) == 0 {
		fmt.Fprintf(w, "  No membership changes needed\n")
	}
	for _, login := range result.Added {
		fmt.Fprintf(w, "  + %s\n", login)
	}
	for _, login := range result.Removed {
		fmt.Fprintf(w, "  ⚠️  %s (REMOVING ACCESS)\n", login)
	}
	for _, login := range result.NotFound {
		fmt.Fprintf(w, "  ? %s (user not found)\n", login)
	}
	logins := make([]string, 0, len(result.Failed))
	for login := range result.Failed {
		logins = append(logins, login)
	}
	sort.Strings(logins)
	for _, login := range logins {
		fmt.Fprintf(w, "  ❌ %s: %s\n", login, result.Failed[login])
	}
}

func displayTeamReports(w io.Writer, owner string, result *workflow.TeamSyncResult, dryRun bool) {
	for _, report := range result.Teams {
		if report.Skipped {
			fmt.Fprintf(w, "\n⏭️  %s: team does not exist, skipped\n", report.Team)
			continue
		}
		if report.Membership != nil {
			displayMembership(w, report.Membership)
		}
		if len(report.Permissions) > 0 {
			displayChanges(w, owner, report.Team, report.Permissions, dryRun)
		}
	}

	if len(result.Failed) > 0 {
		fmt.Fprintf(w, "\n❌ Failed teams:\n")
		for _, name := range sortedErrorKeys(result.Failed) {
			fmt.Fprintf(w, "  • %s: %v\n", name, result.Failed[name])
		}
	}
}

func displayPrune(w io.Writer, result *workflow.PruneResult, dryRun bool) {
	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	for _, dir := range result.Dirs {
		fmt.Fprintf(w, "\n🗑️  %s team directory %s\n", verb, dir)
	}
	if len(result.Teams) > 0 {
		fmt.Fprintf(w, "  • GitHub teams: %s\n", strings.Join(result.Teams, ", "))
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(w, "\n❌ Teams that could not be pruned:\n")
		for _, name := range sortedErrorKeys(result.Failed) {
			fmt.Fprintf(w, "  • %s: %v\n", name, result.Failed[name])
		}
	}
}

func sortedErrorKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
