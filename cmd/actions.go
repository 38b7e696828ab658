package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sethvargo/go-githubactions"

	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/env"
)

// reportToActions publishes a merge result as step outputs and a job
// summary when running inside GitHub Actions.
func reportToActions(source, target string, res *engine.MergeResult) {
	if !env.IsGithubAction() {
		return
	}

	githubactions.SetOutput("merged", strconv.FormatBool(res.Success))
	githubactions.SetOutput("merge_commit", res.MergeCommit)
	githubactions.SetOutput("conflicts", strings.Join(res.Conflicts, ","))
	githubactions.AddStepSummary(mergeSummary(source, target, res))

	if !res.Success {
		githubactions.Warningf("merging %s into %s left %d conflicted files", source, target, len(res.Conflicts))
	}
}

func mergeSummary(source, target string, res *engine.MergeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Merge `%s` into `%s`\n\n", source, target)

	switch {
	case res.UpToDate:
		b.WriteString("Already up to date.\n")
	case res.FastForward:
		fmt.Fprintf(&b, "Fast-forwarded to `%s`.\n", shortHash(res.MergeCommit))
	case res.Success:
		fmt.Fprintf(&b, "Merged as `%s`.\n", shortHash(res.MergeCommit))
	default:
		b.WriteString("| Conflicted file |\n|---|\n")
		for _, c := range res.Conflicts {
			fmt.Fprintf(&b, "| `%s` |\n", c)
		}
	}
	return b.String()
}
