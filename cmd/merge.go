package cmd

import (
	"context"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type mergeFlags struct {
	Repo   string `json:"repo"`
	Source string `json:"source"`
	Target string `json:"target"`
	Push   bool   `json:"push"`
	Output string `json:"output"`
}

var mergeCmd = &model.ExecutableCommand[mergeFlags]{
	Usage: "merge",
	Short: "Merge a source branch into a target branch",
	Long: `Merge a source branch into a target branch.

A clean merge is committed straight away; pass --push to publish it too.
A conflicted merge is left in the workspace: review it with 'status' and 'show',
settle each file with 'resolve', then 'commit' and 'push'.`,
	Run: runMerge,
	Flags: []flag.Flag{
		repoFlag,
		sourceFlag,
		targetFlag,
		flag.BooleanFlag{
			Name:        "push",
			Description: "push the target branch when the merge is clean",
		},
		outputFlag,
	},
	RequiresToken: true,
}

func runMerge(ctx context.Context, flags mergeFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		res, err := s.engine.Merge(ctx, s.handle, flags.Source, flags.Target)
		if err != nil {
			return err
		}

		if res.Success && flags.Push && !res.UpToDate {
			if err := s.engine.Push(ctx, s.handle, flags.Target); err != nil {
				return err
			}
		}

		reportToActions(flags.Source, flags.Target, res)
		if ok, err := printData(flags.Output, res); ok {
			return err
		}
		printMergeResult(ctx, flags.Source, flags.Target, res)
		return nil
	})
}

func printMergeResult(ctx context.Context, source, target string, res *engine.MergeResult) {
	w := stdout(ctx)
	switch {
	case res.UpToDate:
		w.PrintfStyled(styles.Success, "%s is already up to date with %s", target, source)
	case res.FastForward:
		w.PrintfStyled(styles.Success, "Fast-forwarded %s to %s", target, shortHash(res.MergeCommit))
	case res.Success:
		w.PrintfStyled(styles.Success, "Merged %s into %s as %s", source, target, shortHash(res.MergeCommit))
	default:
		w.PrintfStyled(styles.Warning, "Merge stopped with %d conflicted %s:", len(res.Conflicts), utils.Pluralize(len(res.Conflicts), "file"))
		printPaths(w, styles.Error, "!", res.Conflicts)
		w.PrintfStyled(styles.DimmedItalic, "Resolve them with 'gitmerge resolve', then run 'gitmerge commit'.")
	}
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
