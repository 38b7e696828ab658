package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type previewFlags struct {
	Repo   string `json:"repo"`
	Source string `json:"source"`
	Target string `json:"target"`
	Output string `json:"output"`
}

var sourceFlag = flag.StringFlag{
	Name:        "source",
	Shorthand:   "s",
	Description: "the branch to merge",
	Required:    true,
}

var targetFlag = flag.StringFlag{
	Name:        "target",
	Shorthand:   "t",
	Description: "the branch to merge into",
	Required:    true,
}

var previewCmd = &model.ExecutableCommand[previewFlags]{
	Usage: "preview",
	Short: "Show what merging one branch into another would change, without merging",
	Run:   runPreview,
	Flags: []flag.Flag{
		repoFlag,
		sourceFlag,
		targetFlag,
		outputFlag,
	},
	RequiresToken: true,
}

func runPreview(ctx context.Context, flags previewFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		preview, err := s.engine.PreviewMerge(ctx, s.handle, flags.Source, flags.Target)
		if err != nil {
			return err
		}

		if ok, err := printData(flags.Output, preview); ok {
			return err
		}
		printPreview(ctx, preview)
		return nil
	})
}

func printPreview(ctx context.Context, p *engine.MergePreview) {
	w := stdout(ctx)
	w.PrintfStyled(styles.HeavilyEmphasized, "Merging %s into %s", p.Source, p.Target)

	switch {
	case p.UpToDate:
		w.PrintfStyled(styles.Success, "Already up to date")
		return
	case p.FastForward:
		w.PrintfStyled(styles.Success, "Fast-forward, no merge commit needed")
	}

	printPaths(w, styles.Added, "+", p.Changes.Added)
	printPaths(w, styles.Modified, "~", p.Changes.Modified)
	printPaths(w, styles.Removed, "-", p.Changes.Deleted)

	if p.CanMerge {
		w.PrintfStyled(styles.Success, "Can be merged cleanly")
		return
	}
	w.PrintfStyled(styles.Warning, "%d %s would conflict:", len(p.Conflicts), utils.Pluralize(len(p.Conflicts), "file"))
	printPaths(w, styles.Error, "!", p.Conflicts)
}

func printPaths(w log.Logger, style lipgloss.Style, prefix string, paths []string) {
	for _, p := range paths {
		w.Println(style.Render(fmt.Sprintf("  %s %s", prefix, p)))
	}
}
