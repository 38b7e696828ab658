package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type statusFlags struct {
	Repo   string `json:"repo"`
	Output string `json:"output"`
}

var statusCmd = &model.ExecutableCommand[statusFlags]{
	Usage: "status",
	Short: "Show the workspace branch and any merge waiting for resolution",
	Run:   runStatus,
	Flags: []flag.Flag{
		repoFlag,
		outputFlag,
	},
	RequiresToken: true,
}

type statusOutput struct {
	Branch  string            `json:"branch" yaml:"branch"`
	State   engine.State      `json:"state" yaml:"state"`
	Session conflicts.Session `json:"session" yaml:"session"`
}

func runStatus(ctx context.Context, flags statusFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		branch, err := s.engine.CurrentBranch(s.handle)
		if err != nil {
			return err
		}
		out := statusOutput{
			Branch:  branch,
			State:   s.handle.State(),
			Session: s.engine.Store().Snapshot(),
		}

		if ok, err := printData(flags.Output, out); ok {
			return err
		}
		printStatus(ctx, out, s.engine.Store().GroupByDirectory())
		return nil
	})
}

func printStatus(ctx context.Context, out statusOutput, groups []conflicts.DirGroup) {
	w := stdout(ctx)
	w.Printf("%s %s", styles.Dimmed.Render("On branch"), styles.Emphasized.Render(out.Branch))

	if out.State != engine.StateConflicted {
		w.PrintfStyled(styles.Success, "No merge in progress")
		return
	}

	stats := out.Session.Stats
	w.PrintfStyled(styles.HeavilyEmphasized, "Merging %s into %s", out.Session.SourceBranch, out.Session.TargetBranch)
	w.Printf("%d files: %s, %s, %s",
		stats.Total,
		styles.Success.Render(fmt.Sprintf("%d resolved", stats.Resolved)),
		styles.Warning.Render(fmt.Sprintf("%d reviewing", stats.Reviewing)),
		styles.Error.Render(fmt.Sprintf("%d unresolved", stats.Unresolved)))

	for _, g := range groups {
		w.PrintfStyled(styles.Dimmed, "%s/", g.Dir)
		for _, f := range g.Files {
			detail := fmt.Sprintf("%s, %d %s", f.Type, len(f.Regions), utils.Pluralize(len(f.Regions), "region"))
			if f.Binary {
				detail = fmt.Sprintf("%s, binary", f.Type)
			}
			w.Printf("  %s %s %s", statusStyle(f.Status).Render(string(f.Status)), f.Path,
				styles.Dimmed.Render(fmt.Sprintf("(%s, %s)", detail, humanize.Bytes(uint64(len(f.CurrentContent))))))
		}
	}
}

func statusStyle(s conflicts.Status) lipgloss.Style {
	switch s {
	case conflicts.StatusResolved:
		return styles.Success
	case conflicts.StatusReviewing:
		return styles.Warning
	}
	return styles.Error
}
