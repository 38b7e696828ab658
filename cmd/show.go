package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type showFlags struct {
	Repo   string `json:"repo"`
	File   string `json:"file"`
	Branch string `json:"branch"`
	Diff   bool   `json:"diff"`
	Output string `json:"output"`
}

var fileFlag = flag.StringFlag{
	Name:        "file",
	Shorthand:   "f",
	Description: "path of the file, relative to the repository root",
	Required:    true,
}

var showCmd = &model.ExecutableCommand[showFlags]{
	Usage: "show",
	Short: "Show a conflicted file, its conflict regions and your edits",
	Run:   runShow,
	Flags: []flag.Flag{
		repoFlag,
		fileFlag,
		flag.StringFlag{
			Name:        "branch",
			Shorthand:   "b",
			Description: "print the file as it is on this branch instead",
		},
		flag.BooleanFlag{
			Name:        "diff",
			Description: "diff the target branch version against the source branch version",
		},
		outputFlag,
	},
	RequiresToken: true,
}

func runShow(ctx context.Context, flags showFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		w := stdout(ctx)

		if flags.Branch != "" {
			content, err := s.engine.BranchFileContent(ctx, s.handle, flags.Branch, flags.File)
			if err != nil {
				return err
			}
			w.Print(string(content))
			return nil
		}

		f, ok := s.engine.Store().File(flags.File)
		if !ok {
			content, err := s.engine.FileContent(ctx, s.handle, flags.File)
			if err != nil {
				return err
			}
			w.Print(string(content))
			return nil
		}

		if flags.Diff {
			source, target := s.engine.Store().Branches()
			theirs, err := s.engine.BranchFileContent(ctx, s.handle, source, flags.File)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			ours, err := s.engine.BranchFileContent(ctx, s.handle, target, flags.File)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return printDiff(w, flags.File, ours, theirs, target, source)
		}

		if ok, err := printData(flags.Output, f); ok {
			return err
		}
		return printConflictFile(w, f)
	})
}

func printConflictFile(w log.Logger, f conflicts.File) error {
	w.PrintfStyled(styles.HeavilyEmphasized, "%s (%s, %s)", f.Path, f.Type, f.Status)
	if f.Binary {
		w.PrintfStyled(styles.DimmedItalic, "Binary file, resolve it with --strategy ours or theirs.")
		return nil
	}

	for i, r := range f.Regions {
		state := styles.Error.Render("unresolved")
		if r.Resolved {
			state = styles.Success.Render("resolved")
		}
		w.Printf("%s lines %d-%d %s", styles.Emphasized.Render(fmt.Sprintf("Region %d", i)), r.Start, r.End, state)
		printSide(w, r.Ours)
		if r.Base != nil {
			printSide(w, *r.Base)
		}
		printSide(w, r.Theirs)
	}

	if f.CurrentContent != f.OriginalContent {
		return printDiff(w, f.Path, []byte(f.OriginalContent), []byte(f.CurrentContent), "merged", "edited")
	}
	return nil
}

func printSide(w log.Logger, m merging.Marker) {
	w.PrintfStyled(styles.Side(string(m.Type)), "  %s:", m.Type)
	for _, line := range strings.Split(strings.TrimSuffix(m.Content, "\n"), "\n") {
		w.Printf("    %s", line)
	}
}

func printDiff(w log.Logger, path string, a, b []byte, fromLabel, toLabel string) error {
	d, err := merging.UnifiedDiff(path, a, b, fromLabel, toLabel)
	if err != nil {
		return err
	}
	if d.DiffText == "" {
		w.PrintfStyled(styles.DimmedItalic, "No differences")
		return nil
	}

	for _, line := range strings.Split(strings.TrimSuffix(d.DiffText, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			w.Println(styles.Added.Render(line))
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			w.Println(styles.Removed.Render(line))
		default:
			w.Println(line)
		}
	}
	w.PrintfStyled(styles.Dimmed, "+%d -%d", d.Stats.Added, d.Stats.Removed)
	return nil
}
