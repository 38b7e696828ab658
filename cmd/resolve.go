package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gitmerge/gitmerge/internal/charm"
	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type resolveFlags struct {
	Repo        string `json:"repo"`
	File        string `json:"file"`
	Strategy    string `json:"strategy"`
	ContentFile string `json:"content-file"`
	Region      int    `json:"region"`
	Side        string `json:"side"`
	KeepOpen    bool   `json:"keep-open"`
	All         bool   `json:"all"`
}

var resolveCmd = &model.ExecutableCommand[resolveFlags]{
	Usage: "resolve",
	Short: "Resolve a conflicted file",
	Long: `Resolve a conflicted file of the merge in progress.

Take one side of the whole file with --strategy, replace it with the contents
of a local file with --content-file, or settle one conflict region with
--region and --side. --all applies a strategy to every unresolved file.
Without any of these, an interactive terminal opens the file in an editor.`,
	Run:            runResolve,
	RunInteractive: runResolveInteractive,
	Flags: []flag.Flag{
		repoFlag,
		flag.StringFlag{
			Name:        "file",
			Shorthand:   "f",
			Description: "path of the conflicted file",
		},
		flag.EnumFlag{
			Name:          "strategy",
			Description:   "take one side of the file wholesale",
			AllowedValues: []string{string(merging.StrategyOurs), string(merging.StrategyTheirs)},
		},
		flag.StringFlag{
			Name:        "content-file",
			Description: "a local file holding the resolved content",
		},
		flag.IntFlag{
			Name:         "region",
			Description:  "index of the conflict region to resolve, as 'show' lists it",
			DefaultValue: -1,
		},
		flag.EnumFlag{
			Name:          "side",
			Description:   "with --region, the side to keep",
			AllowedValues: []string{string(merging.MarkerOurs), string(merging.MarkerTheirs), string(merging.MarkerBase)},
		},
		flag.BooleanFlag{
			Name:        "keep-open",
			Description: "with --content-file, save the content but leave the file unresolved",
		},
		flag.BooleanFlag{
			Name:        "all",
			Description: "with --strategy, resolve every unresolved file",
		},
	},
	RequiresToken: true,
}

func runResolve(ctx context.Context, flags resolveFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		return resolveWithFlags(ctx, s, flags)
	})
}

func resolveWithFlags(ctx context.Context, s *session, flags resolveFlags) error {
	w := stdout(ctx)

	if flags.All {
		if flags.Strategy == "" {
			return fmt.Errorf("--strategy is required with --all")
		}
		return resolveAll(ctx, s, merging.MergeStrategy(flags.Strategy))
	}

	if flags.File == "" {
		return fmt.Errorf("--file is required unless --all is set")
	}

	switch {
	case flags.Strategy != "":
		strategy := merging.MergeStrategy(flags.Strategy)
		if err := s.engine.ResolveWithStrategy(ctx, s.handle, flags.File, strategy); err != nil {
			return err
		}
		w.PrintfStyled(styles.Success, "Resolved %s with %s", flags.File, strategy)
	case flags.ContentFile != "":
		content, err := os.ReadFile(flags.ContentFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", flags.ContentFile)
		}
		if err := s.engine.ResolveConflict(ctx, s.handle, flags.File, string(content), !flags.KeepOpen); err != nil {
			return err
		}
		if flags.KeepOpen {
			w.PrintfStyled(styles.Warning, "Saved %s, still marked for review", flags.File)
		} else {
			w.PrintfStyled(styles.Success, "Resolved %s", flags.File)
		}
	case flags.Region >= 0:
		text, err := regionSide(s, flags.File, flags.Region, flags.Side)
		if err != nil {
			return err
		}
		if err := s.engine.ResolveRegion(ctx, s.handle, flags.File, flags.Region, text); err != nil {
			return err
		}
		w.PrintfStyled(styles.Success, "Resolved region %d of %s with %s", flags.Region, flags.File, flags.Side)
	default:
		return fmt.Errorf("one of --strategy, --content-file or --region is required")
	}

	printRemaining(ctx, s)
	return nil
}

// resolveAll applies strategy to every unresolved file, carrying on past
// failures so one bad file does not block the rest.
func resolveAll(ctx context.Context, s *session, strategy merging.MergeStrategy) error {
	paths := s.engine.Store().Unresolved()
	if len(paths) == 0 {
		stdout(ctx).PrintfStyled(styles.Success, "Nothing left to resolve")
		return nil
	}

	var errs *multierror.Error
	for _, p := range paths {
		if err := s.engine.ResolveWithStrategy(ctx, s.handle, p, strategy); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, p))
		}
	}

	resolved := len(paths)
	if errs != nil {
		resolved -= errs.Len()
	}
	stdout(ctx).PrintfStyled(styles.Success, "Resolved %d %s with %s", resolved, utils.Pluralize(resolved, "file"), strategy)
	return errs.ErrorOrNil()
}

// regionSide returns the text of one side of a conflict region.
func regionSide(s *session, path string, index int, side string) (string, error) {
	f, ok := s.engine.Store().File(path)
	if !ok {
		return "", fmt.Errorf("%s has no conflicts", path)
	}
	if index >= len(f.Regions) {
		return "", fmt.Errorf("%s has %d conflict %s", path, len(f.Regions), utils.Pluralize(len(f.Regions), "region"))
	}

	if side == "" {
		return "", fmt.Errorf("--side is required with --region")
	}
	m := f.Regions[index].Side(merging.MarkerType(side))
	if m == nil {
		return "", fmt.Errorf("region %d of %s has no %s side", index, path, side)
	}
	return m.Content, nil
}

func printRemaining(ctx context.Context, s *session) {
	w := stdout(ctx)
	left := s.engine.Store().Unresolved()
	if len(left) == 0 {
		w.PrintfStyled(styles.DimmedItalic, "All conflicts resolved. Run 'gitmerge commit' to finish the merge.")
		return
	}
	w.PrintfStyled(styles.DimmedItalic, "%d %s left: %s", len(left), utils.Pluralize(len(left), "file"), strings.Join(left, ", "))
}

func runResolveInteractive(ctx context.Context, flags resolveFlags) error {
	if flags.All || flags.Strategy != "" || flags.ContentFile != "" || flags.Region >= 0 {
		return runResolve(ctx, flags)
	}

	return withSession(ctx, flags.Repo, func(s *session) error {
		path := flags.File
		if path == "" {
			left := s.engine.Store().Unresolved()
			if len(left) == 0 {
				stdout(ctx).PrintfStyled(styles.Success, "Nothing left to resolve")
				return nil
			}
			selected, err := charm.Select("Select a file to resolve", left)
			if err != nil {
				return err
			}
			path = selected
		}

		f, ok := s.engine.Store().File(path)
		if !ok {
			return fmt.Errorf("%s has no conflicts", path)
		}
		s.engine.Store().SetCurrentFile(path)

		if f.Binary {
			return resolveBinaryInteractive(ctx, s, f)
		}

		edited, err := charm.Edit(f.Path, regionSummary(f), f.CurrentContent)
		if err != nil {
			return err
		}
		done, err := charm.Confirm("Mark " + f.Path + " as resolved?")
		if err != nil {
			return err
		}
		if err := s.engine.ResolveConflict(ctx, s.handle, f.Path, edited, done); err != nil {
			return err
		}

		printRemaining(ctx, s)
		return nil
	})
}

func resolveBinaryInteractive(ctx context.Context, s *session, f conflicts.File) error {
	side, err := charm.Select(f.Path+" is binary. Keep which side?", []string{string(merging.StrategyOurs), string(merging.StrategyTheirs)})
	if err != nil {
		return err
	}
	if err := s.engine.ResolveWithStrategy(ctx, s.handle, f.Path, merging.MergeStrategy(side)); err != nil {
		return err
	}
	printRemaining(ctx, s)
	return nil
}

func regionSummary(f conflicts.File) string {
	open := lo.CountBy(f.Regions, func(r conflicts.Region) bool { return !r.Resolved })
	return fmt.Sprintf("%s, %d of %d %s unresolved", f.Type, open, len(f.Regions), utils.Pluralize(len(f.Regions), "region"))
}
