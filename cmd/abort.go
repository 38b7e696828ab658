package cmd

import (
	"context"

	"github.com/gitmerge/gitmerge/internal/charm"
	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type abortFlags struct {
	Repo string `json:"repo"`
}

var abortCmd = &model.ExecutableCommand[abortFlags]{
	Usage:          "abort",
	Short:          "Abandon the merge in progress and restore the branch",
	Run:            runAbort,
	RunInteractive: runAbortInteractive,
	Flags: []flag.Flag{
		repoFlag,
	},
	RequiresToken: true,
}

func runAbort(ctx context.Context, flags abortFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		return abort(ctx, s)
	})
}

func runAbortInteractive(ctx context.Context, flags abortFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		source, target := s.engine.Store().Branches()
		if source != "" {
			ok, err := charm.Confirm("Abandon merging " + source + " into " + target + "? Your resolutions will be lost.")
			if err != nil || !ok {
				return err
			}
		}
		return abort(ctx, s)
	})
}

func abort(ctx context.Context, s *session) error {
	if err := s.engine.Abort(ctx, s.handle); err != nil {
		return err
	}
	stdout(ctx).PrintfStyled(styles.Success, "Merge aborted")
	return nil
}
