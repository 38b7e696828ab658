package cmd

import (
	"context"
	"fmt"

	"github.com/gitmerge/gitmerge/internal/charm"
	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type commitFlags struct {
	Repo    string `json:"repo"`
	Message string `json:"message"`
	Push    bool   `json:"push"`
}

var commitCmd = &model.ExecutableCommand[commitFlags]{
	Usage:          "commit",
	Short:          "Commit the workspace, finishing a resolved merge",
	Run:            runCommit,
	RunInteractive: runCommitInteractive,
	Flags: []flag.Flag{
		repoFlag,
		flag.StringFlag{
			Name:        "message",
			Shorthand:   "m",
			Description: "the commit message",
		},
		flag.BooleanFlag{
			Name:        "push",
			Description: "push the branch after committing",
		},
	},
	RequiresToken: true,
}

func runCommit(ctx context.Context, flags commitFlags) error {
	return commit(ctx, flags, false)
}

func runCommitInteractive(ctx context.Context, flags commitFlags) error {
	return commit(ctx, flags, true)
}

func commit(ctx context.Context, flags commitFlags, prompt bool) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		message := flags.Message
		if message == "" && prompt {
			var err error
			if message, err = charm.Input("Commit message", "leave empty for the default message", false); err != nil {
				return err
			}
		}

		hash, err := s.engine.CommitChanges(ctx, s.handle, message)
		if err != nil {
			return err
		}
		w := stdout(ctx)
		w.PrintfStyled(styles.Success, "Committed %s", shortHash(hash))

		if !flags.Push {
			return nil
		}
		if err := s.engine.Push(ctx, s.handle, ""); err != nil {
			return err
		}
		branch, err := s.engine.CurrentBranch(s.handle)
		if err != nil {
			return err
		}
		w.PrintlnUnstyled(styles.RenderSuccessMessage("merge published", fmt.Sprintf("%s pushed as %s", branch, shortHash(hash))))
		return nil
	})
}
