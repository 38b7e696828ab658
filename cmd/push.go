package cmd

import (
	"context"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type pushFlags struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

var pushCmd = &model.ExecutableCommand[pushFlags]{
	Usage: "push",
	Short: "Push a branch of the workspace to GitHub",
	Run:   runPush,
	Flags: []flag.Flag{
		repoFlag,
		flag.StringFlag{
			Name:        "branch",
			Shorthand:   "b",
			Description: "the branch to push, the current branch by default",
		},
	},
	RequiresToken: true,
}

func runPush(ctx context.Context, flags pushFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		branch := flags.Branch
		if branch == "" {
			current, err := s.engine.CurrentBranch(s.handle)
			if err != nil {
				return err
			}
			branch = current
		}

		if err := s.engine.Push(ctx, s.handle, branch); err != nil {
			return err
		}
		stdout(ctx).PrintfStyled(styles.Success, "Pushed %s", branch)
		return nil
	})
}
