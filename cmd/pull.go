package cmd

import (
	"context"

	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type pullFlags struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	Output string `json:"output"`
}

var pullCmd = &model.ExecutableCommand[pullFlags]{
	Usage: "pull",
	Short: "Bring a branch of the workspace up to date with GitHub",
	Run:   runPull,
	Flags: []flag.Flag{
		repoFlag,
		flag.StringFlag{
			Name:        "branch",
			Shorthand:   "b",
			Description: "the branch to update",
			Required:    true,
		},
		outputFlag,
	},
	RequiresToken: true,
}

func runPull(ctx context.Context, flags pullFlags) error {
	return withSession(ctx, flags.Repo, func(s *session) error {
		res, err := s.engine.Pull(ctx, s.handle, flags.Branch)
		if err != nil {
			return err
		}

		reportToActions("origin/"+flags.Branch, flags.Branch, res)
		if ok, err := printData(flags.Output, res); ok {
			return err
		}
		printMergeResult(ctx, "origin/"+flags.Branch, flags.Branch, res)
		return nil
	})
}
