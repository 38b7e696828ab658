package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/config"
	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/github"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type branchesFlags struct {
	Repo   string `json:"repo"`
	API    bool   `json:"api"`
	Output string `json:"output"`
}

var branchesCmd = &model.ExecutableCommand[branchesFlags]{
	Usage: "branches",
	Short: "List the branches of a repository",
	Run:   runBranches,
	Flags: []flag.Flag{
		repoFlag,
		flag.BooleanFlag{
			Name:        "api",
			Description: "list through the GitHub API instead of the git remote",
		},
		outputFlag,
	},
	RequiresToken: true,
}

func runBranches(ctx context.Context, flags branchesFlags) error {
	var branches []string
	if flags.API {
		owner, name, err := repoParts(flags.Repo)
		if err != nil {
			return err
		}
		client, err := github.New(ctx, config.GetGitHubToken())
		if err != nil {
			return err
		}
		if branches, err = client.ListBranches(ctx, owner, name); err != nil {
			return err
		}
	} else {
		err := withSession(ctx, flags.Repo, func(s *session) error {
			var err error
			branches, err = s.engine.ListBranches(ctx, s.handle)
			if engine.IsRecoverable(err) {
				log.From(ctx).Warn("could not list remote branches, showing the defaults", zap.Error(err))
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	if ok, err := printData(flags.Output, branches); ok {
		return err
	}
	w := stdout(ctx)
	for _, b := range branches {
		w.Printf("  %s", styles.Emphasized.Render(b))
	}
	return nil
}
