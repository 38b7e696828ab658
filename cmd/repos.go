package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/config"
	"github.com/gitmerge/gitmerge/internal/github"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

type reposFlags struct {
	Output string `json:"output"`
}

var reposCmd = &model.ExecutableCommand[reposFlags]{
	Usage:         "repos",
	Short:         "List the GitHub repositories your token can access",
	Run:           runRepos,
	Flags:         []flag.Flag{outputFlag},
	RequiresToken: true,
}

type reposOutput struct {
	User         *github.User        `json:"user" yaml:"user"`
	Repositories []github.Repository `json:"repositories" yaml:"repositories"`
}

func runRepos(ctx context.Context, flags reposFlags) error {
	client, err := github.New(ctx, config.GetGitHubToken())
	if err != nil {
		return err
	}

	var out reposOutput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := client.CurrentUser(gctx)
		out.User = user
		return err
	})
	g.Go(func() error {
		repos, err := client.ListRepositories(gctx)
		out.Repositories = repos
		return err
	})
	if err := g.Wait(); err != nil {
		if github.IsUnauthorized(err) {
			return fmt.Errorf("GitHub rejected the token, check its scopes: %w", err)
		}
		return err
	}

	if ok, err := printData(flags.Output, out); ok {
		return err
	}

	w := stdout(ctx)
	w.PrintfStyled(styles.HeavilyEmphasized, "Repositories of %s", out.User.Login)
	for _, r := range out.Repositories {
		visibility := "public"
		if r.Private {
			visibility = "private"
		}
		w.Printf("  %s %s", styles.Emphasized.Render(r.FullName),
			styles.Dimmed.Render(fmt.Sprintf("(%s, %s, updated %s)", r.DefaultBranch, visibility, humanize.Time(r.UpdatedAt))))
	}
	return nil
}
