package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/config"
	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/github"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/model/flag"
	"github.com/gitmerge/gitmerge/internal/progress"
)

var repoFlag = flag.StringFlag{
	Name:        "repo",
	Shorthand:   "r",
	Description: "the GitHub repository, as owner/name or a clone URL",
	Required:    true,
}

var outputFlag = flag.EnumFlag{
	Name:          "output",
	Shorthand:     "o",
	Description:   "output format",
	DefaultValue:  "text",
	AllowedValues: []string{"text", "json", "yaml"},
}

// session is an engine plus the workspace handle of one repository.
type session struct {
	engine *engine.Engine
	handle *engine.Handle
}

// connect opens the workspace of repo, cloning it the first time. A merge
// left waiting by an earlier command is picked up again.
func connect(ctx context.Context, repo string) (*session, error) {
	owner, name, ok := github.ParseRepo(repo)
	if !ok {
		return nil, fmt.Errorf("invalid repository %q: expected owner/name or a GitHub URL", repo)
	}
	url := github.RepoURL(owner + "/" + name)

	opts, err := config.EngineOptions()
	if err != nil {
		return nil, err
	}
	logger := log.From(ctx)
	opts = append(opts,
		engine.WithLogger(logger),
		engine.WithObserver(progress.NewLogObserver(logger)),
	)
	e := engine.New(opts...)

	token := config.GetGitHubToken()
	h, err := e.Open(ctx, url, token)
	if errors.Is(err, engine.ErrNoRepository) {
		h, err = e.Init(ctx, url, token)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s/%s", owner, name)
	}

	logger.Info("workspace ready", zap.String("repo", owner+"/"+name), zap.String("state", string(h.State())))
	return &session{engine: e, handle: h}, nil
}

func (s *session) Close() error {
	return s.handle.Close()
}

// withSession runs fn against the workspace of repo and closes it after.
func withSession(ctx context.Context, repo string, fn func(s *session) error) error {
	s, err := connect(ctx, repo)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		log.From(ctx).WithInteractiveOnly().PrintlnUnstyled(styles.RenderErrorMessage(engine.Message(err)))
		return err
	}
	return nil
}

// repoParts splits repo into owner and name for the GitHub API.
func repoParts(repo string) (string, string, error) {
	owner, name, ok := github.ParseRepo(repo)
	if !ok {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name or a GitHub URL", repo)
	}
	return owner, name, nil
}

// printData writes v to stdout as JSON or YAML. It reports false for the
// text format, which each command renders itself.
func printData(format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	}
	return false, nil
}

func stdout(ctx context.Context) log.Logger {
	return log.From(ctx).WithWriter(os.Stdout)
}
