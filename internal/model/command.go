package model

import (
	"context"
	"fmt"

	"github.com/fatih/structs"
	"github.com/spf13/cobra"

	"github.com/gitmerge/gitmerge/internal/charm"
	"github.com/gitmerge/gitmerge/internal/config"
	"github.com/gitmerge/gitmerge/internal/env"
	"github.com/gitmerge/gitmerge/internal/interactivity"
	"github.com/gitmerge/gitmerge/internal/model/flag"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type Command interface {
	Init() (*cobra.Command, error)
}

var (
	_ Command = ExecutableCommand[struct{}]{}
	_ Command = CommandGroup{}
)

// CommandGroup only holds subcommands. Run bare in a terminal it lets the
// user pick one.
type CommandGroup struct {
	Usage, Short, Long, InteractiveMsg string
	Aliases                            []string
	Commands                           []Command
}

func (c CommandGroup) Init() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     c.Usage,
		Short:   c.Short,
		Long:    c.Long,
		Aliases: c.Aliases,
		RunE:    interactivity.InteractiveRunFn(c.InteractiveMsg),
	}

	for _, sub := range c.Commands {
		subcmd, err := sub.Init()
		if err != nil {
			return nil, err
		}
		cmd.AddCommand(subcmd)
	}
	return cmd, nil
}

// ExecutableCommand is a leaf command. F is its flags struct: every flag in
// Flags fills the field whose json tag matches the flag name.
//
// RunInteractive, when set, replaces Run in a terminal. RequiresToken makes
// sure a GitHub token is configured before either runs.
type ExecutableCommand[F any] struct {
	Usage, Short, Long    string
	Aliases               []string
	Flags                 []flag.Flag
	PreRun                func(cmd *cobra.Command, flags *F) error
	Run                   func(ctx context.Context, flags F) error
	RunInteractive        func(ctx context.Context, flags F) error
	Hidden, RequiresToken bool
}

func (c ExecutableCommand[F]) Init() (*cobra.Command, error) {
	if err := c.checkFlags(); err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:     c.Usage,
		Short:   c.Short,
		Long:    c.Long,
		Aliases: c.Aliases,
		PreRunE: c.preRun,
		RunE:    c.run,
		Hidden:  c.Hidden,
	}

	for _, f := range c.Flags {
		if err := f.Init(cmd); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

func (c ExecutableCommand[F]) preRun(cmd *cobra.Command, args []string) error {
	flags, err := c.GetFlagValues(cmd)
	if err != nil {
		return err
	}
	if c.PreRun != nil {
		if err := c.PreRun(cmd, flags); err != nil {
			return err
		}
	}
	return interactivity.GetMissingFlagsPreRun(cmd, args)
}

func (c ExecutableCommand[F]) run(cmd *cobra.Command, args []string) error {
	if c.RequiresToken {
		if err := ensureToken(); err != nil {
			return err
		}
	}

	// flags may have been filled in by the prompts of preRun
	flags, err := c.GetFlagValues(cmd)
	if err != nil {
		return err
	}

	interactive := c.RunInteractive != nil && utils.IsInteractive() && !env.IsGithubAction()
	switch {
	case interactive:
		return c.RunInteractive(cmd.Context(), *flags)
	case c.Run != nil:
		return c.Run(cmd.Context(), *flags)
	}
	return fmt.Errorf("%s is only available in an interactive terminal", c.Usage)
}

// checkFlags makes sure every flag has a field to land in.
func (c ExecutableCommand[F]) checkFlags() error {
	var f F
	fields := fieldsByTag(&f)
	for _, def := range c.Flags {
		if _, ok := fields[def.GetName()]; !ok {
			return fmt.Errorf("flag %s is missing from flags type for command %s", def.GetName(), c.Usage)
		}
	}
	return nil
}

// GetFlagValues parses the current flag values of cmd into F.
func (c ExecutableCommand[F]) GetFlagValues(cmd *cobra.Command) (*F, error) {
	values := new(F)
	fields := fieldsByTag(values)

	for _, def := range c.Flags {
		name := def.GetName()
		pf := cmd.Flags().Lookup(name)
		field, ok := fields[name]
		if pf == nil || !ok {
			continue
		}

		v, err := def.ParseValue(pf.Value.String())
		if err != nil {
			return nil, fmt.Errorf("invalid value for --%s: %w", name, err)
		}
		if err := field.Set(v); err != nil {
			return nil, fmt.Errorf("flag %s cannot be stored in field %s: %w", name, field.Name(), err)
		}
	}
	return values, nil
}

func fieldsByTag(ptr any) map[string]*structs.Field {
	out := make(map[string]*structs.Field)
	for _, f := range structs.Fields(ptr) {
		out[f.Tag("json")] = f
	}
	return out
}

// ensureToken asks for a GitHub token when none is configured and stores it.
func ensureToken() error {
	if config.GetGitHubToken() != "" {
		return nil
	}
	if !utils.IsInteractive() || env.IsGithubAction() {
		return fmt.Errorf("no GitHub token configured: set GITHUB_TOKEN or run `gitmerge config set --key %s --value <token>`", config.GitHubTokenKey)
	}

	token, err := charm.Input("GitHub personal access token", "ghp_...", true)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("a GitHub token is required")
	}
	return config.SetGitHubToken(token)
}
