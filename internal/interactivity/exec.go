package interactivity

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gitmerge/gitmerge/internal/charm"
	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/utils"
)

type RunE = func(cmd *cobra.Command, args []string) error

func InteractiveRunFn(label string) RunE {
	return func(cmd *cobra.Command, args []string) error {
		return InteractiveExec(cmd, args, label)
	}
}

// InteractiveExec lets the user pick a subcommand of cmd, asks for its
// missing required flags and runs it. Outside a terminal it prints help.
func InteractiveExec(cmd *cobra.Command, args []string, label string) error {
	if !utils.IsInteractive() {
		return cmd.Help()
	}

	selected, err := SelectCommand(label, cmd)
	if err != nil || selected == nil {
		return err
	}
	selected.SetContext(cmd.Context())

	if err := GetMissingFlags(selected); err != nil {
		return err
	}

	if selected.PreRunE != nil {
		if err := selected.PreRunE(selected, args); err != nil {
			return err
		}
	}
	if selected.RunE != nil {
		return selected.RunE(selected, args)
	}
	if selected.Run != nil {
		selected.Run(selected, args)
	}
	return nil
}

func SelectCommand(label string, cmd *cobra.Command) (*cobra.Command, error) {
	if !cmd.HasSubCommands() {
		return cmd, nil
	}

	subcommands := lo.Reject(cmd.Commands(), func(c *cobra.Command, _ int) bool { return isHidden(c) })
	if len(subcommands) == 0 {
		return nil, nil
	}

	names := lo.Map(subcommands, func(c *cobra.Command, _ int) string {
		return fmt.Sprintf("%s - %s", c.Name(), c.Short)
	})
	choice, err := charm.Select(label, names)
	if err != nil {
		if err == charm.ErrAborted {
			return nil, nil
		}
		return nil, err
	}

	_, i, _ := lo.FindIndexOf(names, func(n string) bool { return n == choice })
	if i < 0 {
		return nil, nil
	}
	return SelectCommand(label, subcommands[i])
}

func GetMissingFlagsPreRun(cmd *cobra.Command, args []string) error {
	if !utils.IsInteractive() {
		return nil
	}
	return GetMissingFlags(cmd)
}

// GetMissingFlags prompts for required flags the user did not pass.
func GetMissingFlags(cmd *cobra.Command) error {
	var missing []*pflag.Flag
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Hidden || slices.Contains(utils.FlagsToIgnore, f.Name) {
			return
		}
		if a, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(a) > 0 && a[0] == "true" {
			missing = append(missing, f)
		}
	})
	if len(missing) == 0 {
		return nil
	}

	for _, f := range missing {
		v, err := charm.Input(fmt.Sprintf("--%s", f.Name), f.Usage, false)
		if err != nil {
			return err
		}
		if err := cmd.Flags().Set(f.Name, v); err != nil {
			return err
		}
	}

	flagString := ""
	cmd.Flags().Visit(func(f *pflag.Flag) {
		flagString += fmt.Sprintf(" --%s=%s", f.Name, f.Value)
	})
	running := styles.DimmedItalic.Render("Running command")
	command := styles.Info.Render(cmd.CommandPath() + flagString)
	log.From(cmd.Context()).Printf("\n%s %s\n", running, command)
	return nil
}

func isHidden(cmd *cobra.Command) bool {
	_, hasHiddenAnnotation := cmd.Annotations["hide"]
	return cmd.Hidden || hasHiddenAnnotation || cmd.Name() == "completion" || cmd.Name() == "help"
}
