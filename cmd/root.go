package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/config"
	"github.com/gitmerge/gitmerge/internal/interactivity"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "gitmerge",
	Short: "Merge GitHub branches and resolve conflicts from the terminal",
	Long: `gitmerge clones a GitHub repository into a local workspace and walks a merge through to the remote.

Preview a merge, run it, review conflicted files one region at a time,
then commit the resolution and push it back. No git installation needed.`,
	RunE: rootExec,
}

// commands in the order help lists them
var commands = []model.Command{
	reposCmd,
	branchesCmd,
	previewCmd,
	mergeCmd,
	statusCmd,
	showCmd,
	resolveCmd,
	commitCmd,
	pushCmd,
	pullCmd,
	abortCmd,
	configCmd,
}

var l = log.New().WithLevel(log.LevelInfo)

func init() {
	cobra.EnableCommandSorting = false
	if err := config.Load(); err != nil {
		l.Error("", zap.Error(err))
		os.Exit(1)
	}
}

func Execute(version string) {
	if err := setupRootCmd(version); err != nil {
		l.Error("", zap.Error(err))
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		l.Error("", zap.Error(err))
		l.WithInteractiveOnly().PrintfStyled(styles.DimmedItalic, "Run '%s --help' for usage.\n", rootCmd.CommandPath())
		os.Exit(1)
	}
}

// CmdForTest builds the command tree without running it.
func CmdForTest(version string) (*cobra.Command, error) {
	if err := setupRootCmd(version); err != nil {
		return nil, err
	}
	return rootCmd, nil
}

func setupRootCmd(version string) error {
	rootCmd.Version = version
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().String("logLevel", string(log.LevelInfo), fmt.Sprintf("the log level (available options: [%s])", strings.Join(log.Levels, ", ")))
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setLogLevel(cmd)
	}

	for _, c := range commands {
		sub, err := c.Init()
		if err != nil {
			return err
		}
		rootCmd.AddCommand(sub)
	}
	return nil
}

func setLogLevel(cmd *cobra.Command) error {
	logLevel, err := cmd.Flags().GetString("logLevel")
	if err != nil {
		return err
	}
	if !slices.Contains(log.Levels, logLevel) {
		return fmt.Errorf("log level must be one of: %s", strings.Join(log.Levels, ", "))
	}

	l = l.WithLevel(log.Level(logLevel))
	cmd.SetContext(log.With(cmd.Context(), l))
	return nil
}

func rootExec(cmd *cobra.Command, args []string) error {
	if !utils.IsInteractive() {
		return cmd.Help()
	}

	w := log.From(cmd.Context()).WithInteractiveOnly()
	w.PrintfStyled(styles.HeavilyEmphasized, "Welcome to gitmerge!\n")
	w.PrintfStyled(styles.DimmedItalic, "This is interactive mode. For usage, run gitmerge -h instead.\n")

	return interactivity.InteractiveExec(cmd, args, "Select a command to run")
}
