package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
	"github.com/gitmerge/gitmerge/internal/config"
	"github.com/gitmerge/gitmerge/internal/model"
	"github.com/gitmerge/gitmerge/internal/model/flag"
)

var configCmd = &model.CommandGroup{
	Usage:          "config",
	Short:          "Read and change gitmerge settings",
	Long:           "Settings live in ~/.gitmerge/config.yaml. Environment variables prefixed with GITMERGE_ override them.",
	InteractiveMsg: "What do you want to do?",
	Commands:       []model.Command{configSetCmd, configGetCmd, configKeysCmd},
}

var keyFlag = flag.StringFlag{
	Name:        "key",
	Shorthand:   "k",
	Description: fmt.Sprintf("the setting (available keys: %s)", strings.Join(config.Keys, ", ")),
	Required:    true,
}

type configSetFlags struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var configSetCmd = &model.ExecutableCommand[configSetFlags]{
	Usage: "set",
	Short: "Change a setting",
	Run:   runConfigSet,
	Flags: []flag.Flag{
		keyFlag,
		flag.StringFlag{
			Name:        "value",
			Shorthand:   "v",
			Description: "the new value",
			Required:    true,
		},
	},
}

func runConfigSet(ctx context.Context, flags configSetFlags) error {
	if err := config.Set(flags.Key, flags.Value); err != nil {
		return err
	}
	stdout(ctx).PrintfStyled(styles.Success, "Set %s", flags.Key)
	return nil
}

type configGetFlags struct {
	Key string `json:"key"`
}

var configGetCmd = &model.ExecutableCommand[configGetFlags]{
	Usage: "get",
	Short: "Print a setting",
	Run:   runConfigGet,
	Flags: []flag.Flag{keyFlag},
}

func runConfigGet(ctx context.Context, flags configGetFlags) error {
	stdout(ctx).Println(displayValue(flags.Key, config.Get(flags.Key)))
	return nil
}

type configKeysFlags struct {
	Output string `json:"output"`
}

var configKeysCmd = &model.ExecutableCommand[configKeysFlags]{
	Usage: "list",
	Short: "List every setting and its current value",
	Run:   runConfigKeys,
	Flags: []flag.Flag{outputFlag},
}

func runConfigKeys(ctx context.Context, flags configKeysFlags) error {
	values := make(map[string]string, len(config.Keys))
	for _, k := range config.Keys {
		values[k] = displayValue(k, config.Get(k))
	}
	if ok, err := printData(flags.Output, values); ok {
		return err
	}

	w := stdout(ctx)
	for _, k := range config.Keys {
		w.Printf("%s %s", styles.Emphasized.Render(k+":"), values[k])
	}
	return nil
}

// displayValue keeps the token off the screen.
func displayValue(key string, v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	if key == config.GitHubTokenKey && len(s) > 4 {
		return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
	}
	return s
}
