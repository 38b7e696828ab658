// Package flag declares the typed flags of a model.ExecutableCommand. Each
// flag registers itself on a cobra command and parses its raw value into
// what the command's flags struct expects.
package flag

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type Flag interface {
	Init(cmd *cobra.Command) error
	GetName() string
	ParseValue(v string) (interface{}, error)
}

var _ = []Flag{
	StringFlag{},
	BooleanFlag{},
	IntFlag{},
	EnumFlag{},
}

func markRequired(cmd *cobra.Command, name string, required bool) error {
	if !required {
		return nil
	}
	return cmd.MarkFlagRequired(name)
}

type StringFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 string
}

func (f StringFlag) Init(cmd *cobra.Command) error {
	cmd.Flags().StringP(f.Name, f.Shorthand, f.DefaultValue, f.Description)
	return markRequired(cmd, f.Name, f.Required)
}

func (f StringFlag) GetName() string {
	return f.Name
}

func (f StringFlag) ParseValue(v string) (interface{}, error) {
	return v, nil
}

type BooleanFlag struct {
	Name, Shorthand, Description string
	DefaultValue                 bool
}

func (f BooleanFlag) Init(cmd *cobra.Command) error {
	cmd.Flags().BoolP(f.Name, f.Shorthand, f.DefaultValue, f.Description)
	return nil
}

func (f BooleanFlag) GetName() string {
	return f.Name
}

func (f BooleanFlag) ParseValue(v string) (interface{}, error) {
	return strconv.ParseBool(v)
}

type IntFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 int
}

func (f IntFlag) Init(cmd *cobra.Command) error {
	cmd.Flags().IntP(f.Name, f.Shorthand, f.DefaultValue, f.Description)
	return markRequired(cmd, f.Name, f.Required)
}

func (f IntFlag) GetName() string {
	return f.Name
}

func (f IntFlag) ParseValue(v string) (interface{}, error) {
	return strconv.Atoi(v)
}

// EnumFlag is a string flag limited to AllowedValues. An empty value is
// accepted so optional enums can be left unset; cobra enforces Required.
type EnumFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 string
	AllowedValues                []string
}

func (f EnumFlag) Init(cmd *cobra.Command) error {
	if len(f.AllowedValues) == 0 {
		return fmt.Errorf("flag %s: allowed values must not be empty", f.Name)
	}
	if f.DefaultValue != "" && !slices.Contains(f.AllowedValues, f.DefaultValue) {
		return fmt.Errorf("flag %s: default value %s is not one of %s", f.Name, f.DefaultValue, strings.Join(f.AllowedValues, ", "))
	}

	desc := fmt.Sprintf("%s (one of: %s)", f.Description, strings.Join(f.AllowedValues, ", "))
	cmd.Flags().StringP(f.Name, f.Shorthand, f.DefaultValue, desc)
	if err := cmd.RegisterFlagCompletionFunc(f.Name, cobra.FixedCompletions(f.AllowedValues, cobra.ShellCompDirectiveNoFileComp)); err != nil {
		return err
	}
	return markRequired(cmd, f.Name, f.Required)
}

func (f EnumFlag) GetName() string {
	return f.Name
}

func (f EnumFlag) ParseValue(v string) (interface{}, error) {
	if v != "" && !slices.Contains(f.AllowedValues, v) {
		return nil, fmt.Errorf("%q is not one of %s", v, strings.Join(f.AllowedValues, ", "))
	}
	return v, nil
}
