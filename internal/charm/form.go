package charm

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/gitmerge/gitmerge/internal/charm/styles"
)

var theme = newTheme()

func newTheme() *huh.Theme {
	t := huh.ThemeBase()

	f := &t.Focused
	f.Base = f.Base.BorderForeground(styles.Colors.Yellow)
	f.Title = f.Title.Foreground(styles.Colors.Yellow).Bold(true)
	f.Description = f.Description.Foreground(styles.Colors.Grey).Italic(true)
	f.ErrorIndicator = f.ErrorIndicator.Foreground(styles.Colors.Red)
	f.ErrorMessage = f.ErrorMessage.Foreground(styles.Colors.Red)
	f.SelectSelector = f.SelectSelector.Foreground(styles.Colors.Yellow)
	f.SelectedOption = f.SelectedOption.Foreground(styles.Colors.Yellow)
	f.FocusedButton = f.FocusedButton.Background(styles.Colors.Green)
	f.BlurredButton = f.BlurredButton.Background(styles.Colors.Grey)
	f.TextInput.Cursor = f.TextInput.Cursor.Foreground(styles.Colors.Yellow)
	f.TextInput.Placeholder = f.TextInput.Placeholder.Foreground(styles.Colors.Grey).Italic(true)
	f.TextInput.Prompt = f.TextInput.Prompt.Foreground(styles.Colors.Yellow)

	b := &t.Blurred
	b.Description = b.Description.Italic(true)
	b.SelectedOption = b.SelectedOption.Foreground(styles.Colors.Yellow)
	b.SelectSelector = b.SelectSelector.Foreground(styles.Colors.Yellow)

	return t
}

// ErrAborted is returned when the user leaves a prompt with esc or ctrl+c.
var ErrAborted = errors.New("prompt aborted")

// Run shows form with the shared theme, under an optional title and
// description.
func Run(form *huh.Form, header ...string) error {
	if len(header) > 0 {
		fmt.Println(FormatCommandTitle(header[0], description(header)))
	}

	if err := form.WithTheme(theme).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

func description(header []string) string {
	if len(header) > 1 {
		return header[1]
	}
	return ""
}

func FormatCommandTitle(title, description string) string {
	header := styles.HeavilyEmphasized.Render(title)
	if description != "" {
		header += "\n" + styles.DimmedItalic.Render(description)
	}
	return header + "\n"
}

func Confirm(title string) (bool, error) {
	var ok bool
	err := Run(huh.NewForm(huh.NewGroup(huh.NewConfirm().
		Title(title).
		Affirmative("Yes.").
		Negative("No.").
		Value(&ok))))
	return ok, err
}

func Select(title string, options []string) (string, error) {
	var selected string
	err := Run(huh.NewForm(huh.NewGroup(huh.NewSelect[string]().
		Title(title).
		Options(huh.NewOptions(options...)...).
		Value(&selected))))
	return selected, err
}

// Input asks for a single line. secret hides what is typed.
func Input(title, placeholder string, secret bool) (string, error) {
	var value string
	input := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value)
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}
	err := Run(huh.NewForm(huh.NewGroup(input)))
	return value, err
}

// Edit opens a multi-line editor seeded with value.
func Edit(title, description, value string) (string, error) {
	err := Run(huh.NewForm(huh.NewGroup(huh.NewText().
		Title(title).
		Description(description).
		Lines(20).
		Value(&value))))
	return value, err
}
