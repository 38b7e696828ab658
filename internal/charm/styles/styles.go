package styles

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/gitmerge/gitmerge/internal/utils"
)

var (
	HeavilyEmphasized = lipgloss.
				NewStyle().
				Foreground(Colors.Yellow).
				Bold(true)

	Emphasized = HeavilyEmphasized.Foreground(Colors.WhiteBlackAdaptive)

	Info    = Emphasized.Foreground(Colors.Blue)
	Warning = Emphasized.Foreground(Colors.Yellow)
	Error   = Emphasized.Foreground(Colors.Red)
	Success = Emphasized.Foreground(Colors.Green)

	Dimmed       = lipgloss.NewStyle().Foreground(Colors.Grey)
	DimmedItalic = Dimmed.Italic(true)
	Help         = DimmedItalic

	// Tree changes and diff lines.
	Added    = lipgloss.NewStyle().Foreground(Colors.Green)
	Removed  = lipgloss.NewStyle().Foreground(Colors.Red)
	Modified = lipgloss.NewStyle().Foreground(Colors.Yellow)

	// The sides of a conflict region.
	Ours   = lipgloss.NewStyle().Foreground(Colors.Blue).Bold(true)
	Theirs = lipgloss.NewStyle().Foreground(Colors.Green).Bold(true)
	Base   = lipgloss.NewStyle().Foreground(Colors.Grey).Bold(true)

	Colors = struct {
		Yellow, Red, Green, Grey, WhiteBlackAdaptive, Blue lipgloss.AdaptiveColor
	}{
		Yellow:             lipgloss.AdaptiveColor{Dark: "#FBE331", Light: "#C0A802"},
		WhiteBlackAdaptive: lipgloss.AdaptiveColor{Dark: "#F3F0E3", Light: "#16150E"},
		Red:                lipgloss.AdaptiveColor{Dark: "#D93337", Light: "#54121B"},
		Green:              lipgloss.AdaptiveColor{Dark: "#63AC67", Light: "#5B8537"},
		Grey:               lipgloss.AdaptiveColor{Dark: "#8A887D", Light: "#68675F"},
		Blue:               lipgloss.AdaptiveColor{Dark: "#679FE1", Light: "#1D2A3A"},
	}
)

// Side picks the style of a conflict side by its marker name.
func Side(name string) lipgloss.Style {
	switch strings.ToLower(name) {
	case "ours":
		return Ours
	case "theirs":
		return Theirs
	}
	return Base
}

func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// RenderSuccessMessage boxes a heading and its detail lines in green.
func RenderSuccessMessage(heading string, lines ...string) string {
	return boxed(Success, Dimmed, Colors.Green, heading, lines)
}

// RenderErrorMessage boxes a heading and its detail lines in red.
func RenderErrorMessage(heading string, lines ...string) string {
	return boxed(Error, lipgloss.NewStyle().Foreground(Colors.Red), Colors.Red, heading, lines)
}

func boxed(head, body lipgloss.Style, border lipgloss.AdaptiveColor, heading string, lines []string) string {
	s := head.Render(utils.CapitalizeFirst(heading))
	for _, line := range lines {
		s += "\n" + body.Render(line)
	}

	// the border and padding take two columns each side
	w := min(TerminalWidth()-2, lipgloss.Width(s)+2)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(w).
		Render(s)
}
