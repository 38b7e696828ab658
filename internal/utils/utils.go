package utils

import (
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"
)

var FlagsToIgnore = []string{"help", "version", "logLevel"}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func CapitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Pluralize appends an s to noun unless count is exactly one.
func Pluralize(count int, noun string) string {
	if count == 1 {
		return noun
	}
	return noun + "s"
}

// SplitOwnerRepo parses "owner/name" into its parts.
func SplitOwnerRepo(fullName string) (string, string, bool) {
	owner, name, ok := strings.Cut(strings.TrimSuffix(fullName, ".git"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}
