package merging

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// binarySniffLen matches the prefix git inspects when guessing binary files.
const binarySniffLen = 8000

// DiffStats contains statistics about a diff
type DiffStats struct {
	Added   int
	Removed int
}

// FileDiff is the unified diff of one file between two versions.
type FileDiff struct {
	Path     string
	DiffText string
	Binary   bool
	Stats    DiffStats
}

// UnifiedDiff renders a unified diff from a to b with three lines of context.
func UnifiedDiff(path string, a, b []byte, fromLabel, toLabel string) (FileDiff, error) {
	fd := FileDiff{Path: path}

	if IsBinary(a) || IsBinary(b) {
		fd.Binary = true
		fd.DiffText = "(binary file)"
		return fd, nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(normalizeLineEndings(string(a))),
		B:        difflib.SplitLines(normalizeLineEndings(string(b))),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fd, err
	}

	fd.DiffText = text
	fd.Stats = countDiffStats(text)
	return fd, nil
}

// IsBinary returns true if the content appears to be binary (contains null bytes).
func IsBinary(content []byte) bool {
	checkLen := binarySniffLen
	if len(content) < checkLen {
		checkLen = len(content)
	}
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// normalizeLineEndings converts all line endings to LF.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// countDiffStats counts added and removed lines in a unified diff.
func countDiffStats(diffText string) DiffStats {
	var stats DiffStats
	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			stats.Added++
		} else if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			stats.Removed++
		}
	}
	return stats
}
