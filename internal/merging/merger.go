package merging

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/epiclabs-io/diff3"
)

const (
	DefaultOursLabel   = "ours"
	DefaultTheirsLabel = "theirs"
)

// TextMerger implements a text-based 3-way merge using the diff3 algorithm.
// Non-overlapping changes are combined; overlapping changes are wrapped in
// git-style conflict markers labelled with OursLabel and TheirsLabel.
type TextMerger struct {
	OursLabel   string
	TheirsLabel string
}

var _ Merger = (*TextMerger)(nil)

// NewTextMerger labels conflict markers with the given names, usually the
// target and source branch. Empty labels fall back to ours/theirs.
func NewTextMerger(oursLabel, theirsLabel string) *TextMerger {
	if oursLabel == "" {
		oursLabel = DefaultOursLabel
	}
	if theirsLabel == "" {
		theirsLabel = DefaultTheirsLabel
	}
	return &TextMerger{OursLabel: oursLabel, TheirsLabel: theirsLabel}
}

// Merge performs a 3-way merge of ours and theirs against base.
//
// Returns:
// - MergeStatusClean: both sides agree, theirs did not change, or diff3 merged cleanly
// - MergeStatusFastForward: ours did not change, theirs is taken as is
// - MergeStatusConflict: overlapping changes, conflict markers injected
// - MergeStatusBinary: both sides changed binary content; ours is kept
func (m *TextMerger) Merge(base, ours, theirs []byte, hasBase bool) (*MergeResult, error) {
	res := &MergeResult{
		Status: MergeStatusClean,
	}

	// 1. Fast path: identical content
	if bytes.Equal(ours, theirs) {
		res.Content = ours
		return res, nil
	}

	// 2. One-sided changes. Without a base there is nothing to compare to,
	// so an add/add always goes through the full merge.
	if hasBase {
		if bytes.Equal(ours, base) {
			res.Content = theirs
			res.Status = MergeStatusFastForward
			return res, nil
		}
		if bytes.Equal(theirs, base) {
			res.Content = ours
			return res, nil
		}
	}

	// 3. Binary content cannot carry markers
	if IsBinary(base) || IsBinary(ours) || IsBinary(theirs) {
		res.Content = ours
		res.Status = MergeStatusBinary
		res.HasConflicts = true
		return res, nil
	}

	// 4. Perform 3-way merge using diff3
	result, err := diff3.Merge(
		bytes.NewReader(ours),
		bytes.NewReader(base),
		bytes.NewReader(theirs),
		true,
		m.oursLabel(),
		m.theirsLabel(),
	)
	if err != nil {
		return nil, fmt.Errorf("diff3 merge failed: %w", err)
	}

	merged, err := io.ReadAll(result.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to read merge result: %w", err)
	}
	if result.Conflicts {
		merged = m.gitMarkers(merged)
	}
	res.Content = restoreFinalNewline(merged, base, ours, theirs)

	if result.Conflicts {
		res.Status = MergeStatusConflict
		res.HasConflicts = true
		res.Regions = ParseRegions(string(res.Content))
	}

	return res, nil
}

// gitMarkers rewrites the nine character markers diff3 writes into the
// seven character form git uses. Only lines inside a block opened with our
// label are touched, so content that happens to look like a marker survives.
func (m *TextMerger) gitMarkers(content []byte) []byte {
	var (
		opener    = diff3Marker('<') + " " + m.oursLabel()
		separator = diff3Marker('=')
		closer    = diff3Marker('>') + " " + m.theirsLabel()
	)

	lines := strings.Split(string(content), "\n")
	state := outside
	for i, line := range lines {
		switch {
		case state == outside && line == opener:
			lines[i] = markerOurs + " " + m.oursLabel()
			state = inOurs
		case state == inOurs && line == separator:
			lines[i] = markerSep
			state = inTheirs
		case state == inTheirs && line == closer:
			lines[i] = markerTheirs + " " + m.theirsLabel()
			state = outside
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

func diff3Marker(c byte) string {
	return strings.Repeat(string(c), 9)
}

// restoreFinalNewline puts back the line terminator diff3 drops when it
// joins lines. A file ending in a blank line comes back as "...\n" and needs
// it too.
func restoreFinalNewline(merged []byte, inputs ...[]byte) []byte {
	if len(merged) == 0 {
		return merged
	}
	for _, in := range inputs {
		if bytes.HasSuffix(in, []byte("\n")) {
			return append(merged, '\n')
		}
	}
	return merged
}

func (m *TextMerger) oursLabel() string {
	if m.OursLabel == "" {
		return DefaultOursLabel
	}
	return m.OursLabel
}

func (m *TextMerger) theirsLabel() string {
	if m.TheirsLabel == "" {
		return DefaultTheirsLabel
	}
	return m.TheirsLabel
}
