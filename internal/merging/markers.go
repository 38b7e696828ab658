package merging

import (
	"strings"
)

const (
	markerOurs   = "<<<<<<<"
	markerBase   = "|||||||"
	markerSep    = "======="
	markerTheirs = ">>>>>>>"
)

type section int

const (
	outside section = iota
	inOurs
	inBase
	inTheirs
)

// ParseRegions scans content for conflict markers and returns the regions
// in file order. Unterminated blocks are ignored.
func ParseRegions(content string) []Region {
	var regions []Region
	lines := strings.Split(content, "\n")

	var (
		state   = outside
		current Region
		body    []string
		start   int
	)

	closeSide := func(t MarkerType, end int) Marker {
		return Marker{Start: start, End: end, Type: t, Content: strings.Join(body, "\n")}
	}

	for i, line := range lines {
		n := i + 1 // Line numbers are 1-indexed
		switch {
		case strings.HasPrefix(line, markerOurs):
			state = inOurs
			current = Region{Start: n}
			body, start = nil, n+1
		case state == inOurs && strings.HasPrefix(line, markerBase):
			current.Ours = closeSide(MarkerOurs, n-1)
			state = inBase
			body, start = nil, n+1
		case (state == inOurs || state == inBase) && isSeparator(line):
			if state == inOurs {
				current.Ours = closeSide(MarkerOurs, n-1)
			} else {
				base := closeSide(MarkerBase, n-1)
				current.Base = &base
			}
			state = inTheirs
			body, start = nil, n+1
		case state == inTheirs && strings.HasPrefix(line, markerTheirs):
			current.Theirs = closeSide(MarkerTheirs, n-1)
			current.End = n
			regions = append(regions, current)
			state = outside
		case state != outside:
			body = append(body, line)
		}
	}

	return regions
}

// isSeparator accepts a run of seven or more '=' so that longer marker
// styles parse too.
func isSeparator(line string) bool {
	line = strings.TrimRight(line, " \r")
	return len(line) >= len(markerSep) && strings.Trim(line, "=") == ""
}

// HasConflictMarkers reports whether content still holds at least one
// complete conflict block.
func HasConflictMarkers(content []byte) bool {
	if !strings.Contains(string(content), markerOurs) {
		return false
	}
	return len(ParseRegions(string(content))) > 0
}

// Side returns the marker for t, or nil when the region has no such side.
func (r Region) Side(t MarkerType) *Marker {
	switch t {
	case MarkerOurs:
		return &r.Ours
	case MarkerTheirs:
		return &r.Theirs
	case MarkerBase:
		return r.Base
	}
	return nil
}

// ApplyResolutions replaces the regions of content that have an entry in
// resolutions (keyed by region index) with the given text. Regions without
// a resolution keep their markers.
func ApplyResolutions(content string, regions []Region, resolutions map[int]string) string {
	lines := strings.Split(content, "\n")

	for i := len(regions) - 1; i >= 0; i-- {
		text, ok := resolutions[i]
		if !ok {
			continue
		}
		r := regions[i]
		if r.Start < 1 || r.End > len(lines) || r.Start > r.End {
			continue
		}

		var replacement []string
		if text != "" {
			replacement = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
		}

		tail := append([]string{}, lines[r.End:]...)
		lines = append(append(lines[:r.Start-1], replacement...), tail...)
	}

	return strings.Join(lines, "\n")
}
