package merging

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/gitmerge/gitmerge/internal/git"
)

// ActionKind is what a tree merge does with one path.
type ActionKind string

const (
	ActionKeep       ActionKind = "keep"        // ours already has the result
	ActionTakeTheirs ActionKind = "take-theirs" // only theirs changed the path
	ActionDelete     ActionKind = "delete"      // theirs deleted a path ours left alone
	ActionMerged     ActionKind = "merged"      // both changed it and diff3 combined them
	ActionConflict   ActionKind = "conflict"
)

// ConflictType classifies a conflicted path the way a reviewer sees it.
type ConflictType string

const (
	ConflictAdd    ConflictType = "add"    // both sides added different content
	ConflictModify ConflictType = "modify" // both sides changed overlapping lines
	ConflictDelete ConflictType = "delete" // one side modified, the other deleted
)

// Action is the plan for a single path. Content is set for merged paths and
// for text conflicts (with markers). For delete conflicts the surviving
// side is written as is.
type Action struct {
	Path     string
	Kind     ActionKind
	Base     *git.Entry
	Ours     *git.Entry
	Theirs   *git.Entry
	Mode     filemode.FileMode
	Content  []byte
	Conflict ConflictType
	Regions  []Region
	Binary   bool
}

// Plan lists the actions of a tree merge, sorted by path. Paths that need
// nothing (ActionKeep) are omitted.
type Plan struct {
	Actions []Action
}

func (p *Plan) Conflicts() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind == ActionConflict {
			out = append(out, a)
		}
	}
	return out
}

func (p *Plan) HasConflicts() bool {
	for _, a := range p.Actions {
		if a.Kind == ActionConflict {
			return true
		}
	}
	return false
}

// BlobReader loads blob content; *git.Repository satisfies it.
type BlobReader interface {
	ReadBlob(h plumbing.Hash) ([]byte, error)
}

// PlanTreeMerge compares the flattened base, ours and theirs trees path by
// path and decides how each one merges.
func PlanTreeMerge(base, ours, theirs map[string]git.Entry, blobs BlobReader, merger Merger) (*Plan, error) {
	paths := map[string]struct{}{}
	for _, tree := range []map[string]git.Entry{base, ours, theirs} {
		for p := range tree {
			paths[p] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	plan := &Plan{}
	for _, p := range sorted {
		b, o, t := lookup(base, p), lookup(ours, p), lookup(theirs, p)

		action, err := planPath(p, b, o, t, blobs, merger)
		if err != nil {
			return nil, err
		}
		if action.Kind != ActionKeep {
			plan.Actions = append(plan.Actions, action)
		}
	}

	return plan, nil
}

func planPath(p string, b, o, t *git.Entry, blobs BlobReader, merger Merger) (Action, error) {
	action := Action{Path: p, Base: b, Ours: o, Theirs: t}

	switch {
	case sameEntry(o, t), sameEntry(b, t):
		action.Kind = ActionKeep
		return action, nil
	case sameEntry(b, o):
		if t == nil {
			action.Kind = ActionDelete
			return action, nil
		}
		action.Kind = ActionTakeTheirs
		action.Mode = t.Mode
		return action, nil
	}

	// Both sides changed the path in different ways.
	action.Kind = ActionConflict
	if o == nil || t == nil {
		action.Conflict = ConflictDelete
		return action, nil
	}

	action.Mode = mergeMode(b, o, t)
	if o.Hash == t.Hash {
		// Content agrees, only the mode differs.
		action.Kind = ActionTakeTheirs
		if action.Mode == o.Mode {
			action.Kind = ActionKeep
		}
		return action, nil
	}

	action.Conflict = ConflictModify
	if b == nil {
		action.Conflict = ConflictAdd
	}

	var baseContent []byte
	if b != nil {
		content, err := blobs.ReadBlob(b.Hash)
		if err != nil {
			return action, fmt.Errorf("failed to read base of %s: %w", p, err)
		}
		baseContent = content
	}
	oursContent, err := blobs.ReadBlob(o.Hash)
	if err != nil {
		return action, fmt.Errorf("failed to read ours of %s: %w", p, err)
	}
	theirsContent, err := blobs.ReadBlob(t.Hash)
	if err != nil {
		return action, fmt.Errorf("failed to read theirs of %s: %w", p, err)
	}

	res, err := merger.Merge(baseContent, oursContent, theirsContent, b != nil)
	if err != nil {
		return action, fmt.Errorf("failed to merge %s: %w", p, err)
	}

	action.Content = res.Content
	switch {
	case res.Status == MergeStatusBinary:
		action.Binary = true
	case res.HasConflicts:
		action.Regions = res.Regions
	default:
		action.Kind = ActionMerged
		action.Conflict = ""
	}
	return action, nil
}

func lookup(tree map[string]git.Entry, p string) *git.Entry {
	e, ok := tree[p]
	if !ok {
		return nil
	}
	return &e
}

func sameEntry(a, b *git.Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Hash == b.Hash && a.Mode == b.Mode
}

// mergeMode keeps whichever side changed the file mode.
func mergeMode(b, o, t *git.Entry) filemode.FileMode {
	if b != nil && b.Mode == o.Mode {
		return t.Mode
	}
	return o.Mode
}

// Changes lists the paths a merge of source into target would touch,
// relative to target.
type Changes struct {
	Added    []string `json:"added" yaml:"added"`
	Modified []string `json:"modified" yaml:"modified"`
	Deleted  []string `json:"deleted" yaml:"deleted"`
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// ChangesFromPlan derives the path lists from a merge plan. Conflicted paths
// count by what source did to them.
func ChangesFromPlan(plan *Plan) Changes {
	var c Changes
	for _, a := range plan.Actions {
		switch {
		case a.Theirs == nil:
			c.Deleted = append(c.Deleted, a.Path)
		case a.Ours == nil:
			c.Added = append(c.Added, a.Path)
		default:
			c.Modified = append(c.Modified, a.Path)
		}
	}
	return c
}

// DiffTrees lists the paths that differ between two flattened trees, from
// the point of view of moving from `from` to `to`.
func DiffTrees(from, to map[string]git.Entry) Changes {
	var c Changes
	for p, e := range to {
		prev, ok := from[p]
		switch {
		case !ok:
			c.Added = append(c.Added, p)
		case prev.Hash != e.Hash || prev.Mode != e.Mode:
			c.Modified = append(c.Modified, p)
		}
	}
	for p := range from {
		if _, ok := to[p]; !ok {
			c.Deleted = append(c.Deleted, p)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Modified)
	sort.Strings(c.Deleted)
	return c
}
