package git

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// Entry is a file as recorded in a tree or an index stage.
type Entry struct {
	Path string
	Hash plumbing.Hash
	Mode filemode.FileMode
}

// Unmerged groups the conflict stages of one path. A nil side means that
// side does not have the file (added on one side, deleted on the other).
type Unmerged struct {
	Path   string
	Base   *Entry
	Ours   *Entry
	Theirs *Entry
}

// WriteBlob writes content to the git object database and returns its hash.
func (r *Repository) WriteBlob(content []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create object writer: %w", err)
	}

	if _, err := writer.Write(content); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob content: %w", err)
	}
	writer.Close()

	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}

	return hash, nil
}

// ReadBlob retrieves the content of a blob by its hash.
func (r *Repository) ReadBlob(h plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return nil, fmt.Errorf("failed to find blob %s: %w", h, err)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open blob reader: %w", err)
	}
	defer reader.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}

	return buf.Bytes(), nil
}

// BlobHash computes the object id content would have, without storing it.
func BlobHash(content []byte) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.BlobObject, content)
}

// IndexEditor batches index changes so the index is written once.
type IndexEditor struct {
	idx *index.Index
	now time.Time
}

func (e *IndexEditor) drop(path string) {
	entries := e.idx.Entries[:0]
	for _, entry := range e.idx.Entries {
		if entry.Name != path {
			entries = append(entries, entry)
		}
	}
	e.idx.Entries = entries
}

// stageMerged is stage 0. go-git names stage 1 index.Merged, which is the
// ancestor stage, not the resolved one.
const stageMerged index.Stage = 0

func (e *IndexEditor) add(entry Entry, stage index.Stage, size int) {
	mode := entry.Mode
	if mode == filemode.Empty {
		mode = filemode.Regular
	}
	e.idx.Entries = append(e.idx.Entries, &index.Entry{
		Name:       entry.Path,
		Hash:       entry.Hash,
		Mode:       mode,
		Stage:      stage,
		CreatedAt:  e.now,
		ModifiedAt: e.now,
		Size:       uint32(size),
	})
}

// Stage replaces every entry of entry.Path with a single merged entry.
func (e *IndexEditor) Stage(entry Entry, size int) {
	e.drop(entry.Path)
	e.add(entry, stageMerged, size)
}

// Remove drops path from the index at every stage.
func (e *IndexEditor) Remove(path string) {
	e.drop(path)
}

// Conflict records base (stage 1), ours (stage 2) and theirs (stage 3) for
// path. Missing sides are skipped, which is how git represents
// modify/delete and add/add conflicts.
func (e *IndexEditor) Conflict(path string, base, ours, theirs *Entry) {
	e.drop(path)
	for _, side := range []struct {
		entry *Entry
		stage index.Stage
	}{
		{base, index.AncestorMode},
		{ours, index.OurMode},
		{theirs, index.TheirMode},
	} {
		if side.entry == nil {
			continue
		}
		entry := *side.entry
		entry.Path = path
		e.add(entry, side.stage, 0)
	}
}

// EditIndex loads the index, applies fn and writes the index back sorted by
// (Name, Stage) as required by the index format.
func (r *Repository) EditIndex(fn func(e *IndexEditor) error) error {
	if r.IsNil() {
		return fmt.Errorf("git repository not initialized")
	}

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	if err := fn(&IndexEditor{idx: idx, now: time.Now()}); err != nil {
		return err
	}

	sort.SliceStable(idx.Entries, func(i, j int) bool {
		if idx.Entries[i].Name != idx.Entries[j].Name {
			return idx.Entries[i].Name < idx.Entries[j].Name
		}
		return idx.Entries[i].Stage < idx.Entries[j].Stage
	})

	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	return nil
}

// StageFile writes content as a blob and makes it the only index entry for
// path, clearing any conflict stages. go-git's Worktree.Add leaves stages
// 1-3 in place, which is why resolution goes through here.
func (r *Repository) StageFile(path string, content []byte, mode filemode.FileMode) error {
	h, err := r.WriteBlob(content)
	if err != nil {
		return err
	}
	return r.EditIndex(func(e *IndexEditor) error {
		e.Stage(Entry{Path: path, Hash: h, Mode: mode}, len(content))
		return nil
	})
}

// SetConflictState sets up git's index to show a file as conflicted.
func (r *Repository) SetConflictState(path string, base, ours, theirs *Entry) error {
	return r.EditIndex(func(e *IndexEditor) error {
		e.Conflict(path, base, ours, theirs)
		return nil
	})
}

// RemoveFromIndex drops every stage of path.
func (r *Repository) RemoveFromIndex(path string) error {
	return r.EditIndex(func(e *IndexEditor) error {
		e.Remove(path)
		return nil
	})
}

// IndexEntry returns the merged (stage 0) entry of path.
func (r *Repository) IndexEntry(path string) (*Entry, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	for _, e := range idx.Entries {
		if e.Name == path && e.Stage == stageMerged {
			return &Entry{Path: e.Name, Hash: e.Hash, Mode: e.Mode}, nil
		}
	}
	return nil, nil
}

// Staged lists the merged (stage 0) index entries, sorted by path.
func (r *Repository) Staged() ([]Entry, error) {
	if r.IsNil() {
		return nil, fmt.Errorf("git repository not initialized")
	}

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var out []Entry
	for _, e := range idx.Entries {
		if e.Stage == stageMerged {
			out = append(out, Entry{Path: e.Name, Hash: e.Hash, Mode: e.Mode})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Unmerged lists the paths that still carry conflict stages, sorted by path.
func (r *Repository) Unmerged() ([]Unmerged, error) {
	if r.IsNil() {
		return nil, fmt.Errorf("git repository not initialized")
	}

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	byPath := map[string]*Unmerged{}
	var paths []string
	for _, e := range idx.Entries {
		if e.Stage == stageMerged {
			continue
		}
		u, ok := byPath[e.Name]
		if !ok {
			u = &Unmerged{Path: e.Name}
			byPath[e.Name] = u
			paths = append(paths, e.Name)
		}
		entry := &Entry{Path: e.Name, Hash: e.Hash, Mode: e.Mode}
		switch e.Stage {
		case index.AncestorMode:
			u.Base = entry
		case index.OurMode:
			u.Ours = entry
		case index.TheirMode:
			u.Theirs = entry
		}
	}

	sort.Strings(paths)
	out := make([]Unmerged, 0, len(paths))
	for _, p := range paths {
		out = append(out, *byPath[p])
	}
	return out, nil
}

// CollapseConflicts replaces conflict stages with the ours entry, dropping
// paths ours did not have. Used before resetting an abandoned merge.
func (r *Repository) CollapseConflicts() error {
	unmerged, err := r.Unmerged()
	if err != nil || len(unmerged) == 0 {
		return err
	}
	return r.EditIndex(func(e *IndexEditor) error {
		for _, u := range unmerged {
			if u.Ours == nil {
				e.Remove(u.Path)
				continue
			}
			e.Stage(*u.Ours, 0)
		}
		return nil
	})
}
