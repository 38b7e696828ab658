// Package conflicts holds the conflict state of one merge session: the
// conflicted files, their review status and the derived statistics.
package conflicts

import (
	"path"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/gitmerge/gitmerge/internal/merging"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrFileNotFound      = Error("conflict file not found")
	ErrRegionOutOfRange  = Error("conflict region out of range")
	ErrInvalidTransition = Error("invalid conflict status transition")
)

// Store is the conflict state of one merge session. It is shared by the
// engine and whoever drives resolution, and is safe for concurrent use.
// Every mutation recomputes the stats from the file set.
type Store struct {
	mu           sync.RWMutex
	sourceBranch string
	targetBranch string
	files        []File
	stats        Stats
	currentFile  string
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) SetBranches(source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sourceBranch = source
	s.targetBranch = target
}

// SetFiles replaces the file set.
func (s *Store) SetFiles(files []File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = make([]File, len(files))
	for i, f := range files {
		s.files[i] = f.clone()
	}
	s.recompute()
}

// UpdateFile merges u into the file at p. Absent paths are a no-op. A
// status update can never resolve a file or pull one out of resolved.
// Replacing the regions re-derives the status from them: all resolved
// resolves the file, any open region leaves it reviewing at best.
func (s *Store) UpdateFile(p string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.find(p)
	if f == nil {
		return nil
	}

	if u.Status != nil {
		if *u.Status == StatusResolved || (f.Status == StatusResolved && *u.Status != StatusResolved) {
			return ErrInvalidTransition
		}
		f.Status = *u.Status
	}
	if u.Type != nil {
		f.Type = *u.Type
	}
	if u.OriginalContent != nil {
		f.OriginalContent = *u.OriginalContent
	}
	if u.CurrentContent != nil {
		f.CurrentContent = *u.CurrentContent
	}
	if u.Regions != nil {
		f.Regions = File{Regions: u.Regions}.clone().Regions
		f.Status = statusFromRegions(f.Status, f.Regions)
	}

	s.recompute()
	return nil
}

func statusFromRegions(current Status, regions []Region) Status {
	if len(regions) == 0 {
		return current
	}

	open := lo.CountBy(regions, func(r Region) bool { return !r.Resolved })
	switch {
	case open == 0:
		return StatusResolved
	case current == StatusResolved, open < len(regions):
		return StatusReviewing
	}
	return current
}

// SetCurrentFile selects the file under review. The path is not validated;
// an unresolved file moves to reviewing.
func (s *Store) SetCurrentFile(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentFile = p
	if f := s.find(p); f != nil && f.Status == StatusUnresolved {
		f.Status = StatusReviewing
		s.recompute()
	}
}

// ResolveConflict marks the file resolved and, when content is given,
// replaces its current content. Resolving twice is harmless.
func (s *Store) ResolveConflict(r Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.find(r.File)
	if f == nil {
		return ErrFileNotFound
	}

	f.Status = StatusResolved
	if r.Content != nil {
		f.CurrentContent = *r.Content
	}
	for i := range f.Regions {
		f.Regions[i].Resolved = true
	}

	s.recompute()
	return nil
}

// ResolveRegion records text as the resolution of region index. The
// current content is rebuilt from the original with every resolved region
// applied; once the last region is resolved the file is resolved.
func (s *Store) ResolveRegion(p string, index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.find(p)
	if f == nil {
		return ErrFileNotFound
	}
	if index < 0 || index >= len(f.Regions) {
		return ErrRegionOutOfRange
	}
	if f.Status == StatusResolved {
		return ErrInvalidTransition
	}

	f.Regions[index].Resolved = true
	f.Regions[index].Resolution = text
	if f.Status == StatusUnresolved {
		f.Status = StatusReviewing
	}

	parsed := make([]merging.Region, len(f.Regions))
	resolutions := map[int]string{}
	for i, r := range f.Regions {
		parsed[i] = r.Region
		if r.Resolved {
			resolutions[i] = r.Resolution
		}
	}
	f.CurrentContent = merging.ApplyResolutions(f.OriginalContent, parsed, resolutions)

	if len(resolutions) == len(f.Regions) {
		f.Status = StatusResolved
	}

	s.recompute()
	return nil
}

// Reopen moves a resolved file back to reviewing and clears its region
// resolutions so it can be edited again.
func (s *Store) Reopen(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.find(p)
	if f == nil {
		return ErrFileNotFound
	}
	if f.Status != StatusResolved {
		return nil
	}

	f.Status = StatusReviewing
	for i := range f.Regions {
		f.Regions[i].Resolved = false
		f.Regions[i].Resolution = ""
	}

	s.recompute()
	return nil
}

// Remove drops p from the file set, for paths the merge no longer reports.
func (s *Store) Remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = lo.Reject(s.files, func(f File, _ int) bool { return f.Path == p })
	if s.currentFile == p {
		s.currentFile = ""
	}
	s.recompute()
}

// Reset clears the session back to its empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sourceBranch = ""
	s.targetBranch = ""
	s.files = nil
	s.currentFile = ""
	s.recompute()
}

func (s *Store) Files() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyFiles()
}

func (s *Store) File(p string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.files {
		if f.Path == p {
			return f.clone(), true
		}
	}
	return File{}, false
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}

func (s *Store) Branches() (source, target string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sourceBranch, s.targetBranch
}

// CurrentFile returns the file under review, if it is part of the set.
func (s *Store) CurrentFile() (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.files {
		if f.Path == s.currentFile {
			return f.clone(), true
		}
	}
	return File{}, false
}

// Unresolved lists the paths not yet resolved.
func (s *Store) Unresolved() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.FilterMap(s.files, func(f File, _ int) (string, bool) {
		return f.Path, f.Status != StatusResolved
	})
}

func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Session{
		SourceBranch: s.sourceBranch,
		TargetBranch: s.targetBranch,
		Files:        s.copyFiles(),
		Stats:        s.stats,
		CurrentFile:  s.currentFile,
	}
}

// GroupByDirectory groups the files by parent directory, sorted by
// directory. Files at the root are grouped under ".".
func (s *Store) GroupByDirectory() []DirGroup {
	files := s.Files()

	byDir := lo.GroupBy(files, func(f File) string {
		return path.Dir(f.Path)
	})

	dirs := lo.Keys(byDir)
	sort.Strings(dirs)

	return lo.Map(dirs, func(dir string, _ int) DirGroup {
		return DirGroup{Dir: dir, Files: byDir[dir]}
	})
}

func (s *Store) find(p string) *File {
	for i := range s.files {
		if s.files[i].Path == p {
			return &s.files[i]
		}
	}
	return nil
}

func (s *Store) copyFiles() []File {
	if len(s.files) == 0 {
		return nil
	}
	out := make([]File, len(s.files))
	for i, f := range s.files {
		out[i] = f.clone()
	}
	return out
}

func (s *Store) recompute() {
	s.stats = computeStats(s.files)
}

func computeStats(files []File) Stats {
	stats := Stats{Total: len(files)}
	for _, f := range files {
		switch f.Status {
		case StatusResolved:
			stats.Resolved++
		case StatusUnresolved:
			stats.Unresolved++
		case StatusReviewing:
			stats.Reviewing++
		}
	}
	return stats
}
