package conflicts_test

import (
	"sync"
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/merging"
)

const marked = "a\n<<<<<<< main\nA\n=======\nB\n>>>>>>> feature\nb\n<<<<<<< main\nC\n=======\nD\n>>>>>>> feature\n"

func newFile(path string, status conflicts.Status) conflicts.File {
	return conflicts.File{
		Path:            path,
		Status:          status,
		Type:            conflicts.TypeModify,
		OriginalContent: marked,
		CurrentContent:  marked,
		Regions:         conflicts.RegionsFrom(merging.ParseRegions(marked)),
	}
}

func fold(files []conflicts.File) conflicts.Stats {
	stats := conflicts.Stats{Total: len(files)}
	for _, f := range files {
		switch f.Status {
		case conflicts.StatusResolved:
			stats.Resolved++
		case conflicts.StatusReviewing:
			stats.Reviewing++
		case conflicts.StatusUnresolved:
			stats.Unresolved++
		}
	}
	return stats
}

func requireStatsFold(t *testing.T, s *conflicts.Store) {
	t.Helper()
	require.Equal(t, fold(s.Files()), s.Stats())
}

func TestStore_StatsAlwaysFold(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	requireStatsFold(t, s)

	s.SetFiles([]conflicts.File{
		newFile("a.txt", conflicts.StatusUnresolved),
		newFile("dir/b.txt", conflicts.StatusReviewing),
		newFile("dir/c.txt", conflicts.StatusResolved),
	})
	requireStatsFold(t, s)
	assert.Equal(t, conflicts.Stats{Total: 3, Resolved: 1, Unresolved: 1, Reviewing: 1}, s.Stats())

	require.NoError(t, s.UpdateFile("a.txt", conflicts.Update{Status: pointer.To(conflicts.StatusReviewing)}))
	requireStatsFold(t, s)

	require.NoError(t, s.UpdateFile("missing.txt", conflicts.Update{CurrentContent: pointer.To("x")}))
	requireStatsFold(t, s)

	require.NoError(t, s.ResolveConflict(conflicts.Resolution{File: "dir/b.txt", Strategy: merging.StrategyOurs}))
	requireStatsFold(t, s)
	assert.Equal(t, conflicts.Stats{Total: 3, Resolved: 2, Reviewing: 1}, s.Stats())

	s.Remove("a.txt")
	requireStatsFold(t, s)

	s.Reset()
	requireStatsFold(t, s)
	assert.Equal(t, conflicts.Stats{}, s.Stats())
}

func TestStore_UpdateFile(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})

	require.NoError(t, s.UpdateFile("a.txt", conflicts.Update{CurrentContent: pointer.To("edited")}))
	f, ok := s.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, "edited", f.CurrentContent)
	assert.Equal(t, marked, f.OriginalContent)
	assert.Equal(t, conflicts.StatusUnresolved, f.Status)

	assert.ErrorIs(t, s.UpdateFile("a.txt", conflicts.Update{Status: pointer.To(conflicts.StatusResolved)}), conflicts.ErrInvalidTransition)

	require.NoError(t, s.ResolveConflict(conflicts.Resolution{File: "a.txt", Strategy: merging.StrategyCustom}))
	assert.ErrorIs(t, s.UpdateFile("a.txt", conflicts.Update{Status: pointer.To(conflicts.StatusUnresolved)}), conflicts.ErrInvalidTransition)
}

func TestStore_UpdateFileRegionsDriveStatus(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})

	f, _ := s.File("a.txt")
	require.Len(t, f.Regions, 2)

	regions := f.Regions
	regions[0].Resolved = true
	require.NoError(t, s.UpdateFile("a.txt", conflicts.Update{Regions: regions}))
	f, _ = s.File("a.txt")
	assert.Equal(t, conflicts.StatusReviewing, f.Status)

	regions[1].Resolved = true
	require.NoError(t, s.UpdateFile("a.txt", conflicts.Update{Regions: regions}))
	f, _ = s.File("a.txt")
	assert.Equal(t, conflicts.StatusResolved, f.Status)
	assert.Equal(t, conflicts.Stats{Total: 1, Resolved: 1}, s.Stats())

	regions[0].Resolved = false
	require.NoError(t, s.UpdateFile("a.txt", conflicts.Update{Regions: regions}))
	f, _ = s.File("a.txt")
	assert.Equal(t, conflicts.StatusReviewing, f.Status)
	requireStatsFold(t, s)

	for _, f := range s.Files() {
		allResolved := lo.EveryBy(f.Regions, func(r conflicts.Region) bool { return r.Resolved })
		assert.Equal(t, allResolved, f.Status == conflicts.StatusResolved)
	}
}

func TestStore_SetCurrentFile(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})

	s.SetCurrentFile("missing.txt")
	_, ok := s.CurrentFile()
	assert.False(t, ok)
	assert.Equal(t, "missing.txt", s.Snapshot().CurrentFile)

	s.SetCurrentFile("a.txt")
	f, ok := s.CurrentFile()
	require.True(t, ok)
	assert.Equal(t, conflicts.StatusReviewing, f.Status)
	assert.Equal(t, 1, s.Stats().Reviewing)
}

func TestStore_ResolveConflictIsIdempotent(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusReviewing)})

	res := conflicts.Resolution{File: "a.txt", Strategy: merging.StrategyCustom, Content: pointer.To("AB")}
	require.NoError(t, s.ResolveConflict(res))
	first := s.Snapshot()

	require.NoError(t, s.ResolveConflict(res))
	assert.Equal(t, first, s.Snapshot())

	f, _ := s.File("a.txt")
	assert.Equal(t, conflicts.StatusResolved, f.Status)
	assert.Equal(t, "AB", f.CurrentContent)
	for _, r := range f.Regions {
		assert.True(t, r.Resolved)
	}

	require.NoError(t, s.ResolveConflict(conflicts.Resolution{File: "a.txt", Strategy: merging.StrategyOurs}))
	f, _ = s.File("a.txt")
	assert.Equal(t, "AB", f.CurrentContent, "nil content keeps the current content")

	assert.ErrorIs(t, s.ResolveConflict(conflicts.Resolution{File: "nope"}), conflicts.ErrFileNotFound)
}

func TestStore_ResolveRegion(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})

	require.NoError(t, s.ResolveRegion("a.txt", 1, "CD"))
	f, _ := s.File("a.txt")
	assert.Equal(t, conflicts.StatusReviewing, f.Status)
	assert.Equal(t, "a\n<<<<<<< main\nA\n=======\nB\n>>>>>>> feature\nb\nCD\n", f.CurrentContent)

	require.NoError(t, s.ResolveRegion("a.txt", 0, "A"))
	f, _ = s.File("a.txt")
	assert.Equal(t, conflicts.StatusResolved, f.Status)
	assert.Equal(t, "a\nA\nb\nCD\n", f.CurrentContent)
	assert.False(t, merging.HasConflictMarkers([]byte(f.CurrentContent)))

	assert.ErrorIs(t, s.ResolveRegion("a.txt", 0, "x"), conflicts.ErrInvalidTransition)
	assert.ErrorIs(t, s.ResolveRegion("a.txt", 5, "x"), conflicts.ErrRegionOutOfRange)
	assert.ErrorIs(t, s.ResolveRegion("nope", 0, "x"), conflicts.ErrFileNotFound)
}

func TestStore_Reopen(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})
	require.NoError(t, s.ResolveRegion("a.txt", 0, "A"))
	require.NoError(t, s.ResolveRegion("a.txt", 1, "C"))

	require.NoError(t, s.Reopen("a.txt"))
	f, _ := s.File("a.txt")
	assert.Equal(t, conflicts.StatusReviewing, f.Status)
	for _, r := range f.Regions {
		assert.False(t, r.Resolved)
		assert.Empty(t, r.Resolution)
	}
	requireStatsFold(t, s)

	require.NoError(t, s.Reopen("a.txt"), "reopening an open file is a no-op")
	assert.ErrorIs(t, s.Reopen("nope"), conflicts.ErrFileNotFound)
}

func TestStore_ReadersGetCopies(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})

	files := s.Files()
	files[0].Status = conflicts.StatusResolved
	files[0].Regions[0].Resolved = true

	f, _ := s.File("a.txt")
	assert.Equal(t, conflicts.StatusUnresolved, f.Status)
	assert.False(t, f.Regions[0].Resolved)
}

func TestStore_BranchesAndReset(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetBranches("feature", "main")
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved)})
	s.SetCurrentFile("a.txt")

	source, target := s.Branches()
	assert.Equal(t, "feature", source)
	assert.Equal(t, "main", target)
	assert.Equal(t, []string{"a.txt"}, s.Unresolved())

	s.Reset()
	assert.Equal(t, conflicts.Session{}, s.Snapshot())
}

func TestStore_GroupByDirectory(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{
		newFile("src/b.go", conflicts.StatusUnresolved),
		newFile("README.md", conflicts.StatusUnresolved),
		newFile("src/a.go", conflicts.StatusUnresolved),
	})

	groups := s.GroupByDirectory()
	require.Len(t, groups, 2)
	assert.Equal(t, ".", groups[0].Dir)
	assert.Equal(t, "src", groups[1].Dir)
	require.Len(t, groups[1].Files, 2)
	assert.Equal(t, "src/b.go", groups[1].Files[0].Path)
}

func TestStore_ConcurrentUse(t *testing.T) {
	t.Parallel()

	s := conflicts.NewStore()
	s.SetFiles([]conflicts.File{newFile("a.txt", conflicts.StatusUnresolved), newFile("b.txt", conflicts.StatusUnresolved)})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetCurrentFile("a.txt")
			_ = s.ResolveConflict(conflicts.Resolution{File: "b.txt", Strategy: merging.StrategyTheirs})
		}()
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.Stats()
		}()
	}
	wg.Wait()

	requireStatsFold(t, s)
	assert.Equal(t, conflicts.Stats{Total: 2, Resolved: 1, Reviewing: 1}, s.Stats())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := conflicts.NewRegistry()
	id1, s1 := r.New()
	id2, s2 := r.New()

	_, err := uuid.Parse(id1)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.NotSame(t, s1, s2)

	got, ok := r.Get(id1)
	require.True(t, ok)
	assert.Same(t, s1, got)
	assert.Len(t, r.IDs(), 2)

	r.Delete(id1)
	_, ok = r.Get(id1)
	assert.False(t, ok)
	assert.Len(t, r.IDs(), 1)
}
