package engine_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitHttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/git/gittest"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/progress"
	"github.com/gitmerge/gitmerge/internal/retry"
	"github.com/gitmerge/gitmerge/internal/vfs"
)

const repoURL = "https://github.com/acme/widgets.git"

var str = gittest.Str

type fixture struct {
	remote  *gittest.Remote
	main    plumbing.Hash
	feature plumbing.Hash
}

// conflictingRemote has x.txt changed on both branches from an empty base,
// plus a file only feature adds.
func conflictingRemote(t *testing.T) *fixture {
	t.Helper()

	remote := gittest.NewRemote(t, repoURL)
	remote.Commit(t, "main", "base", map[string]*string{
		"x.txt":     str(""),
		"README.md": str("widgets\n"),
	})
	remote.Branch(t, "feature", "main")

	return &fixture{
		remote:  remote,
		main:    remote.Commit(t, "main", "A", map[string]*string{"x.txt": str("A")}),
		feature: remote.Commit(t, "feature", "B", map[string]*string{"x.txt": str("B"), "extra.txt": str("extra\n")}),
	}
}

// disjointRemote has both branches touching different files.
func disjointRemote(t *testing.T) *fixture {
	t.Helper()

	remote := gittest.NewRemote(t, repoURL)
	remote.Commit(t, "main", "base", map[string]*string{"shared.txt": str("shared\n")})
	remote.Branch(t, "feature", "main")

	return &fixture{
		remote:  remote,
		main:    remote.Commit(t, "main", "main work", map[string]*string{"main.txt": str("main\n")}),
		feature: remote.Commit(t, "feature", "feature work", map[string]*string{"feature.txt": str("feature\n")}),
	}
}

func fastRetry() retry.Options {
	return retry.Options{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func newEngine(t *testing.T, remote *gittest.Remote, opts ...engine.Option) *engine.Engine {
	t.Helper()

	base := []engine.Option{
		engine.WithTransport(remote),
		engine.WithRetry(fastRetry()),
		engine.WithLogger(log.New().WithWriter(io.Discard)),
		engine.WithClock(func() time.Time { return time.Unix(1700000000, 0).UTC() }),
	}
	return engine.New(append(base, opts...)...)
}

func initHandle(t *testing.T, e *engine.Engine) *engine.Handle {
	t.Helper()

	h, err := e.Init(context.Background(), repoURL, "token")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func fileContent(t *testing.T, e *engine.Engine, h *engine.Handle, path string) string {
	t.Helper()

	content, err := e.FileContent(context.Background(), h, path)
	require.NoError(t, err)
	return string(content)
}

func TestInit_ClonesDefaultBranch(t *testing.T) {
	t.Parallel()

	fx := conflictingRemote(t)

	var phases []progress.Phase
	e := newEngine(t, fx.remote, engine.WithObserver(progress.ObserverFuncs{
		Phase: func(p progress.Phase) { phases = append(phases, p) },
	}))
	h := initHandle(t, e)

	assert.Equal(t, engine.StateReady, h.State())
	assert.Equal(t, []progress.Phase{progress.PhaseClone}, phases)

	branch, err := e.CurrentBranch(h)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
	assert.Equal(t, "A", fileContent(t, e, h, "x.txt"))

	unmerged, err := h.Repository().Unmerged()
	require.NoError(t, err)
	assert.Empty(t, unmerged)
	require.NoError(t, e.Checkout(context.Background(), h, "feature"))

	auth, ok := fx.remote.LastAuth(gittest.OpClone).(*gitHttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "token", auth.Username)
}

func TestInit_RetriesTransientCloneFailures(t *testing.T) {
	t.Parallel()

	fx := conflictingRemote(t)
	fx.remote.Fail(gittest.OpClone, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNRESET})

	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	assert.Equal(t, 2, fx.remote.Calls(gittest.OpClone))
	assert.Equal(t, "A", fileContent(t, e, h, "x.txt"))
}

func TestInit_UnknownRepository(t *testing.T) {
	t.Parallel()

	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)

	h, err := e.Init(context.Background(), "https://github.com/acme/missing.git", "token")
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, engine.IsKind(err, engine.KindInitialization))
	assert.ErrorIs(t, err, transport.ErrRepositoryNotFound)
}

func TestMerge_ConflictResolveCommitPush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	res, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"x.txt"}, res.Conflicts)
	assert.Equal(t, engine.StateConflicted, h.State())

	source, target := e.Store().Branches()
	assert.Equal(t, "feature", source)
	assert.Equal(t, "main", target)
	assert.Equal(t, conflicts.Stats{Total: 1, Unresolved: 1}, e.Store().Stats())

	f, ok := e.Store().File("x.txt")
	require.True(t, ok)
	assert.Equal(t, conflicts.TypeModify, f.Type)
	assert.NotEmpty(t, f.Regions)
	assert.True(t, merging.HasConflictMarkers([]byte(fileContent(t, e, h, "x.txt"))))
	assert.Equal(t, "extra\n", fileContent(t, e, h, "extra.txt"))

	_, err = e.CommitChanges(ctx, h, "")
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindCommit))
	assert.ErrorIs(t, err, engine.ErrUnresolvedConflicts)
	assert.Equal(t, engine.StateConflicted, h.State())

	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", "AB", true))
	first := e.Store().Snapshot()
	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", "AB", true))
	assert.Equal(t, first, e.Store().Snapshot())
	assert.Equal(t, conflicts.Stats{Total: 1, Resolved: 1}, e.Store().Stats())
	assert.Equal(t, "AB", fileContent(t, e, h, "x.txt"))

	id, err := e.CommitChanges(ctx, h, "")
	require.NoError(t, err)
	assert.NotEqual(t, fx.main.String(), id)
	assert.NotEqual(t, fx.feature.String(), id)
	assert.Equal(t, engine.StateClean, h.State())

	commit, err := h.Repository().CommitObject(plumbing.NewHash(id))
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{fx.main, fx.feature}, commit.ParentHashes)
	assert.Equal(t, "Resolve merge conflicts between feature and main", commit.Message)
	assert.Equal(t, "Git Merge Manager", commit.Author.Name)

	_, pending, err := h.Repository().MergeHeadHash()
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, e.Push(ctx, h, "main"))
	assert.Equal(t, engine.StateDone, h.State())
	assert.Equal(t, conflicts.Session{}, e.Store().Snapshot())

	content, ok := fx.remote.File(t, "main", "x.txt")
	require.True(t, ok)
	assert.Equal(t, "AB", content)
	assert.Equal(t, plumbing.NewHash(id), fx.remote.Tip(t, "main"))
}

func TestMerge_DisjointChangesCommitCleanly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	res, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.FastForward)
	assert.Empty(t, res.Conflicts)
	assert.NotEmpty(t, res.MergeCommit)
	assert.Equal(t, engine.StateClean, h.State())

	assert.Empty(t, e.Store().Files())
	assert.Equal(t, conflicts.Stats{}, e.Store().Stats())

	commit, err := h.Repository().CommitObject(plumbing.NewHash(res.MergeCommit))
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{fx.main, fx.feature}, commit.ParentHashes)
	assert.Equal(t, "Merge branch 'feature' into main", commit.Message)

	assert.Equal(t, "main\n", fileContent(t, e, h, "main.txt"))
	assert.Equal(t, "feature\n", fileContent(t, e, h, "feature.txt"))

	dirty, err := h.Repository().HasLocalChanges()
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, e.Push(ctx, h, ""))
	assert.Equal(t, plumbing.NewHash(res.MergeCommit), fx.remote.Tip(t, "main"))
}

func TestMerge_FastForwardAndUpToDate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := gittest.NewRemote(t, repoURL)
	base := remote.Commit(t, "main", "base", map[string]*string{"a.txt": str("a\n")})
	remote.Branch(t, "feature", "main")
	ahead := remote.Commit(t, "feature", "ahead", map[string]*string{"b.txt": str("b\n")})

	e := newEngine(t, remote)
	h := initHandle(t, e)

	res, err := e.Merge(ctx, h, "main", "feature")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.UpToDate)
	assert.Equal(t, engine.StateReady, h.State())

	require.NoError(t, e.Checkout(ctx, h, "main"))
	head, err := h.Repository().HeadHash()
	require.NoError(t, err)
	assert.Equal(t, base, head)

	res, err = e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FastForward)
	assert.Equal(t, ahead.String(), res.MergeCommit)

	head, err = h.Repository().HeadHash()
	require.NoError(t, err)
	assert.Equal(t, ahead, head)
	assert.Equal(t, "b\n", fileContent(t, e, h, "b.txt"))
}

func TestMerge_DeepensShallowHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := disjointRemote(t)
	fx.remote.Shallow = true
	fx.remote.Commit(t, "main", "more main", map[string]*string{"main2.txt": str("2\n")})
	fx.remote.Commit(t, "feature", "more feature", map[string]*string{"feature2.txt": str("2\n")})

	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	res, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, fx.remote.Calls(gittest.OpFetch), "source fetch plus one deepening fetch")
	assert.Equal(t, "2\n", fileContent(t, e, h, "feature2.txt"))
}

func TestMerge_UnknownSourceBranch(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(context.Background(), h, "nope", "main")
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindMerge))
	assert.ErrorIs(t, err, engine.ErrBranchNotFound)
	assert.Equal(t, engine.StateError, h.State())

	// error does not end the session
	res, err := e.Merge(context.Background(), h, "feature", "main")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestPreviewMerge_DoesNotTouchWorkingTree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	readme := fileContent(t, e, h, "README.md")
	headBefore, err := h.Repository().HeadHash()
	require.NoError(t, err)

	preview, err := e.PreviewMerge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.False(t, preview.CanMerge)
	assert.Equal(t, []string{"x.txt"}, preview.Conflicts)
	assert.Equal(t, []string{"extra.txt"}, preview.Changes.Added)
	assert.Equal(t, []string{"x.txt"}, preview.Changes.Modified)
	assert.Empty(t, preview.Changes.Deleted)

	assert.Equal(t, readme, fileContent(t, e, h, "README.md"))
	assert.Equal(t, "A", fileContent(t, e, h, "x.txt"))
	_, err = e.FileContent(ctx, h, "extra.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	headAfter, err := h.Repository().HeadHash()
	require.NoError(t, err)
	assert.Equal(t, headBefore, headAfter)

	_, local, err := h.Repository().LocalBranch("feature")
	require.NoError(t, err)
	assert.False(t, local)

	unmerged, err := h.Repository().Unmerged()
	require.NoError(t, err)
	assert.Empty(t, unmerged)
	assert.Empty(t, e.Store().Files())
	assert.Equal(t, engine.StateReady, h.State())
}

func TestPreviewMerge_Clean(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	preview, err := e.PreviewMerge(context.Background(), h, "feature", "main")
	require.NoError(t, err)
	assert.True(t, preview.CanMerge)
	assert.Empty(t, preview.Conflicts)
	assert.Equal(t, []string{"feature.txt"}, preview.Changes.Added)
	assert.Equal(t, []string{"main.txt"}, preview.Changes.Deleted)
}

func TestPreviewMerge_UpToDateListsNoChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := gittest.NewRemote(t, repoURL)
	remote.Commit(t, "main", "base", map[string]*string{"a.txt": str("a\n")})
	remote.Branch(t, "feature", "main")
	remote.Commit(t, "feature", "ahead", map[string]*string{"b.txt": str("b\n")})

	e := newEngine(t, remote)
	h := initHandle(t, e)

	preview, err := e.PreviewMerge(ctx, h, "main", "feature")
	require.NoError(t, err)
	assert.True(t, preview.UpToDate)
	assert.True(t, preview.CanMerge)
	assert.True(t, preview.Changes.Empty(), "changes = %+v", preview.Changes)

	preview, err = e.PreviewMerge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.True(t, preview.FastForward)
	assert.Equal(t, []string{"b.txt"}, preview.Changes.Added)
	assert.Empty(t, preview.Changes.Deleted)
}

func TestPull_UnreachableRemote(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	fx.remote.FailAlways(gittest.OpFetch, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})

	res, err := e.Pull(context.Background(), h, "main")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 3, fx.remote.Calls(gittest.OpFetch))

	gErr, ok := retry.AsGitOperationError(err)
	require.True(t, ok)
	assert.False(t, gErr.Retryable)
	assert.Equal(t, 3, gErr.Attempts)
	assert.Equal(t, "ECONNREFUSED", gErr.Code)

	assert.True(t, engine.IsKind(err, engine.KindPull))
	var opErr *engine.OpError
	require.True(t, errors.As(err, &opErr))
	assert.True(t, opErr.Retryable)
	assert.Equal(t, engine.StateError, h.State())
}

func TestPull_FastForwardsToRemote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	tip := fx.remote.Commit(t, "main", "upstream", map[string]*string{"upstream.txt": str("up\n")})

	res, err := e.Pull(ctx, h, "main")
	require.NoError(t, err)
	assert.True(t, res.FastForward)
	assert.Equal(t, tip.String(), res.MergeCommit)
	assert.Equal(t, "up\n", fileContent(t, e, h, "upstream.txt"))
	assert.Equal(t, engine.StateReady, h.State())
}

func TestListBranches(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	branches, err := e.ListBranches(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "main"}, branches)
}

func TestListBranches_FallsBackToDefaults(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote, engine.WithDefaultBranches([]string{"main", "develop"}))
	h := initHandle(t, e)

	fx.remote.FailAlways(gittest.OpList, errors.New("listing disabled"))

	branches, err := e.ListBranches(context.Background(), h)
	require.Error(t, err)
	assert.True(t, engine.IsRecoverable(err))
	assert.Equal(t, []string{"main", "develop"}, branches)
	assert.Equal(t, 1, fx.remote.Calls(gittest.OpList))
	assert.Equal(t, engine.StateReady, h.State())
}

func TestCheckout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	require.NoError(t, e.Checkout(ctx, h, "feature"))
	branch, err := e.CurrentBranch(h)
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)
	assert.Equal(t, "B", fileContent(t, e, h, "x.txt"))

	err = e.Checkout(ctx, h, "missing")
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindCheckout))
	assert.ErrorIs(t, err, engine.ErrBranchNotFound)
}

func TestCheckout_RefusedDuringMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)

	err = e.Checkout(ctx, h, "feature")
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindCheckout))
	assert.ErrorIs(t, err, engine.ErrMergeInProgress)
	assert.Equal(t, engine.StateConflicted, h.State())

	assert.ErrorIs(t, e.Push(ctx, h, "main"), engine.ErrInvalidState)
}

func TestResolveConflict_RequiresMerge(t *testing.T) {
	t.Parallel()

	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	err := e.ResolveConflict(context.Background(), h, "x.txt", "AB", true)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestResolveConflict_WithoutMarkingResolved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)

	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", "draft", false))
	f, ok := e.Store().File("x.txt")
	require.True(t, ok)
	assert.Equal(t, "draft", f.CurrentContent)
	assert.Equal(t, conflicts.StatusUnresolved, f.Status)
	assert.Equal(t, "draft", fileContent(t, e, h, "x.txt"))
	assert.Equal(t, engine.StateResolving, h.State())

	unmerged, err := h.Repository().Unmerged()
	require.NoError(t, err)
	assert.Len(t, unmerged, 1)
}

func TestResolveConflict_ReopensResolvedFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", "AB", true))
	assert.Empty(t, e.Store().Unresolved())

	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", "ABC", false))
	f, ok := e.Store().File("x.txt")
	require.True(t, ok)
	assert.Equal(t, conflicts.StatusReviewing, f.Status)
	assert.Equal(t, "ABC", f.CurrentContent)
	assert.Equal(t, conflicts.Stats{Total: 1, Reviewing: 1}, e.Store().Stats())

	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", "ABC", true))
	assert.Equal(t, conflicts.Stats{Total: 1, Resolved: 1}, e.Store().Stats())
}

func TestResolveWithStrategy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := gittest.NewRemote(t, repoURL)
	remote.Commit(t, "main", "base", map[string]*string{"x.txt": str("base\n"), "gone.txt": str("old\n")})
	remote.Branch(t, "feature", "main")
	remote.Commit(t, "main", "main", map[string]*string{"x.txt": str("main\n"), "gone.txt": str("edited\n")})
	remote.Commit(t, "feature", "feature", map[string]*string{"x.txt": str("feature\n"), "gone.txt": nil})

	e := newEngine(t, remote)
	h := initHandle(t, e)

	res, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.txt", "x.txt"}, res.Conflicts)

	f, ok := e.Store().File("gone.txt")
	require.True(t, ok)
	assert.Equal(t, conflicts.TypeDelete, f.Type)
	assert.Equal(t, "edited\n", f.OriginalContent)

	require.NoError(t, e.ResolveWithStrategy(ctx, h, "x.txt", merging.StrategyTheirs))
	require.NoError(t, e.ResolveWithStrategy(ctx, h, "gone.txt", merging.StrategyTheirs))
	require.NoError(t, e.ResolveWithStrategy(ctx, h, "gone.txt", merging.StrategyTheirs), "resolving twice is harmless")

	assert.Equal(t, "feature\n", fileContent(t, e, h, "x.txt"))
	_, err = e.FileContent(ctx, h, "gone.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, conflicts.Stats{Total: 2, Resolved: 2}, e.Store().Stats())

	_, err = e.CommitChanges(ctx, h, "take feature")
	require.NoError(t, err)
	content, err := e.BranchFileContent(ctx, h, "main", "x.txt")
	require.NoError(t, err)
	assert.Equal(t, "feature\n", string(content))
}

func TestCommitChanges_RejectsConflictMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)

	marked := fileContent(t, e, h, "x.txt")
	require.NoError(t, e.ResolveConflict(ctx, h, "x.txt", marked, true))

	_, err = e.CommitChanges(ctx, h, "")
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindCommit))
	assert.ErrorIs(t, err, engine.ErrConflictMarkers)
}

func TestCommitChanges_NothingToCommit(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.CommitChanges(context.Background(), h, "")
	assert.ErrorIs(t, err, engine.ErrNothingToCommit)
}

func TestPush_AuthenticationFailureIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)

	fx.remote.FailAlways(gittest.OpPush, transport.ErrAuthorizationFailed)
	err = e.Push(ctx, h, "main")
	require.Error(t, err)
	assert.Equal(t, 1, fx.remote.Calls(gittest.OpPush))
	assert.True(t, engine.IsAuth(err))
	assert.True(t, engine.IsKind(err, engine.KindPush))
	assert.Equal(t, engine.StateError, h.State())
	assert.Equal(t, fx.main, fx.remote.Tip(t, "main"))

	fx.remote.FailAlways(gittest.OpPush, nil)
	require.NoError(t, e.Push(ctx, h, "main"))
}

func TestAbort_RestoresHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := conflictingRemote(t)
	e := newEngine(t, fx.remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)

	require.NoError(t, e.Abort(ctx, h))
	assert.Equal(t, engine.StateReady, h.State())
	assert.Equal(t, "A", fileContent(t, e, h, "x.txt"))
	_, err = e.FileContent(ctx, h, "extra.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	unmerged, err := h.Repository().Unmerged()
	require.NoError(t, err)
	assert.Empty(t, unmerged)
	_, pending, err := h.Repository().MergeHeadHash()
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, conflicts.Session{}, e.Store().Snapshot())

	head, err := h.Repository().HeadHash()
	require.NoError(t, err)
	assert.Equal(t, fx.main, head)

	res, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.txt"}, res.Conflicts)
}

func TestOpen_ResumesPendingMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := gittest.NewRemote(t, repoURL)
	remote.Commit(t, "main", "base", map[string]*string{"x.txt": str("x\n"), "y.txt": str("y\n")})
	remote.Branch(t, "feature", "main")
	remote.Commit(t, "main", "main", map[string]*string{"x.txt": str("x main\n"), "y.txt": str("y main\n")})
	featureTip := remote.Commit(t, "feature", "feature", map[string]*string{"x.txt": str("x feature\n"), "y.txt": str("y feature\n")})

	storage, err := vfs.NewStorage(vfs.KindPersistent, t.TempDir())
	require.NoError(t, err)

	first := newEngine(t, remote, engine.WithStorage(storage))
	h, err := first.Init(ctx, repoURL, "token")
	require.NoError(t, err)

	res, err := first.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)
	require.Equal(t, []string{"x.txt", "y.txt"}, res.Conflicts)
	require.NoError(t, first.ResolveConflict(ctx, h, "x.txt", "x both\n", true))
	require.NoError(t, h.Close())

	second := newEngine(t, remote, engine.WithStorage(storage))
	h2, err := second.Open(ctx, repoURL, "token")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h2.Close() })

	assert.Equal(t, engine.StateConflicted, h2.State())
	source, target := second.Store().Branches()
	assert.Equal(t, "feature", source)
	assert.Equal(t, "main", target)
	assert.Equal(t, conflicts.Stats{Total: 2, Resolved: 1, Unresolved: 1}, second.Store().Stats())

	x, ok := second.Store().File("x.txt")
	require.True(t, ok)
	assert.Equal(t, conflicts.StatusResolved, x.Status)
	assert.Equal(t, "x both\n", x.CurrentContent)

	y, ok := second.Store().File("y.txt")
	require.True(t, ok)
	assert.Equal(t, conflicts.StatusUnresolved, y.Status)
	assert.NotEmpty(t, y.Regions)

	require.NoError(t, second.ResolveConflict(ctx, h2, "y.txt", "y both\n", true))
	id, err := second.CommitChanges(ctx, h2, "")
	require.NoError(t, err)

	commit, err := h2.Repository().CommitObject(plumbing.NewHash(id))
	require.NoError(t, err)
	assert.Equal(t, featureTip, commit.ParentHashes[1])
}

func TestOpen_WithoutRepository(t *testing.T) {
	t.Parallel()

	storage, err := vfs.NewStorage(vfs.KindPersistent, t.TempDir())
	require.NoError(t, err)

	e := newEngine(t, gittest.NewRemote(t, repoURL), engine.WithStorage(storage))
	_, err = e.Open(context.Background(), repoURL, "token")
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindInitialization))
	assert.ErrorIs(t, err, engine.ErrNoRepository)
}

func TestClosedHandle(t *testing.T) {
	t.Parallel()

	fx := disjointRemote(t)
	e := newEngine(t, fx.remote)
	h, err := e.Init(context.Background(), repoURL, "token")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.Equal(t, engine.StateIdle, h.State())
	_, err = e.ListBranches(context.Background(), h)
	assert.ErrorIs(t, err, engine.ErrNoHandle)
}

func TestResolveRegion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := gittest.NewRemote(t, repoURL)
	remote.Commit(t, "main", "base", map[string]*string{"x.txt": str("line1\nshared\nline3\n")})
	remote.Branch(t, "feature", "main")
	remote.Commit(t, "main", "main", map[string]*string{"x.txt": str("line1\nmain\nline3\n")})
	remote.Commit(t, "feature", "feature", map[string]*string{"x.txt": str("line1\nfeature\nline3\n")})

	e := newEngine(t, remote)
	h := initHandle(t, e)

	_, err := e.Merge(ctx, h, "feature", "main")
	require.NoError(t, err)

	f, ok := e.Store().File("x.txt")
	require.True(t, ok)
	require.Len(t, f.Regions, 1)
	assert.Equal(t, "line1\n<<<<<<< main\nmain\n=======\nfeature\n>>>>>>> feature\nline3\n", fileContent(t, e, h, "x.txt"))

	err = e.ResolveRegion(ctx, h, "x.txt", 3, "both")
	assert.ErrorIs(t, err, conflicts.ErrRegionOutOfRange)

	require.NoError(t, e.ResolveRegion(ctx, h, "x.txt", 0, "both"))
	f, _ = e.Store().File("x.txt")
	assert.Equal(t, conflicts.StatusResolved, f.Status)

	f, _ = e.Store().File("x.txt")
	require.Len(t, f.Regions, 1)
	assert.Equal(t, "main", f.Regions[0].Ours.Content)
	assert.Equal(t, "feature", f.Regions[0].Theirs.Content)

	content := fileContent(t, e, h, "x.txt")
	assert.Equal(t, "line1\nboth\nline3\n", content)
	assert.False(t, merging.HasConflictMarkers([]byte(content)))

	unmerged, err := h.Repository().Unmerged()
	require.NoError(t, err)
	assert.Empty(t, unmerged)

	_, err = e.CommitChanges(ctx, h, "")
	require.NoError(t, err)
}
