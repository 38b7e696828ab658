// Package engine orchestrates the merge workflow on top of go-git: clone,
// checkout, three-way merge, conflict bookkeeping, resolution, commit and
// push. Network steps run under the retry policy and report progress to the
// configured observer; conflict state is published into a conflicts.Store.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/progress"
	"github.com/gitmerge/gitmerge/internal/retry"
	"github.com/gitmerge/gitmerge/internal/vfs"
)

type Engine struct {
	storage   vfs.Storage
	transport git.Transport
	store     *conflicts.Store
	retry     retry.Options
	observer  progress.Observer
	logger    log.Logger

	authorName  string
	authorEmail string

	cloneDepth      int
	deepenDepth     int
	defaultBranches []string
	now             func() time.Time
}

func New(opts ...Option) *Engine {
	storage, _ := vfs.NewStorage(vfs.KindMemory, "")

	e := &Engine{
		storage:         storage,
		transport:       git.NetworkTransport{},
		store:           conflicts.NewStore(),
		retry:           retry.DefaultOptions(),
		observer:        progress.Discard,
		logger:          log.New(),
		authorName:      DefaultAuthorName,
		authorEmail:     DefaultAuthorEmail,
		cloneDepth:      DefaultCloneDepth,
		deepenDepth:     DefaultDeepenDepth,
		defaultBranches: DefaultBranches,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store is the conflict state the engine publishes into.
func (e *Engine) Store() *conflicts.Store {
	return e.store
}

// Init clones repoURL into a fresh workspace. Only the default branch is
// fetched, at the configured clone depth; other branches are fetched when
// first needed.
func (e *Engine) Init(ctx context.Context, repoURL, credential string) (*Handle, error) {
	tracker := e.track(progress.PhaseClone)

	h, err := e.clone(ctx, tracker, repoURL, credential)
	e.finish(tracker, err)
	if err != nil {
		e.logger.Error("clone failed", zap.String("url", repoURL), zap.Error(err))
		return nil, err
	}

	e.logger.Info("repository cloned", zap.String("url", repoURL), zap.String("workspace", h.workspace.Name))
	return h, nil
}

func (e *Engine) clone(ctx context.Context, tracker *progress.Tracker, repoURL, credential string) (*Handle, error) {
	ws, err := e.storage.Open(repoURL)
	if err != nil {
		return nil, fatal(KindInitialization, "open workspace", err)
	}
	if ws.HasRepository() {
		_ = ws.Close()
		return nil, fatal(KindInitialization, "clone", fmt.Errorf("workspace %s already holds a repository", ws.Name))
	}

	h := &Handle{URL: repoURL, credential: credential, workspace: ws, state: StateCloning}
	sideband := progress.NewSidebandWriter(tracker)

	attempt := 0
	raw, err := retry.Do(ctx, "clone", func(ctx context.Context) (*gitc.Repository, error) {
		attempt++
		if attempt > 1 {
			// a failed clone can leave objects behind
			if err := ws.Reset(); err != nil {
				return nil, fatal(KindInitialization, "reset workspace", err)
			}
		}
		repo, err := e.transport.Clone(ctx, ws.Storer, ws.Worktree, &gitc.CloneOptions{
			URL:          repoURL,
			RemoteName:   git.RemoteName,
			Auth:         h.auth(),
			Depth:        e.cloneDepth,
			SingleBranch: true,
			Progress:     sideband,
		})
		return repo, classify(KindInitialization, "clone", err)
	}, e.retryOptions("clone"))
	if err != nil {
		_ = ws.Remove()
		_ = ws.Close()
		return nil, err
	}

	h.repo = git.Wrap(raw)
	h.setState(StateReady)
	e.store.Reset()
	return h, nil
}

// Open reattaches to a workspace cloned earlier, typically by another
// process. A merge left waiting for resolution is loaded back into the
// store.
func (e *Engine) Open(ctx context.Context, repoURL, credential string) (*Handle, error) {
	ws, err := e.storage.Open(repoURL)
	if err != nil {
		return nil, fatal(KindInitialization, "open workspace", err)
	}
	if !ws.HasRepository() {
		_ = ws.Close()
		return nil, fatal(KindInitialization, "open", ErrNoRepository)
	}

	repo, err := git.Open(ws.Storer, ws.Worktree)
	if err == nil && repo.IsNil() {
		err = ErrNoRepository
	}
	if err != nil {
		_ = ws.Close()
		return nil, fatal(KindInitialization, "open", err)
	}

	h := &Handle{URL: repoURL, credential: credential, workspace: ws, repo: repo, state: StateReady}

	pending, err := repo.PendingMerge()
	if err != nil {
		_ = ws.Close()
		return nil, fatal(KindInitialization, "open", err)
	}
	if pending == nil {
		e.store.Reset()
		return h, nil
	}

	if err := e.restore(h, pending); err != nil {
		_ = ws.Close()
		return nil, fatal(KindInitialization, "restore merge", err)
	}
	h.setState(StateConflicted)

	e.logger.Info("resumed merge",
		zap.String("source", pending.Source),
		zap.String("target", pending.Target),
		zap.Int("unresolved", e.store.Stats().Unresolved))
	return h, nil
}

// restore rebuilds the store from the recorded merge. Paths that still carry
// conflict stages are unresolved, the others were resolved and staged.
func (e *Engine) restore(h *Handle, pending *git.MergeState) error {
	unmerged, err := h.repo.Unmerged()
	if err != nil {
		return err
	}
	open := lo.KeyBy(unmerged, func(u git.Unmerged) string { return u.Path })

	paths := lo.Uniq(append(append([]string{}, pending.Conflicts...), lo.Keys(open)...))
	sort.Strings(paths)

	files := make([]conflicts.File, 0, len(paths))
	for _, p := range paths {
		if u, ok := open[p]; ok {
			f, err := conflictFile(h.repo, u, nil)
			if err != nil {
				return err
			}
			files = append(files, f)
			continue
		}

		content, _, err := h.repo.ReadWorktreeFile(p)
		if err != nil {
			return err
		}
		files = append(files, conflicts.File{
			Path:            p,
			Status:          conflicts.StatusResolved,
			Type:            conflicts.TypeModify,
			OriginalContent: string(content),
			CurrentContent:  string(content),
			Binary:          merging.IsBinary(content),
		})
	}

	e.store.Reset()
	e.store.SetBranches(pending.Source, pending.Target)
	e.store.SetFiles(files)
	return nil
}

// ListBranches lists the branches advertised by the remote. When the
// remote cannot be listed the default branch list is returned together
// with a recoverable ListBranchesError.
func (e *Engine) ListBranches(ctx context.Context, h *Handle) ([]string, error) {
	release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	tracker := e.track(progress.PhaseListBranches)
	refs, err := retry.Do(ctx, "list-branches", func(ctx context.Context) ([]*plumbing.Reference, error) {
		refs, err := e.transport.List(ctx, h.repo.Raw(), &gitc.ListOptions{Auth: h.auth()})
		return refs, classify(KindListBranches, "list branches", err)
	}, e.retryOptions("list-branches"))
	e.finish(tracker, err)
	if err != nil {
		e.logger.Warn("could not list remote branches, using defaults", zap.Error(err))
		return append([]string(nil), e.defaultBranches...), err
	}

	return git.BranchNames(refs), nil
}

// CurrentBranch returns the checked out branch, empty when HEAD is detached.
func (e *Engine) CurrentBranch(h *Handle) (string, error) {
	release, err := h.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	return h.repo.CurrentBranch()
}

func (e *Engine) signature() object.Signature {
	return object.Signature{Name: e.authorName, Email: e.authorEmail, When: e.now()}
}

func (e *Engine) track(phase progress.Phase) *progress.Tracker {
	tracker := progress.NewTracker(e.observer)
	tracker.SetPhase(phase)
	return tracker
}

func (e *Engine) finish(tracker *progress.Tracker, err error) {
	if err != nil {
		tracker.Error(err)
		return
	}
	tracker.Complete()
}

// retryOptions logs every retry on top of the configured policy.
func (e *Engine) retryOptions(label string) retry.Options {
	opts := e.retry
	next := opts.OnRetry
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		e.logger.Warn(fmt.Sprintf("%s failed, retrying", label),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("code", retry.Code(err)))
		if next != nil {
			next(attempt, err, wait)
		}
	}
	return opts
}

// conflictFile builds the store entry of a conflicted path from its index
// stages and working tree copy. action, when known, carries what the merge
// planner found.
func conflictFile(repo *git.Repository, u git.Unmerged, action *merging.Action) (conflicts.File, error) {
	content, _, err := repo.ReadWorktreeFile(u.Path)
	if err != nil {
		return conflicts.File{}, err
	}

	f := conflicts.File{
		Path:            u.Path,
		Status:          conflicts.StatusUnresolved,
		Type:            conflictType(u),
		OriginalContent: string(content),
		CurrentContent:  string(content),
	}

	binary := merging.IsBinary(content)
	if action != nil {
		f.Type = action.Conflict
		binary = binary || action.Binary
	} else if !binary {
		if binary, err = stagesBinary(repo, u); err != nil {
			return conflicts.File{}, err
		}
	}

	f.Binary = binary
	if !binary {
		f.Regions = conflicts.RegionsFrom(merging.ParseRegions(f.OriginalContent))
	}
	return f, nil
}

func conflictType(u git.Unmerged) conflicts.Type {
	switch {
	case u.Ours == nil || u.Theirs == nil:
		return conflicts.TypeDelete
	case u.Base == nil:
		return conflicts.TypeAdd
	default:
		return conflicts.TypeModify
	}
}

func stagesBinary(repo *git.Repository, u git.Unmerged) (bool, error) {
	for _, side := range []*git.Entry{u.Base, u.Ours, u.Theirs} {
		if side == nil {
			continue
		}
		content, err := repo.ReadBlob(side.Hash)
		if err != nil {
			return false, err
		}
		if merging.IsBinary(content) {
			return true, nil
		}
	}
	return false, nil
}
