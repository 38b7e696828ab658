package engine

import (
	"context"
	"fmt"
	"strings"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/progress"
	"github.com/gitmerge/gitmerge/internal/retry"
)

// CommitChanges stages the working tree and commits it on the current
// branch. A pending merge becomes the second parent. It refuses while
// conflict stages remain or staged text still carries conflict markers.
func (e *Engine) CommitChanges(ctx context.Context, h *Handle, message string) (string, error) {
	release, err := h.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	if err := h.expect("commit", settled...); err != nil {
		return "", err
	}

	h.setState(StateCommitting)
	tracker := e.track(progress.PhaseCommit)
	commit, err := e.commit(h, message)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		e.logger.Error("commit failed", zap.Error(err))
		return "", err
	}

	h.pendingReset = true
	h.setState(StateClean)
	e.logger.Success("changes committed", zap.String("commit", commit.String()))
	return commit.String(), nil
}

func (e *Engine) commit(h *Handle, message string) (plumbing.Hash, error) {
	unmerged, err := h.repo.Unmerged()
	if err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
	}
	if len(unmerged) > 0 {
		paths := lo.Map(unmerged, func(u git.Unmerged, _ int) string { return u.Path })
		return plumbing.ZeroHash, fatal(KindCommit, "commit", fmt.Errorf("%w: %s", ErrUnresolvedConflicts, strings.Join(paths, ", ")))
	}

	wt, err := h.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
	}
	if err := wt.AddWithOptions(&gitc.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "stage changes", err)
	}

	head, err := h.repo.HeadHash()
	if err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
	}
	if marked, err := markedFiles(h.repo, head); err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
	} else if len(marked) > 0 {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", fmt.Errorf("%w: %s", ErrConflictMarkers, strings.Join(marked, ", ")))
	}

	pending, err := h.repo.PendingMerge()
	if err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
	}

	parents := []plumbing.Hash{head}
	if pending != nil {
		parents = append(parents, pending.Head)
		if message == "" {
			message = fmt.Sprintf("Resolve merge conflicts between %s and %s", pending.Source, pending.Target)
		}
	} else {
		dirty, err := h.repo.HasLocalChanges()
		if err != nil {
			return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
		}
		if !dirty {
			return plumbing.ZeroHash, fatal(KindCommit, "commit", ErrNothingToCommit)
		}
		if message == "" {
			message = "Update files"
		}
	}

	commit, err := h.repo.CommitIndex(message, e.signature(), parents)
	if err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "commit", err)
	}
	if err := h.repo.ClearMergeHead(); err != nil {
		return plumbing.ZeroHash, fatal(KindCommit, "clear merge state", err)
	}
	return commit, nil
}

// markedFiles lists staged text files that differ from head and still hold
// conflict markers.
func markedFiles(repo *git.Repository, head plumbing.Hash) ([]string, error) {
	staged, err := repo.Staged()
	if err != nil {
		return nil, err
	}
	tree, err := repo.Snapshot(head)
	if err != nil {
		return nil, err
	}

	var marked []string
	for _, entry := range staged {
		if prev, ok := tree[entry.Path]; ok && prev.Hash == entry.Hash {
			continue
		}
		content, err := repo.ReadBlob(entry.Hash)
		if err != nil {
			return nil, err
		}
		if !merging.IsBinary(content) && merging.HasConflictMarkers(content) {
			marked = append(marked, entry.Path)
		}
	}
	return marked, nil
}

// Push publishes branch, the current branch when empty, to the remote.
// Credential failures are never retried; an already up to date remote is
// success. The conflict store is cleared once a resolved merge is pushed.
func (e *Engine) Push(ctx context.Context, h *Handle, branch string) error {
	release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := h.expect("push", pushable...); err != nil {
		return err
	}

	if branch == "" {
		if branch, err = h.repo.CurrentBranch(); err != nil {
			return fatal(KindPush, "push", err)
		}
	}

	h.setState(StatePushing)
	tracker := e.track(progress.PhasePush)
	sideband := progress.NewSidebandWriter(tracker)
	err = retry.Run(ctx, "push", func(ctx context.Context) error {
		err := e.transport.Push(ctx, h.repo.Raw(), &gitc.PushOptions{
			RemoteName: git.RemoteName,
			RefSpecs:   []config.RefSpec{git.PushRefSpec(branch)},
			Auth:       h.auth(),
			Progress:   sideband,
		})
		return classify(KindPush, "push", err)
	}, e.retryOptions("push"))
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		e.logger.Error("push failed", zap.String("branch", branch), zap.Error(err))
		return err
	}

	if h.pendingReset {
		e.store.Reset()
		h.pendingReset = false
	}
	h.setState(StateDone)
	e.logger.Success("pushed", zap.String("branch", branch))
	return nil
}
