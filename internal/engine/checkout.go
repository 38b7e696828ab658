package engine

import (
	"context"
	"errors"
	"fmt"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/progress"
	"github.com/gitmerge/gitmerge/internal/retry"
)

// Checkout switches the working tree to branch, fetching it first when it
// only exists on the remote.
func (e *Engine) Checkout(ctx context.Context, h *Handle, branch string) error {
	release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := h.expect("checkout", settled...); err != nil {
		return err
	}

	tracker := e.track(progress.PhaseCheckout)
	err = e.checkout(ctx, h, tracker, KindCheckout, branch)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		return err
	}

	h.setState(StateReady)
	e.logger.Info("checked out branch", zap.String("branch", branch))
	return nil
}

func (e *Engine) checkout(ctx context.Context, h *Handle, tracker *progress.Tracker, kind Kind, branch string) error {
	if err := e.ensureNoMerge(h, kind); err != nil {
		return err
	}

	current, err := h.repo.CurrentBranch()
	if err != nil {
		return fatal(kind, "checkout", err)
	}
	if current == branch {
		return nil
	}

	dirty, err := h.repo.HasLocalChanges()
	if err != nil {
		return fatal(kind, "checkout", err)
	}
	if dirty {
		return fatal(kind, "checkout", fmt.Errorf("local changes would be overwritten by checking out %s", branch))
	}

	if _, ok, err := h.repo.LocalBranch(branch); err != nil {
		return fatal(kind, "checkout", err)
	} else if !ok {
		tip, err := e.trackingTip(ctx, h, tracker, kind, branch)
		if err != nil {
			return err
		}
		if err := h.repo.SetBranch(branch, tip); err != nil {
			return fatal(kind, "create branch", err)
		}
	}

	wt, err := h.repo.Worktree()
	if err != nil {
		return fatal(kind, "checkout", err)
	}
	if err := wt.Checkout(&gitc.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
		return fatal(kind, "checkout", err)
	}
	return nil
}

// trackingTip resolves origin/<branch>, fetching the branch when the clone
// has not seen it yet.
func (e *Engine) trackingTip(ctx context.Context, h *Handle, tracker *progress.Tracker, kind Kind, branch string) (plumbing.Hash, error) {
	tip, ok, err := h.repo.RemoteBranch(branch)
	if err != nil {
		return plumbing.ZeroHash, fatal(kind, "resolve branch", err)
	}
	if ok {
		return tip, nil
	}

	if err := e.fetch(ctx, h, tracker, kind, e.cloneDepth, branch); err != nil {
		if errors.Is(err, gitc.NoMatchingRefSpecError{}) {
			return plumbing.ZeroHash, fatal(kind, "resolve branch", fmt.Errorf("%w: %s", ErrBranchNotFound, branch))
		}
		return plumbing.ZeroHash, err
	}

	tip, ok, err = h.repo.RemoteBranch(branch)
	if err != nil {
		return plumbing.ZeroHash, fatal(kind, "resolve branch", err)
	}
	if !ok {
		return plumbing.ZeroHash, fatal(kind, "resolve branch", fmt.Errorf("%w: %s", ErrBranchNotFound, branch))
	}
	return tip, nil
}

// fetch updates the remote tracking refs of branches. depth 0 fetches
// full history.
func (e *Engine) fetch(ctx context.Context, h *Handle, tracker *progress.Tracker, kind Kind, depth int, branches ...string) error {
	specs := lo.Map(lo.Uniq(branches), func(b string, _ int) config.RefSpec {
		return git.BranchRefSpec(b)
	})
	sideband := progress.NewSidebandWriter(tracker)

	return retry.Run(ctx, "fetch", func(ctx context.Context) error {
		err := e.transport.Fetch(ctx, h.repo.Raw(), &gitc.FetchOptions{
			RemoteName: git.RemoteName,
			RefSpecs:   specs,
			Auth:       h.auth(),
			Depth:      depth,
			Progress:   sideband,
		})
		return classify(kind, "fetch", err)
	}, e.retryOptions("fetch"))
}

// ensureNoMerge refuses to move away from a merge waiting for resolution.
func (e *Engine) ensureNoMerge(h *Handle, kind Kind) error {
	unmerged, err := h.repo.Unmerged()
	if err != nil {
		return fatal(kind, "check index", err)
	}
	_, pending, err := h.repo.MergeHeadHash()
	if err != nil {
		return fatal(kind, "check index", err)
	}
	if pending || len(unmerged) > 0 {
		return fatal(kind, "checkout", fmt.Errorf("%w: resolve, commit or abort it first", ErrMergeInProgress))
	}
	return nil
}

// Pull brings branch up to date with the remote: a fast-forward when
// possible, a merge of origin/<branch> otherwise. A conflicted pull leaves
// the merge waiting for resolution like Merge does.
func (e *Engine) Pull(ctx context.Context, h *Handle, branch string) (*MergeResult, error) {
	release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := h.expect("pull", settled...); err != nil {
		return nil, err
	}

	tracker := e.track(progress.PhasePull)
	res, err := e.pull(ctx, h, tracker, branch)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		e.logger.Error("pull failed", zap.String("branch", branch), zap.Error(err))
		return nil, err
	}

	// a fast-forward only catches up with the remote
	if res.FastForward {
		h.setState(StateReady)
	} else {
		h.setState(stateAfter(res))
	}
	return res, nil
}

func (e *Engine) pull(ctx context.Context, h *Handle, tracker *progress.Tracker, branch string) (*MergeResult, error) {
	if err := e.checkout(ctx, h, tracker, KindPull, branch); err != nil {
		return nil, err
	}

	if err := e.fetch(ctx, h, tracker, KindPull, e.cloneDepth, branch); err != nil {
		return nil, err
	}

	tip, ok, err := h.repo.RemoteBranch(branch)
	if err != nil {
		return nil, fatal(KindPull, "pull", err)
	}
	if !ok {
		return nil, fatal(KindPull, "pull", fmt.Errorf("%w: %s", ErrBranchNotFound, branch))
	}

	e.store.Reset()
	e.store.SetBranches(git.RemoteName+"/"+branch, branch)
	return e.mergeInto(ctx, h, tracker, KindPull, mergeRefs{
		Theirs:       tip,
		SourceName:   git.RemoteName + "/" + branch,
		TargetName:   branch,
		SourceBranch: branch,
		TargetBranch: branch,
	})
}
