package engine

import (
	"context"
	"errors"
	"fmt"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/progress"
)

// MergePreview is the outcome a merge would have, computed without touching
// the working tree, the index or local branches.
type MergePreview struct {
	Source      string          `json:"source" yaml:"source"`
	Target      string          `json:"target" yaml:"target"`
	CanMerge    bool            `json:"canMerge" yaml:"canMerge"`
	FastForward bool            `json:"fastForward" yaml:"fastForward"`
	UpToDate    bool            `json:"upToDate" yaml:"upToDate"`
	Conflicts   []string        `json:"conflicts" yaml:"conflicts"`
	Changes     merging.Changes `json:"changes" yaml:"changes"`
}

// MergeResult reports a merge. Success is false when conflicts were left in
// the working tree for resolution; MergeCommit is the new tip otherwise.
type MergeResult struct {
	Success     bool     `json:"success" yaml:"success"`
	MergeCommit string   `json:"mergeCommit,omitempty" yaml:"mergeCommit,omitempty"`
	FastForward bool     `json:"fastForward,omitempty" yaml:"fastForward,omitempty"`
	UpToDate    bool     `json:"upToDate,omitempty" yaml:"upToDate,omitempty"`
	Conflicts   []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

// mergeRefs names the two sides of a merge. The names label conflict
// markers and the merge commit, the branches are what a deepening fetch
// asks the remote for.
type mergeRefs struct {
	Theirs       plumbing.Hash
	SourceName   string
	TargetName   string
	SourceBranch string
	TargetBranch string
}

// PreviewMerge reports what merging source into target would do. Branches
// the clone has not seen are fetched into their remote tracking refs.
func (e *Engine) PreviewMerge(ctx context.Context, h *Handle, source, target string) (*MergePreview, error) {
	release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := h.expect("preview a merge", settled...); err != nil {
		return nil, err
	}

	tracker := e.track(progress.PhaseMergePreview)
	preview, err := e.preview(ctx, h, tracker, source, target)
	e.finish(tracker, err)
	if err != nil {
		return nil, err
	}

	e.logger.Info("merge preview",
		zap.String("source", source),
		zap.String("target", target),
		zap.Bool("canMerge", preview.CanMerge),
		zap.Int("conflicts", len(preview.Conflicts)))
	return preview, nil
}

func (e *Engine) preview(ctx context.Context, h *Handle, tracker *progress.Tracker, source, target string) (*MergePreview, error) {
	theirs, err := e.branchTip(ctx, h, tracker, source)
	if err != nil {
		return nil, err
	}
	ours, err := e.branchTip(ctx, h, tracker, target)
	if err != nil {
		return nil, err
	}

	preview := &MergePreview{Source: source, Target: target, CanMerge: true}

	oursTree, err := h.repo.Snapshot(ours)
	if err != nil {
		return nil, fatal(KindMerge, "preview", err)
	}
	theirsTree, err := h.repo.Snapshot(theirs)
	if err != nil {
		return nil, fatal(KindMerge, "preview", err)
	}
	if ours == theirs {
		preview.UpToDate = true
		return preview, nil
	}

	base, err := e.mergeBase(ctx, h, tracker, KindMerge, ours, theirs, source, target)
	if err != nil {
		return nil, err
	}
	if base == theirs {
		// nothing of source is missing from target
		preview.UpToDate = true
		return preview, nil
	}

	preview.Changes = merging.DiffTrees(oursTree, theirsTree)
	if base == ours {
		preview.FastForward = true
		return preview, nil
	}

	baseTree, err := h.repo.Snapshot(base)
	if err != nil {
		return nil, fatal(KindMerge, "preview", err)
	}
	plan, err := merging.PlanTreeMerge(baseTree, oursTree, theirsTree, h.repo, merging.NewTextMerger(target, source))
	if err != nil {
		return nil, fatal(KindMerge, "preview", err)
	}

	preview.Conflicts = lo.Map(plan.Conflicts(), func(a merging.Action, _ int) string { return a.Path })
	preview.CanMerge = len(preview.Conflicts) == 0
	return preview, nil
}

// branchTip resolves a branch for reading, preferring the local branch.
func (e *Engine) branchTip(ctx context.Context, h *Handle, tracker *progress.Tracker, branch string) (plumbing.Hash, error) {
	tip, ok, err := h.repo.LocalBranch(branch)
	if err != nil {
		return plumbing.ZeroHash, fatal(KindMerge, "resolve branch", err)
	}
	if ok {
		return tip, nil
	}
	return e.trackingTip(ctx, h, tracker, KindMerge, branch)
}

// Merge checks out target and merges source into it. A clean merge is
// committed right away; a conflicted one leaves markers in the working
// tree, conflict stages in the index and MERGE_HEAD pointing at source, and
// fills the conflict store.
func (e *Engine) Merge(ctx context.Context, h *Handle, source, target string) (*MergeResult, error) {
	release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := h.expect("merge", settled...); err != nil {
		return nil, err
	}

	e.store.Reset()
	e.store.SetBranches(source, target)
	h.setState(StateMerging)

	tracker := e.track(progress.PhaseMerge)
	res, err := e.merge(ctx, h, tracker, source, target)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		e.logger.Error("merge failed", zap.String("source", source), zap.String("target", target), zap.Error(err))
		return nil, err
	}

	h.setState(stateAfter(res))
	if res.Success {
		e.logger.Success(fmt.Sprintf("merged %s into %s", source, target), zap.String("commit", res.MergeCommit))
	} else {
		e.logger.Warn(fmt.Sprintf("merge of %s into %s has conflicts", source, target), zap.Strings("files", res.Conflicts))
	}
	return res, nil
}

func (e *Engine) merge(ctx context.Context, h *Handle, tracker *progress.Tracker, source, target string) (*MergeResult, error) {
	if err := e.checkout(ctx, h, tracker, KindCheckout, target); err != nil {
		return nil, err
	}

	// Refresh the source so the merge sees what the remote has. A branch
	// that only exists locally is merged as is.
	if err := e.fetch(ctx, h, tracker, KindMerge, e.cloneDepth, source); err != nil && !errors.Is(err, gitc.NoMatchingRefSpecError{}) {
		return nil, err
	}

	theirs, ok, err := h.repo.Branch(source)
	if err != nil {
		return nil, fatal(KindMerge, "resolve branch", err)
	}
	if !ok {
		return nil, fatal(KindMerge, "resolve branch", fmt.Errorf("%w: %s", ErrBranchNotFound, source))
	}

	return e.mergeInto(ctx, h, tracker, KindMerge, mergeRefs{
		Theirs:       theirs,
		SourceName:   source,
		TargetName:   target,
		SourceBranch: source,
		TargetBranch: target,
	})
}

// stateAfter maps a merge outcome to the session state. Anything that moved
// the local branch waits to be pushed.
func stateAfter(res *MergeResult) State {
	switch {
	case !res.Success:
		return StateConflicted
	case res.UpToDate:
		return StateReady
	default:
		return StateClean
	}
}

// mergeInto merges refs.Theirs into the checked out branch.
func (e *Engine) mergeInto(ctx context.Context, h *Handle, tracker *progress.Tracker, kind Kind, refs mergeRefs) (*MergeResult, error) {
	ours, err := h.repo.HeadHash()
	if err != nil {
		return nil, fatal(kind, "merge", err)
	}
	theirs := refs.Theirs

	if ours == theirs {
		return &MergeResult{Success: true, UpToDate: true, MergeCommit: ours.String()}, nil
	}

	base, err := e.mergeBase(ctx, h, tracker, kind, ours, theirs, refs.SourceBranch, refs.TargetBranch)
	if err != nil {
		return nil, err
	}

	switch base {
	case theirs:
		return &MergeResult{Success: true, UpToDate: true, MergeCommit: ours.String()}, nil
	case ours:
		if err := h.repo.ResetHard(theirs); err != nil {
			return nil, fatal(kind, "fast-forward", err)
		}
		return &MergeResult{Success: true, FastForward: true, MergeCommit: theirs.String()}, nil
	}

	trees := make([]map[string]git.Entry, 3)
	for i, c := range []plumbing.Hash{base, ours, theirs} {
		if trees[i], err = h.repo.Snapshot(c); err != nil {
			return nil, fatal(kind, "merge", err)
		}
	}

	plan, err := merging.PlanTreeMerge(trees[0], trees[1], trees[2], h.repo, merging.NewTextMerger(refs.TargetName, refs.SourceName))
	if err != nil {
		return nil, fatal(kind, "merge", err)
	}
	if err := e.applyPlan(h, plan); err != nil {
		return nil, fatal(kind, "merge", err)
	}

	unmerged, err := h.repo.Unmerged()
	if err != nil {
		return nil, fatal(kind, "merge", err)
	}

	if len(unmerged) == 0 {
		message := fmt.Sprintf("Merge branch '%s' into %s", refs.SourceName, refs.TargetName)
		commit, err := h.repo.CommitIndex(message, e.signature(), []plumbing.Hash{ours, theirs})
		if err != nil {
			return nil, fatal(kind, "commit merge", err)
		}
		return &MergeResult{Success: true, MergeCommit: commit.String()}, nil
	}

	paths := lo.Map(unmerged, func(u git.Unmerged, _ int) string { return u.Path })
	if err := h.repo.SetMergeHead(git.MergeState{
		Head:      theirs,
		Source:    refs.SourceName,
		Target:    refs.TargetName,
		Conflicts: paths,
	}); err != nil {
		return nil, fatal(kind, "record merge", err)
	}

	if err := e.publish(h, plan, unmerged); err != nil {
		return nil, fatal(kind, "record conflicts", err)
	}

	return &MergeResult{Success: false, Conflicts: paths}, nil
}

// mergeBase finds the best common ancestor. A shallow clone may not
// reach it, in which case history is deepened once before giving up.
func (e *Engine) mergeBase(ctx context.Context, h *Handle, tracker *progress.Tracker, kind Kind, ours, theirs plumbing.Hash, branches ...string) (plumbing.Hash, error) {
	bases, err := h.repo.MergeBase(ours, theirs)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		e.logger.Info("history too shallow for merge base, deepening", zap.Int("depth", e.deepenDepth))
		if err := e.fetch(ctx, h, tracker, kind, e.deepenDepth, branches...); err != nil {
			return plumbing.ZeroHash, err
		}
		bases, err = h.repo.MergeBase(ours, theirs)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return plumbing.ZeroHash, fatal(kind, "merge base", fmt.Errorf("%w (depth %d): %w", ErrMissingHistory, e.deepenDepth, err))
		}
	}
	if err != nil {
		return plumbing.ZeroHash, fatal(kind, "merge base", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, fatal(kind, "merge base", ErrUnrelatedHistories)
	}
	return pickBase(bases), nil
}

// pickBase chooses among several best common ancestors (criss-cross
// history) the most recent one, so the choice is stable.
func pickBase(bases []*object.Commit) plumbing.Hash {
	best := lo.MaxBy(bases, func(a, b *object.Commit) bool {
		if a.Committer.When.Equal(b.Committer.When) {
			return a.Hash.String() > b.Hash.String()
		}
		return a.Committer.When.After(b.Committer.When)
	})
	return best.Hash
}

// applyPlan writes the merge result into the working tree and the index in
// one index write. Conflicts get their stages, merged paths stage 0.
func (e *Engine) applyPlan(h *Handle, plan *merging.Plan) error {
	return h.repo.EditIndex(func(idx *git.IndexEditor) error {
		for _, a := range plan.Actions {
			switch a.Kind {
			case merging.ActionTakeTheirs:
				content, err := h.repo.ReadBlob(a.Theirs.Hash)
				if err != nil {
					return err
				}
				if err := h.repo.WriteWorktreeFile(a.Path, content, a.Mode); err != nil {
					return err
				}
				idx.Stage(git.Entry{Path: a.Path, Hash: a.Theirs.Hash, Mode: a.Mode}, len(content))

			case merging.ActionDelete:
				if err := h.repo.RemoveWorktreeFile(a.Path); err != nil {
					return err
				}
				idx.Remove(a.Path)

			case merging.ActionMerged:
				hash, err := h.repo.WriteBlob(a.Content)
				if err != nil {
					return err
				}
				if err := h.repo.WriteWorktreeFile(a.Path, a.Content, a.Mode); err != nil {
					return err
				}
				idx.Stage(git.Entry{Path: a.Path, Hash: hash, Mode: a.Mode}, len(a.Content))

			case merging.ActionConflict:
				if err := e.writeConflict(h, a); err != nil {
					return err
				}
				idx.Conflict(a.Path, a.Base, a.Ours, a.Theirs)
			}
		}
		return nil
	})
}

// writeConflict leaves the working tree copy of a conflicted path: the
// marked up text, ours for binary files, or whichever side survived a
// modify/delete.
func (e *Engine) writeConflict(h *Handle, a merging.Action) error {
	switch {
	case a.Conflict == merging.ConflictDelete && a.Ours == nil:
		content, err := h.repo.ReadBlob(a.Theirs.Hash)
		if err != nil {
			return err
		}
		return h.repo.WriteWorktreeFile(a.Path, content, a.Theirs.Mode)
	case a.Conflict == merging.ConflictDelete, a.Binary:
		// ours is already checked out
		return nil
	default:
		return h.repo.WriteWorktreeFile(a.Path, a.Content, a.Mode)
	}
}

// publish fills the store with the conflicted paths.
func (e *Engine) publish(h *Handle, plan *merging.Plan, unmerged []git.Unmerged) error {
	actions := lo.KeyBy(plan.Conflicts(), func(a merging.Action) string { return a.Path })

	files := make([]conflicts.File, 0, len(unmerged))
	for _, u := range unmerged {
		var action *merging.Action
		if a, ok := actions[u.Path]; ok {
			action = &a
		}
		f, err := conflictFile(h.repo, u, action)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	e.store.SetFiles(files)
	return nil
}
