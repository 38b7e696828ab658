package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/AlekSi/pointer"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"go.uber.org/zap"

	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/merging"
	"github.com/gitmerge/gitmerge/internal/progress"
)

// ResolveConflict writes content to path. When markAsResolved is set the
// path is staged, which collapses its conflict stages, and the store marks
// it resolved; otherwise only the edited content is recorded, and a file
// that was already resolved goes back to reviewing. Calling it again with
// the same arguments changes nothing.
func (e *Engine) ResolveConflict(ctx context.Context, h *Handle, path, content string, markAsResolved bool) error {
	release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := e.expectResolvable(h); err != nil {
		return err
	}

	h.setState(StateResolving)
	tracker := e.track(progress.PhaseResolveConflict)
	err = e.resolve(h, path, []byte(content), markAsResolved)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		return err
	}

	e.logger.Info("conflict updated", zap.String("file", path), zap.Bool("resolved", markAsResolved))
	return nil
}

func (e *Engine) resolve(h *Handle, path string, content []byte, markAsResolved bool) error {
	mode, err := fileMode(h.repo, path)
	if err != nil {
		return fatal(KindResolve, "resolve", err)
	}
	if err := h.repo.WriteWorktreeFile(path, content, mode); err != nil {
		return fatal(KindResolve, "write file", err)
	}

	text := string(content)
	if !markAsResolved {
		// editing a resolved file puts it back under review
		if err := e.store.Reopen(path); err != nil && !errors.Is(err, conflicts.ErrFileNotFound) {
			return fatal(KindResolve, "reopen conflict", err)
		}
		if err := e.store.UpdateFile(path, conflicts.Update{CurrentContent: pointer.ToString(text)}); err != nil {
			return fatal(KindResolve, "update conflict", err)
		}
		return nil
	}

	if err := h.repo.StageFile(path, content, mode); err != nil {
		return fatal(KindResolve, "stage file", err)
	}
	err = e.store.ResolveConflict(conflicts.Resolution{File: path, Strategy: merging.StrategyCustom, Content: pointer.ToString(text)})
	if err != nil && !errors.Is(err, conflicts.ErrFileNotFound) {
		return fatal(KindResolve, "update conflict", err)
	}
	return nil
}

// ResolveWithStrategy resolves path by taking the whole file from one side.
// When that side deleted the file, the file is deleted.
func (e *Engine) ResolveWithStrategy(ctx context.Context, h *Handle, path string, strategy merging.MergeStrategy) error {
	release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := e.expectResolvable(h); err != nil {
		return err
	}

	h.setState(StateResolving)
	tracker := e.track(progress.PhaseResolveConflict)
	err = e.resolveWithStrategy(h, path, strategy)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		return err
	}

	e.logger.Info("conflict resolved", zap.String("file", path), zap.String("strategy", string(strategy)))
	return nil
}

func (e *Engine) resolveWithStrategy(h *Handle, path string, strategy merging.MergeStrategy) error {
	unmerged, err := h.repo.Unmerged()
	if err != nil {
		return fatal(KindResolve, "resolve", err)
	}

	var stages *git.Unmerged
	for i := range unmerged {
		if unmerged[i].Path == path {
			stages = &unmerged[i]
			break
		}
	}
	if stages == nil {
		if f, ok := e.store.File(path); ok && f.Status == conflicts.StatusResolved {
			return nil
		}
		return fatal(KindResolve, "resolve", fmt.Errorf("%w: %s", ErrNotConflicted, path))
	}

	var side *git.Entry
	switch strategy {
	case merging.StrategyOurs:
		side = stages.Ours
	case merging.StrategyTheirs:
		side = stages.Theirs
	default:
		return fatal(KindResolve, "resolve", fmt.Errorf("strategy %q needs explicit content", strategy))
	}

	var text string
	if side == nil {
		if err := h.repo.RemoveWorktreeFile(path); err != nil {
			return fatal(KindResolve, "delete file", err)
		}
		if err := h.repo.RemoveFromIndex(path); err != nil {
			return fatal(KindResolve, "delete file", err)
		}
	} else {
		content, err := h.repo.ReadBlob(side.Hash)
		if err != nil {
			return fatal(KindResolve, "resolve", err)
		}
		if err := h.repo.WriteWorktreeFile(path, content, side.Mode); err != nil {
			return fatal(KindResolve, "write file", err)
		}
		err = h.repo.EditIndex(func(idx *git.IndexEditor) error {
			idx.Stage(*side, len(content))
			return nil
		})
		if err != nil {
			return fatal(KindResolve, "stage file", err)
		}
		text = string(content)
	}

	err = e.store.ResolveConflict(conflicts.Resolution{File: path, Strategy: strategy, Content: pointer.ToString(text)})
	if err != nil && !errors.Is(err, conflicts.ErrFileNotFound) {
		return fatal(KindResolve, "update conflict", err)
	}
	return nil
}

// ResolveRegion replaces one conflict block of path with text. The working
// tree follows the store's current content, and the path is staged once
// its last block is resolved.
func (e *Engine) ResolveRegion(ctx context.Context, h *Handle, path string, index int, text string) error {
	release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := e.expectResolvable(h); err != nil {
		return err
	}

	h.setState(StateResolving)
	tracker := e.track(progress.PhaseResolveConflict)
	err = e.resolveRegion(h, path, index, text)
	e.finish(tracker, err)
	if err != nil {
		h.settle(err)
		return err
	}

	e.logger.Info("conflict region resolved", zap.String("file", path), zap.Int("region", index))
	return nil
}

func (e *Engine) resolveRegion(h *Handle, path string, index int, text string) error {
	if err := e.store.ResolveRegion(path, index, text); err != nil {
		return fatal(KindResolve, "resolve region", err)
	}
	f, _ := e.store.File(path)

	mode, err := fileMode(h.repo, path)
	if err != nil {
		return fatal(KindResolve, "resolve region", err)
	}
	content := []byte(f.CurrentContent)
	if err := h.repo.WriteWorktreeFile(path, content, mode); err != nil {
		return fatal(KindResolve, "write file", err)
	}
	if f.Status != conflicts.StatusResolved {
		return nil
	}
	if err := h.repo.StageFile(path, content, mode); err != nil {
		return fatal(KindResolve, "stage file", err)
	}
	return nil
}

func (e *Engine) expectResolvable(h *Handle) error {
	if err := h.expect("resolve conflicts", resolvable...); err != nil {
		return err
	}
	if _, pending, err := h.repo.MergeHeadHash(); err != nil {
		return err
	} else if !pending {
		return fmt.Errorf("%w: no merge in progress", ErrInvalidState)
	}
	return nil
}

// fileMode keeps the mode the path has in the index, at any stage.
func fileMode(repo *git.Repository, path string) (filemode.FileMode, error) {
	unmerged, err := repo.Unmerged()
	if err != nil {
		return filemode.Empty, err
	}
	for _, u := range unmerged {
		if u.Path != path {
			continue
		}
		for _, side := range []*git.Entry{u.Ours, u.Theirs, u.Base} {
			if side != nil {
				return side.Mode, nil
			}
		}
	}

	entry, err := repo.IndexEntry(path)
	if err != nil {
		return filemode.Empty, err
	}
	if entry != nil {
		return entry.Mode, nil
	}
	return filemode.Regular, nil
}

// FileContent returns the working tree bytes of path.
func (e *Engine) FileContent(ctx context.Context, h *Handle, path string) ([]byte, error) {
	release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	content, ok, err := h.repo.ReadWorktreeFile(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return content, nil
}

// BranchFileContent returns path as it is at the tip of branch, without
// checking the branch out.
func (e *Engine) BranchFileContent(ctx context.Context, h *Handle, branch, path string) ([]byte, error) {
	release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	tip, ok, err := h.repo.Branch(branch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	content, ok, err := h.repo.FileAt(tip, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, branch, fs.ErrNotExist)
	}
	return content, nil
}

// Abort abandons a merge waiting for resolution: the working tree and index
// go back to HEAD, MERGE_HEAD is removed and the store is cleared.
func (e *Engine) Abort(ctx context.Context, h *Handle) error {
	release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := e.abort(h); err != nil {
		h.setState(StateError)
		return err
	}

	h.pendingReset = false
	e.store.Reset()
	h.setState(StateReady)
	e.logger.Info("merge aborted")
	return nil
}

func (e *Engine) abort(h *Handle) error {
	head, err := h.repo.HeadHash()
	if err != nil {
		return fatal(KindMerge, "abort", err)
	}
	tree, err := h.repo.Snapshot(head)
	if err != nil {
		return fatal(KindMerge, "abort", err)
	}

	// Files the merge brought in are not part of HEAD, a reset leaves them
	// behind as untracked.
	staged, err := h.repo.Staged()
	if err != nil {
		return fatal(KindMerge, "abort", err)
	}
	unmerged, err := h.repo.Unmerged()
	if err != nil {
		return fatal(KindMerge, "abort", err)
	}
	paths := make([]string, 0, len(staged)+len(unmerged))
	for _, s := range staged {
		paths = append(paths, s.Path)
	}
	for _, u := range unmerged {
		paths = append(paths, u.Path)
	}
	for _, p := range paths {
		if _, ok := tree[p]; ok {
			continue
		}
		if err := h.repo.RemoveWorktreeFile(p); err != nil {
			return fatal(KindMerge, "abort", err)
		}
	}

	if err := h.repo.CollapseConflicts(); err != nil {
		return fatal(KindMerge, "abort", err)
	}
	if err := h.repo.ResetHard(head); err != nil {
		return fatal(KindMerge, "abort", err)
	}
	if err := h.repo.ClearMergeHead(); err != nil {
		return fatal(KindMerge, "abort", err)
	}
	return nil
}
