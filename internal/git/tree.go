package git

import (
	"errors"
	"fmt"
	"os"
	"path"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/go-git/go-billy/v5/util"
)

// Snapshot flattens the tree of commit h into path -> entry.
func (r *Repository) Snapshot(h plumbing.Hash) (map[string]Entry, error) {
	c, err := r.CommitObject(h)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree of %s: %w", h, err)
	}

	out := map[string]Entry{}
	err = tree.Files().ForEach(func(f *object.File) error {
		out[f.Name] = Entry{Path: f.Name, Hash: f.Hash, Mode: f.Mode}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree of %s: %w", h, err)
	}
	return out, nil
}

// FileAt returns the content of p at commit h. ok is false when the file
// does not exist there.
func (r *Repository) FileAt(h plumbing.Hash, p string) ([]byte, bool, error) {
	c, err := r.CommitObject(h)
	if err != nil {
		return nil, false, err
	}
	f, err := c.File(p)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to read %s at %s: %w", p, h, err)
	}
	content, err := r.ReadBlob(f.Hash)
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// ReadWorktreeFile reads p from the working tree. ok is false when missing.
func (r *Repository) ReadWorktreeFile(p string) ([]byte, bool, error) {
	fs, err := r.Filesystem()
	if err != nil {
		return nil, false, err
	}
	content, err := util.ReadFile(fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// WriteWorktreeFile writes content to p, creating parent directories.
func (r *Repository) WriteWorktreeFile(p string, content []byte, mode filemode.FileMode) error {
	fs, err := r.Filesystem()
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	perm := os.FileMode(0o644)
	if mode == filemode.Executable {
		perm = 0o755
	}
	return util.WriteFile(fs, p, content, perm)
}

// RemoveWorktreeFile deletes p from the working tree, ignoring missing files.
func (r *Repository) RemoveWorktreeFile(p string) error {
	fs, err := r.Filesystem()
	if err != nil {
		return err
	}
	if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// HasLocalChanges reports tracked modifications in the index or working
// tree. Untracked files are ignored.
func (r *Repository) HasLocalChanges() (bool, error) {
	wt, err := r.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to compute status: %w", err)
	}
	for _, s := range status {
		if s.Staging == gitc.Untracked && s.Worktree == gitc.Untracked {
			continue
		}
		if s.Staging != gitc.Unmodified || s.Worktree != gitc.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

// ResetHard moves the current branch and working tree to h.
func (r *Repository) ResetHard(h plumbing.Hash) error {
	wt, err := r.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Reset(&gitc.ResetOptions{Commit: h, Mode: gitc.HardReset}); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", h, err)
	}
	return nil
}

// CommitIndex records the index as a commit on the current branch.
func (r *Repository) CommitIndex(message string, author object.Signature, parents []plumbing.Hash) (plumbing.Hash, error) {
	wt, err := r.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	h, err := wt.Commit(message, &gitc.CommitOptions{
		Author:            &author,
		Committer:         &author,
		Parents:           parents,
		AllowEmptyCommits: len(parents) > 1,
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return h, nil
}
