package git

import (
	"errors"
	"fmt"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	"github.com/go-git/go-billy/v5"
)

const (
	RemoteName = "origin"

	// MergeHead records the commit being merged while a conflicted merge is
	// waiting for resolution.
	MergeHead plumbing.ReferenceName = "MERGE_HEAD"

	mergeSection = "gitmerge"
)

type Repository struct {
	repo *gitc.Repository
}

// Wrap adapts an already opened go-git repository.
func Wrap(repo *gitc.Repository) *Repository {
	return &Repository{repo: repo}
}

// Open opens the repository held by s with wt as its working tree.
// If no repository is found, it will return an empty Repository
func Open(s storage.Storer, wt billy.Filesystem) (*Repository, error) {
	repo, err := gitc.Open(s, wt)
	if errors.Is(err, gitc.ErrRepositoryNotExists) {
		return &Repository{}, nil
	} else if err != nil {
		return &Repository{}, fmt.Errorf("git: %w", err)
	}

	return &Repository{repo: repo}, nil
}

func (r *Repository) IsNil() bool {
	return r == nil || r.repo == nil
}

func (r *Repository) Raw() *gitc.Repository {
	return r.repo
}

func (r *Repository) Worktree() (*gitc.Worktree, error) {
	if r.IsNil() {
		return nil, fmt.Errorf("git repository not initialized")
	}
	return r.repo.Worktree()
}

func (r *Repository) Filesystem() (billy.Filesystem, error) {
	wt, err := r.Worktree()
	if err != nil {
		return nil, err
	}
	return wt.Filesystem, nil
}

func (r *Repository) HeadHash() (plumbing.Hash, error) {
	if r.IsNil() {
		return plumbing.ZeroHash, nil
	}

	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	} else if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git: %w", err)
	}

	return head.Hash(), nil
}

// CurrentBranch returns the short name of the checked out branch, or an
// empty string for a detached HEAD.
func (r *Repository) CurrentBranch() (string, error) {
	if r.IsNil() {
		return "", fmt.Errorf("git repository not initialized")
	}

	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("git: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}
	return "", nil
}

// LocalBranch resolves refs/heads/<name>.
func (r *Repository) LocalBranch(name string) (plumbing.Hash, bool, error) {
	return r.lookup(plumbing.NewBranchReferenceName(name))
}

// RemoteBranch resolves refs/remotes/origin/<name>.
func (r *Repository) RemoteBranch(name string) (plumbing.Hash, bool, error) {
	return r.lookup(plumbing.NewRemoteReferenceName(RemoteName, name))
}

// Branch resolves a branch preferring the local ref over the remote tracking one.
func (r *Repository) Branch(name string) (plumbing.Hash, bool, error) {
	h, ok, err := r.LocalBranch(name)
	if err != nil || ok {
		return h, ok, err
	}
	return r.RemoteBranch(name)
}

func (r *Repository) lookup(name plumbing.ReferenceName) (plumbing.Hash, bool, error) {
	if r.IsNil() {
		return plumbing.ZeroHash, false, fmt.Errorf("git repository not initialized")
	}

	ref, err := r.repo.Reference(name, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	} else if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("git: %w", err)
	}
	return ref.Hash(), true, nil
}

// SetBranch points refs/heads/<name> at h.
func (r *Repository) SetBranch(name string, h plumbing.Hash) error {
	return r.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), h))
}

func (r *Repository) SetRemoteBranch(name string, h plumbing.Hash) error {
	return r.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewRemoteReferenceName(RemoteName, name), h))
}

func (r *Repository) CommitObject(h plumbing.Hash) (*object.Commit, error) {
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", h, err)
	}
	return c, nil
}

// IsAncestor reports whether a is reachable from b.
func (r *Repository) IsAncestor(a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	ca, err := r.CommitObject(a)
	if err != nil {
		return false, err
	}
	cb, err := r.CommitObject(b)
	if err != nil {
		return false, err
	}
	return ca.IsAncestor(cb)
}

// MergeBase returns the best common ancestors of a and b. Missing history
// (e.g. a shallow clone) surfaces as plumbing.ErrObjectNotFound.
func (r *Repository) MergeBase(a, b plumbing.Hash) ([]*object.Commit, error) {
	ca, err := r.CommitObject(a)
	if err != nil {
		return nil, err
	}
	cb, err := r.CommitObject(b)
	if err != nil {
		return nil, err
	}
	return ca.MergeBase(cb)
}

// MergeState describes a merge waiting for conflict resolution.
type MergeState struct {
	Head      plumbing.Hash
	Source    string
	Target    string
	Conflicts []string
}

// SetMergeHead records a pending merge: MERGE_HEAD plus the branch names and
// conflicted paths, kept in the repository config so another process can
// pick the merge up.
func (r *Repository) SetMergeHead(state MergeState) error {
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(MergeHead, state.Head)); err != nil {
		return fmt.Errorf("failed to write %s: %w", MergeHead, err)
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg.Raw.RemoveSection(mergeSection)
	sec := cfg.Raw.Section(mergeSection)
	sec.SetOption("source", state.Source)
	sec.SetOption("target", state.Target)
	for _, p := range state.Conflicts {
		sec.AddOption("conflict", p)
	}
	return r.repo.SetConfig(cfg)
}

// MergeHeadHash returns the pending merge commit, if any.
func (r *Repository) MergeHeadHash() (plumbing.Hash, bool, error) {
	return r.lookup(MergeHead)
}

// PendingMerge returns the recorded merge state, if a merge is pending.
func (r *Repository) PendingMerge() (*MergeState, error) {
	h, ok, err := r.MergeHeadHash()
	if err != nil || !ok {
		return nil, err
	}

	state := &MergeState{Head: h}
	cfg, err := r.repo.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if cfg.Raw.HasSection(mergeSection) {
		sec := cfg.Raw.Section(mergeSection)
		state.Source = sec.Option("source")
		state.Target = sec.Option("target")
		state.Conflicts = sec.OptionAll("conflict")
	}
	return state, nil
}

// ClearMergeHead forgets the pending merge. Clearing twice is fine.
func (r *Repository) ClearMergeHead() error {
	err := r.repo.Storer.RemoveReference(MergeHead)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return err
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if !cfg.Raw.HasSection(mergeSection) {
		return nil
	}
	cfg.Raw.RemoveSection(mergeSection)
	return r.repo.SetConfig(cfg)
}
