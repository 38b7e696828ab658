package git

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"

	"github.com/go-git/go-billy/v5"
)

// Transport performs the network side of repository operations. The
// default implementation talks to real remotes through go-git; tests swap in
// an in-memory remote.
type Transport interface {
	Clone(ctx context.Context, s storage.Storer, wt billy.Filesystem, o *gitc.CloneOptions) (*gitc.Repository, error)
	Fetch(ctx context.Context, repo *gitc.Repository, o *gitc.FetchOptions) error
	Push(ctx context.Context, repo *gitc.Repository, o *gitc.PushOptions) error
	List(ctx context.Context, repo *gitc.Repository, o *gitc.ListOptions) ([]*plumbing.Reference, error)
}

type NetworkTransport struct{}

var _ Transport = NetworkTransport{}

func (NetworkTransport) Clone(ctx context.Context, s storage.Storer, wt billy.Filesystem, o *gitc.CloneOptions) (*gitc.Repository, error) {
	return gitc.CloneContext(ctx, s, wt, o)
}

func (NetworkTransport) Fetch(ctx context.Context, repo *gitc.Repository, o *gitc.FetchOptions) error {
	err := repo.FetchContext(ctx, o)
	if errors.Is(err, gitc.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

func (NetworkTransport) Push(ctx context.Context, repo *gitc.Repository, o *gitc.PushOptions) error {
	return pushErr(repo.PushContext(ctx, o))
}

func (NetworkTransport) List(ctx context.Context, repo *gitc.Repository, o *gitc.ListOptions) ([]*plumbing.Reference, error) {
	remote, err := repo.Remote(RemoteName)
	if err != nil {
		return nil, fmt.Errorf("error getting remote: %w", err)
	}
	return remote.ListContext(ctx, o)
}

func pushErr(err error) error {
	if err != nil && !errors.Is(err, gitc.NoErrAlreadyUpToDate) {
		if strings.Contains(err.Error(), "protected branch hook declined") {
			return fmt.Errorf("error pushing changes: %w\nThis is likely due to a branch protection rule. Please ensure that the branch is not protected (repo > settings > branches)", err)
		}
		return fmt.Errorf("error pushing changes: %w", err)
	}
	return nil
}

// BranchRefSpec fetches a single branch into its remote tracking ref.
func BranchRefSpec(branch string) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("+%s:%s",
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewRemoteReferenceName(RemoteName, branch)))
}

// PushRefSpec pushes a local branch to the branch of the same name.
func PushRefSpec(branch string) config.RefSpec {
	ref := plumbing.NewBranchReferenceName(branch)
	return config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
}

// BranchNames extracts branch names from an advertised reference list,
// sorted and without duplicates.
func BranchNames(refs []*plumbing.Reference) []string {
	seen := map[string]bool{}
	var names []string
	for _, ref := range refs {
		if !ref.Name().IsBranch() {
			continue
		}
		name := ref.Name().Short()
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultBranch returns the branch HEAD points to in an advertised list.
func DefaultBranch(refs []*plumbing.Reference) (string, bool) {
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference {
			return ref.Target().Short(), true
		}
	}
	return "", false
}
