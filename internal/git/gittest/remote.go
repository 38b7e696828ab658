// Package gittest provides an in-memory origin repository that implements
// git.Transport, so clone, fetch, push and ls-remote can be exercised
// without a network.
package gittest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"

	"github.com/gitmerge/gitmerge/internal/git"
)

type Op string

const (
	OpClone Op = "clone"
	OpFetch Op = "fetch"
	OpPush  Op = "push"
	OpList  Op = "list"
)

// Remote is an in-memory origin. Commits are authored through its own
// worktree; clients see it through the Transport methods.
type Remote struct {
	URL           string
	DefaultBranch string
	// Shallow makes clone and fetch honour Depth, copying only the commits
	// within reach of it.
	Shallow bool

	repo  *gitc.Repository
	clock time.Time

	mu       sync.Mutex
	queued   map[Op][]error
	always   map[Op]error
	calls    map[Op]int
	lastAuth map[Op]transport.AuthMethod
}

var _ git.Transport = (*Remote)(nil)

func NewRemote(t testing.TB, url string) *Remote {
	t.Helper()

	repo, err := gitc.InitWithOptions(memory.NewStorage(), memfs.New(), gitc.InitOptions{
		DefaultBranch: plumbing.NewBranchReferenceName("main"),
	})
	require.NoError(t, err)

	return &Remote{
		URL:           url,
		DefaultBranch: "main",
		repo:          repo,
		clock:         time.Unix(0, 0),
		queued:        map[Op][]error{},
		always:        map[Op]error{},
		calls:         map[Op]int{},
		lastAuth:      map[Op]transport.AuthMethod{},
	}
}

// Commit writes files to branch and commits them. A nil value deletes the
// file. The branch is created from the current checkout when missing.
func (r *Remote) Commit(t testing.TB, branch, message string, files map[string]*string) plumbing.Hash {
	t.Helper()

	wt, err := r.repo.Worktree()
	require.NoError(t, err)

	ref := plumbing.NewBranchReferenceName(branch)
	if _, err := r.repo.Reference(ref, true); err == nil {
		require.NoError(t, wt.Checkout(&gitc.CheckoutOptions{Branch: ref, Force: true}))
	} else if head, err := r.repo.Head(); err == nil {
		require.NoError(t, wt.Checkout(&gitc.CheckoutOptions{Branch: ref, Hash: head.Hash(), Create: true, Force: true}))
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := files[p]
		if content == nil {
			_, err := wt.Remove(p)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, util.WriteFile(wt.Filesystem, p, []byte(*content), 0o644))
		_, err := wt.Add(p)
		require.NoError(t, err)
	}

	r.clock = r.clock.Add(time.Minute)
	sig := &object.Signature{Name: "Origin", Email: "origin@example.com", When: r.clock}
	h, err := wt.Commit(message, &gitc.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	require.NoError(t, err)
	return h
}

// Branch creates name pointing at the tip of from.
func (r *Remote) Branch(t testing.TB, name, from string) plumbing.Hash {
	t.Helper()

	h := r.Tip(t, from)
	require.NoError(t, r.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), h)))
	return h
}

func (r *Remote) Tip(t testing.TB, branch string) plumbing.Hash {
	t.Helper()

	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	return ref.Hash()
}

// File returns the content of path at the tip of branch, and whether it exists.
func (r *Remote) File(t testing.TB, branch, path string) (string, bool) {
	t.Helper()

	c, err := r.repo.CommitObject(r.Tip(t, branch))
	require.NoError(t, err)
	f, err := c.File(path)
	if err != nil {
		return "", false
	}
	content, err := f.Contents()
	require.NoError(t, err)
	return content, true
}

func (r *Remote) CommitObject(t testing.TB, h plumbing.Hash) *object.Commit {
	t.Helper()

	c, err := r.repo.CommitObject(h)
	require.NoError(t, err)
	return c
}

// Fail makes the next calls of op fail with errs, one error per call.
func (r *Remote) Fail(op Op, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued[op] = append(r.queued[op], errs...)
}

// FailAlways makes every call of op fail with err. A nil err clears it.
func (r *Remote) FailAlways(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.always, op)
		return
	}
	r.always[op] = err
}

func (r *Remote) Calls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Remote) LastAuth(op Op) transport.AuthMethod {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAuth[op]
}

func (r *Remote) enter(ctx context.Context, op Op, auth transport.AuthMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[op]++
	r.lastAuth[op] = auth
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := r.always[op]; ok {
		return err
	}
	if q := r.queued[op]; len(q) > 0 {
		r.queued[op] = q[1:]
		return q[0]
	}
	return nil
}

func (r *Remote) Clone(ctx context.Context, s storage.Storer, wt billy.Filesystem, o *gitc.CloneOptions) (*gitc.Repository, error) {
	if err := r.enter(ctx, OpClone, o.Auth); err != nil {
		return nil, err
	}
	if o.URL != r.URL {
		return nil, transport.ErrRepositoryNotFound
	}

	branch := r.DefaultBranch
	if o.ReferenceName != "" {
		branch = o.ReferenceName.Short()
	}
	tip, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("couldn't find remote ref %q: %w", branch, err)
	}

	repo, err := gitc.Init(s, wt)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: git.RemoteName, URLs: []string{r.URL}}); err != nil {
		return nil, err
	}

	refs, err := r.branches()
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if o.SingleBranch && ref.Name().Short() != branch {
			continue
		}
		if err := r.transfer(repo.Storer, ref.Hash(), o.Depth); err != nil {
			return nil, err
		}
		remoteRef := plumbing.NewRemoteReferenceName(git.RemoteName, ref.Name().Short())
		if err := repo.Storer.SetReference(plumbing.NewHashReference(remoteRef, ref.Hash())); err != nil {
			return nil, err
		}
	}

	local := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(local, tip.Hash())); err != nil {
		return nil, err
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, local)); err != nil {
		return nil, err
	}

	w, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	if err := w.Checkout(&gitc.CheckoutOptions{Branch: local, Force: true}); err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *Remote) Fetch(ctx context.Context, repo *gitc.Repository, o *gitc.FetchOptions) error {
	if err := r.enter(ctx, OpFetch, o.Auth); err != nil {
		return err
	}

	for _, spec := range o.RefSpecs {
		src := plumbing.ReferenceName(spec.Src())
		ref, err := r.repo.Reference(src, true)
		if err != nil {
			return gitc.NoMatchingRefSpecError{}
		}
		if err := r.transfer(repo.Storer, ref.Hash(), o.Depth); err != nil {
			return err
		}
		dst := spec.Dst(src)
		if err := repo.Storer.SetReference(plumbing.NewHashReference(dst, ref.Hash())); err != nil {
			return err
		}
	}
	return nil
}

func (r *Remote) Push(ctx context.Context, repo *gitc.Repository, o *gitc.PushOptions) error {
	if err := r.enter(ctx, OpPush, o.Auth); err != nil {
		return err
	}

	for _, spec := range o.RefSpecs {
		src := plumbing.ReferenceName(spec.Src())
		local, err := repo.Reference(src, true)
		if err != nil {
			return fmt.Errorf("src refspec %s does not match any: %w", src, err)
		}
		dst := spec.Dst(src)

		if current, err := r.repo.Reference(dst, true); err == nil && current.Hash() != local.Hash() {
			if err := copyAll(repo.Storer, r.repo.Storer); err != nil {
				return err
			}
			c, err := r.repo.CommitObject(current.Hash())
			if err != nil {
				return err
			}
			pushed, err := r.repo.CommitObject(local.Hash())
			if err != nil {
				return err
			}
			ff, err := c.IsAncestor(pushed)
			if err != nil {
				return err
			}
			if !ff {
				return gitc.ErrNonFastForwardUpdate
			}
		} else if err := copyAll(repo.Storer, r.repo.Storer); err != nil {
			return err
		}

		if err := r.repo.Storer.SetReference(plumbing.NewHashReference(dst, local.Hash())); err != nil {
			return err
		}
		tracking := plumbing.NewRemoteReferenceName(git.RemoteName, dst.Short())
		if err := repo.Storer.SetReference(plumbing.NewHashReference(tracking, local.Hash())); err != nil {
			return err
		}
	}
	return nil
}

func (r *Remote) List(ctx context.Context, repo *gitc.Repository, o *gitc.ListOptions) ([]*plumbing.Reference, error) {
	if err := r.enter(ctx, OpList, o.Auth); err != nil {
		return nil, err
	}

	refs, err := r.branches()
	if err != nil {
		return nil, err
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(r.DefaultBranch))
	return append([]*plumbing.Reference{head}, refs...), nil
}

func (r *Remote) branches() ([]*plumbing.Reference, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, err
	}
	var refs []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		refs = append(refs, ref)
		return nil
	})
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name() < refs[j].Name() })
	return refs, err
}

// transfer copies the history of tip into dst. depth 0 copies everything,
// otherwise only the first depth generations are sent (when Shallow is set).
func (r *Remote) transfer(dst storage.Storer, tip plumbing.Hash, depth int) error {
	if !r.Shallow || depth <= 0 {
		return copyAll(r.repo.Storer, dst)
	}

	var boundary []plumbing.Hash
	level := []plumbing.Hash{tip}
	seen := map[plumbing.Hash]bool{}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []plumbing.Hash
		for _, h := range level {
			if seen[h] {
				continue
			}
			seen[h] = true
			c, err := r.repo.CommitObject(h)
			if err != nil {
				return err
			}
			if err := copyCommit(r.repo.Storer, dst, c); err != nil {
				return err
			}
			if d == depth-1 && len(c.ParentHashes) > 0 {
				boundary = append(boundary, h)
			}
			next = append(next, c.ParentHashes...)
		}
		level = next
	}

	if len(boundary) > 0 {
		return dst.SetShallow(boundary)
	}
	return nil
}

func copyCommit(src, dst storer.EncodedObjectStorer, c *object.Commit) error {
	if err := copyObject(src, dst, c.Hash); err != nil {
		return err
	}
	tree, err := c.Tree()
	if err != nil {
		return err
	}
	if err := copyObject(src, dst, tree.Hash); err != nil {
		return err
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		_, entry, err := walker.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := copyObject(src, dst, entry.Hash); err != nil {
			return err
		}
	}
}

func copyAll(src, dst storer.EncodedObjectStorer) error {
	iter, err := src.IterEncodedObjects(plumbing.AnyObject)
	if err != nil {
		return err
	}
	return iter.ForEach(func(obj plumbing.EncodedObject) error {
		return copyObject(src, dst, obj.Hash())
	})
}

func copyObject(src, dst storer.EncodedObjectStorer, h plumbing.Hash) error {
	if dst.HasEncodedObject(h) == nil {
		return nil
	}
	obj, err := src.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return err
	}

	n := dst.NewEncodedObject()
	n.SetType(obj.Type())
	n.SetSize(obj.Size())

	reader, err := obj.Reader()
	if err != nil {
		return err
	}
	defer reader.Close()

	writer, err := n.Writer()
	if err != nil {
		return err
	}
	if _, err := io.Copy(writer, reader); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	_, err = dst.SetEncodedObject(n)
	return err
}

// Str is a convenience for building Commit file maps.
func Str(s string) *string {
	return &s
}
