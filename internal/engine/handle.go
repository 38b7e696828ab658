package engine

import (
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/vfs"
)

// Handle is one cloned repository: its workspace, the go-git repository
// inside it and the credential used for every network call. Operations on a
// handle never interleave.
type Handle struct {
	URL string

	credential string
	workspace  *vfs.Workspace
	repo       *git.Repository

	mu sync.Mutex

	stateMu sync.RWMutex
	state   State

	// pendingReset clears the conflict store once the commit that ended a
	// merge has been pushed.
	pendingReset bool
}

// Repository exposes the underlying repository for read access.
func (h *Handle) Repository() *git.Repository {
	return h.repo
}

func (h *Handle) Workspace() *vfs.Workspace {
	return h.workspace
}

// Close releases the workspace. In-memory repositories are dropped, a
// persistent workspace keeps its files and gives up its lock.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.setState(StateIdle)
	h.repo = nil
	if h.workspace == nil {
		return nil
	}
	err := h.workspace.Close()
	h.workspace = nil
	return err
}

func (h *Handle) auth() transport.AuthMethod {
	return git.AuthMethod(h.credential)
}

// acquire takes the operation lock, failing fast when another operation is
// running.
func (h *Handle) acquire() (func(), error) {
	if h == nil {
		return nil, ErrNoHandle
	}
	if !h.mu.TryLock() {
		return nil, ErrBusy
	}
	if h.repo.IsNil() {
		h.mu.Unlock()
		return nil, ErrNoHandle
	}
	return h.mu.Unlock, nil
}
