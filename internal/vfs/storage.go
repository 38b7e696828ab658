// Package vfs provides the workspace filesystem backing a merge session.
// A Storage is chosen once, when the engine is built, and hands out
// workspaces that are either ephemeral (in memory) or persistent (on disk).
package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gitmerge/gitmerge/internal/concurrency"
	"github.com/gitmerge/gitmerge/internal/env"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
)

type Kind string

const (
	KindMemory     Kind = "memory"
	KindPersistent Kind = "persistent"
)

var Kinds = []string{string(KindMemory), string(KindPersistent)}

type Storage interface {
	Kind() Kind
	// Open returns the workspace for name, creating it when needed.
	Open(name string) (*Workspace, error)
}

// NewStorage resolves the storage backend. root is only used by the
// persistent backend.
func NewStorage(kind Kind, root string) (Storage, error) {
	switch kind {
	case KindMemory, "":
		return memoryStorage{}, nil
	case KindPersistent:
		if root == "" {
			return nil, fmt.Errorf("persistent storage requires a workspace directory")
		}
		return &persistentStorage{root: root}, nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q (available options: [%s])", kind, strings.Join(Kinds, ", "))
	}
}

// Workspace is a working tree plus the git object store that belongs to it.
type Workspace struct {
	Name     string
	Worktree billy.Filesystem
	Storer   storage.Storer
	// Dir is the host directory of a persistent workspace, empty in memory.
	Dir string

	lock *concurrency.InterProcessMutex
}

// FS returns the promise-style filesystem adapter for the workspace.
func (w *Workspace) FS() *FS {
	return NewFS(w.Worktree)
}

// HasRepository reports whether a repository was already initialised here.
func (w *Workspace) HasRepository() bool {
	_, err := w.Worktree.Stat(".git")
	return err == nil
}

// Close releases the workspace. In-memory contents are dropped with it.
func (w *Workspace) Close() error {
	if w.lock != nil {
		return w.lock.Unlock()
	}
	return nil
}

// Reset empties the workspace so a clone can start over. Persistent
// workspaces lose their files, the lock is kept.
func (w *Workspace) Reset() error {
	if w.Dir == "" {
		w.Worktree = memfs.New()
		w.Storer = memory.NewStorage()
		return nil
	}

	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to clear workspace %s: %w", w.Dir, err)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", w.Dir, err)
	}
	wt, storer, err := openDir(w.Dir)
	if err != nil {
		return err
	}
	w.Worktree = wt
	w.Storer = storer
	return nil
}

// Remove deletes a persistent workspace from disk.
func (w *Workspace) Remove() error {
	if w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

type memoryStorage struct{}

func (memoryStorage) Kind() Kind { return KindMemory }

func (memoryStorage) Open(name string) (*Workspace, error) {
	return &Workspace{
		Name:     name,
		Worktree: memfs.New(),
		Storer:   memory.NewStorage(),
	}, nil
}

type persistentStorage struct {
	root string
}

func (s *persistentStorage) Kind() Kind { return KindPersistent }

func (s *persistentStorage) Open(name string) (*Workspace, error) {
	dir := filepath.Join(s.root, DirName(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	var lock *concurrency.InterProcessMutex
	if !env.IsWorkspaceLockDisabled() {
		var err error
		lock, err = concurrency.New(filepath.Join(s.root, ".locks", DirName(name)+".lock"))
		if err != nil {
			return nil, err
		}
		if err := lock.Acquire(); err != nil {
			return nil, err
		}
	}

	wt, storer, err := openDir(dir)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}

	return &Workspace{
		Name:     name,
		Worktree: wt,
		Storer:   storer,
		Dir:      dir,
		lock:     lock,
	}, nil
}

func openDir(dir string) (billy.Filesystem, storage.Storer, error) {
	wt := osfs.New(dir)
	dot, err := wt.Chroot(".git")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open git directory: %w", err)
	}
	return wt, filesystem.NewStorage(dot, cache.NewObjectLRUDefault()), nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DirName maps a repository URL or name to a directory name.
func DirName(name string) string {
	name = strings.TrimSuffix(name, ".git")
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")
	if name == "" {
		return "workspace"
	}
	return name
}
