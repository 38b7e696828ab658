package vfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// WorkspaceDir is the absolute path every workspace is mounted at.
const WorkspaceDir = "/workspace"

var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// FS exposes a workspace with absolute, promise-style paths
// (/workspace/src/main.go). All operations are binary safe.
type FS struct {
	fs billy.Filesystem
}

func NewFS(fs billy.Filesystem) *FS {
	return &FS{fs: fs}
}

func (f *FS) Billy() billy.Filesystem {
	return f.fs
}

// Rel converts an absolute workspace path to a path relative to the worktree
// root. Relative inputs are accepted as is.
func Rel(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(WorkspaceDir, p)
	}
	p = path.Clean(p)
	if p == WorkspaceDir {
		return ".", nil
	}
	if !strings.HasPrefix(p, WorkspaceDir+"/") {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideWorkspace)
	}
	return strings.TrimPrefix(p, WorkspaceDir+"/"), nil
}

// Abs is the inverse of Rel.
func Abs(rel string) string {
	return path.Join(WorkspaceDir, rel)
}

func (f *FS) resolve(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Rel(p)
}

func (f *FS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return util.ReadFile(f.fs, rel)
}

func (f *FS) WriteFile(ctx context.Context, p string, data []byte, perm os.FileMode) error {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	if dir := path.Dir(rel); dir != "." {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return util.WriteFile(f.fs, rel, data, perm)
}

func (f *FS) Unlink(ctx context.Context, p string) error {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	info, err := f.fs.Lstat(rel)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("unlink %s: is a directory", p)
	}
	return f.fs.Remove(rel)
}

// Readdir lists entry names sorted alphabetically.
func (f *FS) Readdir(ctx context.Context, p string) ([]string, error) {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	infos, err := f.fs.ReadDir(rel)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (f *FS) Mkdir(ctx context.Context, p string) error {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	return f.fs.MkdirAll(rel, 0o755)
}

// Rmdir removes an empty directory.
func (f *FS) Rmdir(ctx context.Context, p string) error {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	info, err := f.fs.Stat(rel)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("rmdir %s: not a directory", p)
	}
	entries, err := f.fs.ReadDir(rel)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("rmdir %s: directory not empty", p)
	}
	return f.fs.Remove(rel)
}

func (f *FS) Stat(ctx context.Context, p string) (os.FileInfo, error) {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return f.fs.Stat(rel)
}

func (f *FS) Lstat(ctx context.Context, p string) (os.FileInfo, error) {
	rel, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return f.fs.Lstat(rel)
}

// Exists reports whether p exists, treating any stat error other than
// not-exist as a failure.
func (f *FS) Exists(ctx context.Context, p string) (bool, error) {
	_, err := f.Lstat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
