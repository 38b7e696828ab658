// Package concurrency guards workspaces shared between gitmerge processes.
package concurrency

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

type Error string

func (e Error) Error() string { return string(e) }

const ErrLocked = Error("workspace is locked by another gitmerge process")

type InterProcessMutex struct {
	mu *flock.Flock
}

func New(path string) (*InterProcessMutex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &InterProcessMutex{mu: flock.New(path)}, nil
}

func (m *InterProcessMutex) Lock() error {
	return m.mu.Lock()
}

func (m *InterProcessMutex) Unlock() error {
	return m.mu.Unlock()
}

func (m *InterProcessMutex) TryLock() (bool, error) {
	return m.mu.TryLock()
}

// Acquire takes the lock without waiting, failing with ErrLocked when another
// process holds it.
func (m *InterProcessMutex) Acquire() error {
	ok, err := m.mu.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", m.mu.Path(), err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (m *InterProcessMutex) Path() string {
	return m.mu.Path()
}
