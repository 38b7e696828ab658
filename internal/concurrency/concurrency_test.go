package concurrency

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondHolderIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "workspace.lock")

	first, err := New(path)
	require.NoError(t, err)
	second, err := New(path)
	require.NoError(t, err)

	require.NoError(t, first.Acquire())
	assert.ErrorIs(t, second.Acquire(), ErrLocked)

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Unlock())
}
