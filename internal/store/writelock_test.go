package store

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// deadPID returns the pid of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func TestWriteLock_AcquireRecordsOwnerPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", LockFileName)
	l := NewWriteLock(path)

	require.NoError(t, l.Acquire())
	defer func() { _ = l.Release() }()

	owner, err := readOwner(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), owner)
	assert.True(t, l.IsLocked())
}

func TestWriteLock_SecondHolderIsRejected(t *testing.T) {
	// Given: one holder
	path := filepath.Join(t.TempDir(), LockFileName)
	first := NewWriteLock(path)
	require.NoError(t, first.Acquire())
	defer func() { _ = first.Release() }()

	// When: another lock on the same file tries
	err := NewWriteLock(path).Acquire()

	// Then: it fails as locked, retryable, naming the owner
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteLocked)
	assert.True(t, docerrors.IsRetryable(err))
	var de *docerrors.DocError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, strconv.Itoa(os.Getpid()), de.Details["owner_pid"])
}

func TestWriteLock_ReleaseLetsNextHolderIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	first := NewWriteLock(path)
	require.NoError(t, first.Acquire())
	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second := NewWriteLock(path)
	assert.NoError(t, second.Acquire())
	_ = second.Release()
}

func TestWriteLock_StaleOwnerIsClearedOnce(t *testing.T) {
	// Given: a lock file held open whose recorded owner has exited
	path := filepath.Join(t.TempDir(), LockFileName)
	holder := flock.New(path)
	ok, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = holder.Unlock() }()
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(deadPID(t))), 0o644))

	// When: acquiring
	l := NewWriteLock(path)
	err = l.Acquire()

	// Then: the stale lock is cleared and the lock taken
	require.NoError(t, err)
	defer func() { _ = l.Release() }()
	owner, err := readOwner(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), owner)
}

func TestWriteLock_UnreadableOwnerIsNotStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	holder := flock.New(path)
	ok, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = holder.Unlock() }()

	err = NewWriteLock(path).Acquire()

	assert.ErrorIs(t, err, ErrWriteLocked)
}

func TestWriteLock_ClearRemovesOnlyHeldLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	holder := NewWriteLock(path)
	require.NoError(t, holder.Acquire())

	// A lock that was never acquired leaves the file alone.
	NewWriteLock(path).Clear()
	assert.FileExists(t, path)

	holder.Clear()
	assert.NoFileExists(t, path)
	assert.False(t, holder.IsLocked())
}

func TestProcessExists(t *testing.T) {
	assert.True(t, processExists(os.Getpid()))
	assert.False(t, processExists(deadPID(t)))
	assert.False(t, processExists(0))
}
