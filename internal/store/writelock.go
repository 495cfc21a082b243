package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// ErrWriteLocked is returned when another writer holds the index write lock.
var ErrWriteLocked = errors.New("index write lock is held by another writer")

// WriteLock is the cross-process exclusive lock on an index. The lock file
// holds the owner's pid so a lock left behind by a dead process can be told
// apart from a live one.
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriteLock creates a lock on the file at path.
func NewWriteLock(path string) *WriteLock {
	return &WriteLock{path: path, flock: flock.New(path)}
}

// Path returns the lock file path.
func (l *WriteLock) Path() string {
	return l.path
}

// IsLocked reports whether this instance holds the lock.
func (l *WriteLock) IsLocked() bool {
	return l.locked
}

// Acquire takes the lock without blocking. If the lock is held and the
// recorded owner no longer exists, the lock file is cleared and acquisition
// retried once. Failure after that returns an error matching ErrWriteLocked.
func (l *WriteLock) Acquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexOpen, "failed to create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return docerrors.New(docerrors.ErrCodeIndexOpen, "failed to acquire write lock", err)
	}

	if !acquired {
		owner, readErr := readOwner(l.path)
		if readErr != nil || owner == os.Getpid() || processExists(owner) {
			return l.lockedError(owner)
		}

		slog.Warn("stale_write_lock_cleared",
			slog.String("path", l.path),
			slog.Int("owner_pid", owner))
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return docerrors.New(docerrors.ErrCodeIndexOpen, "failed to clear stale write lock", err)
		}
		l.flock = flock.New(l.path)
		if acquired, err = l.flock.TryLock(); err != nil {
			return docerrors.New(docerrors.ErrCodeIndexOpen, "failed to acquire write lock", err)
		}
		if !acquired {
			return l.lockedError(owner)
		}
	}

	l.locked = true
	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		slog.Warn("write_lock_owner_not_recorded",
			slog.String("path", l.path),
			slog.String("error", err.Error()))
	}
	return nil
}

// Release unlocks the file. The file itself is left in place.
// Safe to call when not locked.
func (l *WriteLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release write lock: %w", err)
	}
	return nil
}

// Clear releases the lock and deletes the lock file, ignoring every error.
// A lock this instance does not hold is left alone.
func (l *WriteLock) Clear() {
	if !l.locked {
		return
	}
	_ = os.Remove(l.path)
	_ = l.Release()
}

func (l *WriteLock) lockedError(owner int) error {
	err := docerrors.New(docerrors.ErrCodeWriteLocked, "index is being written by another worker", ErrWriteLocked)
	if owner > 0 {
		err = err.WithDetail("owner_pid", strconv.Itoa(owner))
	}
	return err.WithSuggestion("wait for the other worker to finish or stop it")
}

// readOwner reads the pid recorded in the lock file.
func readOwner(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return pid, nil
}

// processExists checks if a process with the given pid exists.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 checks for the process.
	// EPERM means it exists but belongs to another user.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
