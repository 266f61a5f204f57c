// Package lock serializes sync runs with a pidfile so a scheduled run and
// a manual run never write to the same database concurrently.
package lock

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrSyncInProgress is returned when another live process holds the lock.
var ErrSyncInProgress = errors.New("another sync is already running")

// Lock is a held pidfile lock.
type Lock struct {
	path string
}

// Acquire takes the lock at path. A lockfile whose pid no longer exists is
// treated as stale and taken over.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if holderAlive(path) {
			return nil, ErrSyncInProgress
		}

		// Holder is gone; remove the stale file and retry once.
		log.Printf("Removing stale lock file %s", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, ErrSyncInProgress
}

// Release removes the lockfile. Safe to call on every exit path.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// holderAlive reports whether the pid recorded in the lockfile still
// refers to a running process. Unreadable or garbled files count as dead.
func holderAlive(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// DefaultPath returns the lockfile location under the config directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kobo-notion-sync", "sync.lock"), nil
}
