package store

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockPollInterval = 100 * time.Millisecond

// AdvisoryLock is an exclusive cross-process lock on a sidecar lock file.
// It guards writers only; readers go straight to the store document.
type AdvisoryLock struct {
	path string
	file *os.File
}

// NewAdvisoryLock prepares a lock handle under lockDir. The lock file is
// created on first acquisition.
func NewAdvisoryLock(lockDir, name string) (*AdvisoryLock, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, err
	}

	return &AdvisoryLock{
		path: filepath.Join(lockDir, name+".lock"),
	}, nil
}

// Acquire blocks until the lock is held, the timeout elapses, or ctx is
// done. A timeout yields a LockTimeoutError rather than deadlocking.
func (l *AdvisoryLock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Now().After(deadline) {
			return &LockTimeoutError{Path: l.path, Timeout: timeout}
		}

		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
		if err != nil {
			return err
		}

		err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.file = file
			return nil
		}

		file.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Release drops the lock. Safe to call when not held.
func (l *AdvisoryLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return err
	}
	return closeErr
}

// IsHeld reports whether this handle currently holds the lock.
func (l *AdvisoryLock) IsHeld() bool {
	return l.file != nil
}
