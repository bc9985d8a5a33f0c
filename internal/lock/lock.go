// Package lock keeps two dotenvenc processes from rewriting the same files
// at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrBusy means another process holds the lock.
var ErrBusy = errors.New("another encrypt/decrypt is already running")

const pollInterval = 50 * time.Millisecond

type Lock struct {
	file *flock.Flock
}

// DefaultPath is used when no lock file is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "dotenvenc.lock")
}

// Acquire takes the lock or fails at once with ErrBusy.
func Acquire(path string) (*Lock, error) {
	return AcquireWait(context.Background(), path, 0)
}

// AcquireWait polls for the lock for up to wait, or until ctx ends. A
// non-positive wait behaves like Acquire.
func AcquireWait(ctx context.Context, path string, wait time.Duration) (*Lock, error) {
	if path == "" {
		path = DefaultPath()
	}
	fl := flock.New(path)

	var ok bool
	var err error
	if wait <= 0 {
		ok, err = fl.TryLock()
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(waitCtx, pollInterval)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock: %s)", ErrBusy, path)
	}
	return &Lock{file: fl}, nil
}

// Release frees the lock. It is safe on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
