// Package lock enforces a single running consolidator per state directory.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const retryInterval = 100 * time.Millisecond

// ErrHeld reports that another instance holds the lock.
var ErrHeld = errors.New("another clipmerge instance is already running")

// Lock is an advisory file lock.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the lock at path, retrying until timeout elapses.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	fl := flock.New(path)
	if timeout <= 0 {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", path, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w (lock %s)", ErrHeld, path)
		}
		return &Lock{path: path, fl: fl}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ok, err := fl.TryLockContext(lockCtx, retryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w (lock %s, waited %s)", ErrHeld, path, timeout)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrHeld, path)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
