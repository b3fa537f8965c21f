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

// DefaultTimeout bounds how long a run waits for another run to finish.
const DefaultTimeout = 10 * time.Second

const retryDelay = 100 * time.Millisecond

// ErrLocked means another run holds the lock.
var ErrLocked = errors.New("store is currently locked")

// Lock is an exclusive advisory file lock.
type Lock struct {
	file *flock.Flock
}

// Acquire takes the lock at path, waiting at most timeout.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	file := flock.New(path)
	locked, err := file.TryLockContext(ctx, retryDelay)
	if locked {
		return &Lock{file: file}, nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
