package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout is the default timeout for acquiring a file lock.
const DefaultLockTimeout = 5 * time.Second

// AcquireLock takes an exclusive lock on path.lock and returns a release
// function. Used for process-lifetime locks such as the plan-root lock that
// enforces a single active session per process.
func AcquireLock(path string, timeout time.Duration) (func() error, error) {
	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock on %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("timed out acquiring lock on %s", lockPath)
	}
	return fileLock.Unlock, nil
}
