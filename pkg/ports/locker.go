package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a run lock.
type UnlockFunc func(ctx context.Context) error

// RunLocker defines the interface for cross-instance run exclusion.
// It allows several harnesses sharing a workspace to honour the single-run invariant.
type RunLocker interface {
	// Lock attempts to acquire the lock for the given key (e.g., the workspace root).
	// It blocks until the lock is acquired or the context is canceled.
	// The lock is held until the returned UnlockFunc is called; implementations
	// may refresh it in the background so that runs longer than ttl keep it.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
