// Package guard provides per-key mutual exclusion for long-running
// background jobs (reindex runs, exports). Locks are advisory and
// in-process only: a second process can still run a conflicting job.
package guard

import "sync"

// Guard deduplicates long-running tasks by key. Locks are created
// lazily on first use and live for the lifetime of the guard.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty task guard.
func New() *Guard {
	return &Guard{locks: make(map[string]*sync.Mutex)}
}

// Acquire attempts to take the lock for key. It returns true if the
// caller now holds the lock, false if the task is already running.
// It never blocks.
func (g *Guard) Acquire(key string) bool {
	g.mu.Lock()
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	g.mu.Unlock()

	return lock.TryLock()
}

// Release frees the lock for key after the task finishes. Releasing a
// key that is not held is a no-op.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	lock, ok := g.locks[key]
	g.mu.Unlock()
	if !ok {
		return
	}

	// An unheld mutex must not be unlocked. TryLock tells the two
	// cases apart: success means the key was free, so put it back
	// and return; failure means the task lock is held and Unlock
	// releases it.
	if lock.TryLock() {
		lock.Unlock()
		return
	}
	lock.Unlock()
}
