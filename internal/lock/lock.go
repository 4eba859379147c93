// Package lock provides an in-process named mutex.  It serializes access to
// shared resources that have no transactional protection of their own
// (files, per-user pruning).  It does not coordinate between processes;
// running several instances needs an external lock instead.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a resource could not be acquired before
// the timeout elapsed.
var ErrLockTimeout = errors.New("lock: acquire timeout")

// DefaultPollInterval is how often a waiting Acquire re-checks the table.
const DefaultPollInterval = 10 * time.Millisecond

// Manager holds the table of currently held resource ids.  It is created
// at service start and lives until shutdown.
type Manager struct {
	mu   sync.Mutex
	held map[string]struct{}
	poll time.Duration
}

// NewManager returns an empty Manager.  A non-positive poll falls back to
// DefaultPollInterval.
func NewManager(poll time.Duration) *Manager {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Manager{held: make(map[string]struct{}), poll: poll}
}

func (m *Manager) tryAcquire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[id]; busy {
		return false
	}
	m.held[id] = struct{}{}
	return true
}

// Acquire polls until id is free or timeout elapses.  Cancellation of ctx
// also stops the wait and is reported as the context error.
func (m *Manager) Acquire(ctx context.Context, id string, timeout time.Duration) error {
	if m.tryAcquire(id) {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.poll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// one last look so a release racing the deadline is not lost
			if m.tryAcquire(id) {
				return nil
			}
			return fmt.Errorf("%w: %s after %s", ErrLockTimeout, id, timeout)
		case <-tick.C:
			if m.tryAcquire(id) {
				return nil
			}
		}
	}
}

// Release frees id.  Releasing a resource that is not held is a no-op.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	delete(m.held, id)
	m.mu.Unlock()
}

// Held reports whether id is currently acquired.
func (m *Manager) Held(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[id]
	return ok
}

// WithLock acquires id, runs fn and releases id on every exit path,
// including a panic inside fn.
func (m *Manager) WithLock(ctx context.Context, id string, timeout time.Duration, fn func() error) error {
	if err := m.Acquire(ctx, id, timeout); err != nil {
		return err
	}
	defer m.Release(id)
	return fn()
}
