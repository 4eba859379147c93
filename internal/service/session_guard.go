package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qjdesk/complaint-desk/internal/lock"
)

// SessionGuard keeps at most Cap live refresh credentials per user.
// Pruning for one user is serialized through the Lock Manager so a login
// and an authenticated request finishing together do not both compute
// the excess from the same snapshot.
type SessionGuard struct {
	store       SessionStore
	locks       *lock.Manager
	cap         int
	lockTimeout time.Duration
	log         *slog.Logger
}

func NewSessionGuard(store SessionStore, locks *lock.Manager, cap int, lockTimeout time.Duration, log *slog.Logger) *SessionGuard {
	if cap < 1 {
		cap = 1
	}
	return &SessionGuard{store: store, locks: locks, cap: cap, lockTimeout: lockTimeout, log: log}
}

// Cap returns the configured session limit.
func (g *SessionGuard) Cap() int { return g.cap }

// WithSessions runs fn while holding userID's session lock.  Pruning,
// refresh rotation and logout of one user never interleave.  fn must not
// call Enforce.  A nil guard runs fn unlocked.
func (g *SessionGuard) WithSessions(ctx context.Context, userID uint64, fn func() error) error {
	if g == nil {
		return fn()
	}
	return g.locks.WithLock(ctx, fmt.Sprintf("session:%d", userID), g.lockTimeout, fn)
}

// Enforce revokes the oldest live credentials of userID beyond the cap
// and returns how many were revoked.
func (g *SessionGuard) Enforce(ctx context.Context, userID uint64) (int64, error) {
	var revoked int64
	err := g.WithSessions(ctx, userID, func() error {
		live, err := g.store.ListLive(ctx, userID)
		if err != nil {
			return fmt.Errorf("list live sessions: %w", err)
		}
		if len(live) <= g.cap {
			return nil
		}
		// newest first, so everything after the cap is the excess
		ids := make([]uint64, 0, len(live)-g.cap)
		for _, c := range live[g.cap:] {
			ids = append(ids, c.ID)
		}
		revoked, err = g.store.RevokeIDs(ctx, userID, ids)
		if err != nil {
			return fmt.Errorf("revoke excess sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if revoked > 0 {
		g.log.Info("session cap enforced", "event", "sessions.evicted", "user_id", userID, "revoked", revoked, "cap", g.cap)
	}
	return revoked, nil
}
