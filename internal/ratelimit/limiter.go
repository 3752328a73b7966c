// Package ratelimit implements the per-user cooldown gate. The last accepted
// request timestamp is persisted through the database store so the gate
// survives restarts.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mirbot/mirbot/internal/database"
)

// Limiter enforces a minimum real-time interval between accepted requests
// from the same user. The check-then-set sequence is made atomic per user by
// an in-process mutex keyed on the user id; different users never block each
// other.
type Limiter struct {
	store    database.Store
	cooldown time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLimiter creates a cooldown gate backed by the given store.
func NewLimiter(store database.Store, cooldown time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Limiter{
		store:    store,
		cooldown: cooldown,
		logger:   logger.With("component", "ratelimit"),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// Allow reports whether a request from userID at time now passes the cooldown
// gate. When it passes, now is atomically recorded as the user's new
// last-request timestamp; when it does not, nothing is mutated. Two calls for
// the same user racing inside the cooldown window admit at most one.
func (l *Limiter) Allow(ctx context.Context, userID int64, now time.Time) (bool, error) {
	if userID == 0 {
		return false, fmt.Errorf("user_id cannot be zero")
	}

	userLock := l.userLock(userID)
	userLock.Lock()
	defer userLock.Unlock()

	last, err := l.store.LastRequestAt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to read last request time: %w", err)
	}

	if !last.IsZero() && now.Sub(last) < l.cooldown {
		l.logger.DebugContext(ctx, "Request rejected by cooldown gate",
			"user_id", userID, "since_last", now.Sub(last), "cooldown", l.cooldown)
		return false, nil
	}

	if err := l.store.SetLastRequest(ctx, userID, now); err != nil {
		return false, fmt.Errorf("failed to record request time: %w", err)
	}

	l.logger.DebugContext(ctx, "Request passed cooldown gate", "user_id", userID)
	return true, nil
}

// userLock returns the mutex for userID, creating it on first use. Lock
// entries are never removed; the map grows with the number of distinct users
// seen by this process, which is bounded in practice.
func (l *Limiter) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}
