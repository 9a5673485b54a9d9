// Package distlock elects a single runner for periodic maintenance jobs
// (cooloff sweeps, orphan lock reaping) across engine instances.
//
// It is not used for key locking: TryLock relies on the key store's
// conditional write, which stays correct even when this lock is lost.
package distlock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a distributed lock using the best available backend.
// If redisClient is non-nil, uses Redis. Otherwise falls back to PostgreSQL
// advisory locks.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// RunExclusive runs fn only if lock can be acquired, releasing it afterwards.
// ran is false when another instance holds the lock.
func RunExclusive(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		// Release even when ctx is already cancelled.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := lock.Release(relCtx); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return true, fn(ctx)
}

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
// pg_try_advisory_lock is session-scoped, so Acquire pins one pooled
// connection and Release unlocks on that same connection before returning
// it. The lock disappears with the connection if the process dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking. On success
// the connection stays checked out until Release.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("advisory lock already held by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the pinned connection and returns it to the pool. It is
// a no-op if the lock is not held.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	conn := l.conn
	if conn == nil {
		return nil
	}
	l.conn = nil

	var released bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released)
	if err != nil {
		// Discard the session so the server drops the lock with it.
		conn.Raw(func(any) error { return driver.ErrBadConn })
		conn.Close()
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !released {
		logger.Warn("advisory lock was not held at release", "lock_id", l.lockID)
	}
	return conn.Close()
}
