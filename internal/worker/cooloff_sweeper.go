package worker

import (
	"context"
	"time"

	"github.com/ignite/keylock/internal/pkg/distlock"
	"github.com/ignite/keylock/internal/pkg/logger"
)

// =============================================================================
// COOLOFF SWEEPER: Demotes Expired Cooloffs & Expires Stale Violations
// =============================================================================
// Reads already treat an elapsed cooloff as Available, so the sweep is not
// needed for correctness. It keeps stored state tidy for reporting and
// keeps the cooloff index small. Pending violations older than the review
// window are expired on the same tick.
//
// Only one replica sweeps per tick; the others skip when the leader lock is
// held.

const (
	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = time.Minute

	// DefaultViolationMaxAge is how long a violation may stay Pending.
	DefaultViolationMaxAge = 30 * 24 * time.Hour
)

// CooloffExpirer demotes elapsed cooloffs.
type CooloffExpirer interface {
	ExpireCooloffs(ctx context.Context, now time.Time) (int, error)
}

// ViolationExpirer expires stale pending violations.
type ViolationExpirer interface {
	ExpirePending(ctx context.Context, maxAge time.Duration, now time.Time) (int, error)
}

// CooloffSweeper periodically runs the maintenance sweep.
type CooloffSweeper struct {
	keys            CooloffExpirer
	violations      ViolationExpirer
	lock            distlock.DistLock
	interval        time.Duration
	violationMaxAge time.Duration
	now             func() time.Time
}

// NewCooloffSweeper creates a sweeper. violations may be nil.
func NewCooloffSweeper(keys CooloffExpirer, violations ViolationExpirer, lock distlock.DistLock, interval, violationMaxAge time.Duration) *CooloffSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if violationMaxAge <= 0 {
		violationMaxAge = DefaultViolationMaxAge
	}
	return &CooloffSweeper{
		keys:            keys,
		violations:      violations,
		lock:            lock,
		interval:        interval,
		violationMaxAge: violationMaxAge,
		now:             time.Now,
	}
}

// Start runs the sweep loop. It blocks until ctx is cancelled.
func (s *CooloffSweeper) Start(ctx context.Context) {
	logger.Info("cooloff sweeper starting", "interval", s.interval.String(), "violation_max_age", s.violationMaxAge.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cooloff sweeper stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if this replica wins the leader lock. It
// reports whether the sweep ran.
func (s *CooloffSweeper) RunOnce(ctx context.Context) bool {
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	ran, err := distlock.RunExclusive(sweepCtx, s.lock, s.sweep)
	if err != nil {
		logger.Error("cooloff sweep failed", "error", err)
	}
	return ran
}

func (s *CooloffSweeper) sweep(ctx context.Context) error {
	now := s.now()

	n, err := s.keys.ExpireCooloffs(ctx, now)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("cooloffs expired", "count", n)
	}

	if s.violations == nil {
		return nil
	}
	m, err := s.violations.ExpirePending(ctx, s.violationMaxAge, now)
	if err != nil {
		return err
	}
	if m > 0 {
		logger.Info("pending violations expired", "count", m)
	}
	return nil
}
