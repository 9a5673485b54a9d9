package worker

import (
	"context"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/distlock"
	"github.com/ignite/keylock/internal/pkg/logger"
)

// =============================================================================
// ORPHAN LOCK REAPER: Frees Keys Whose Participation Is Gone
// =============================================================================
// A key stays Locked until the streamer leaves. If the campaign module ends
// a participation without calling Leave (campaign deleted, crash between
// writes), the key would stay locked forever. This worker scans keys locked
// for longer than staleAge and force-unlocks those whose participation is no
// longer active. Every unlock is logged as an anomaly.

const (
	// DefaultReapInterval is how often the reaper scans.
	DefaultReapInterval = 10 * time.Minute

	// DefaultOrphanAge is how long a key must have been locked before it is
	// checked.
	DefaultOrphanAge = 24 * time.Hour

	reapBatchSize = 200
)

// LockedKeyStore is the key access the reaper needs.
type LockedKeyStore interface {
	LockedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Key, error)
	ForceUnlock(ctx context.Context, ownerID, category, reason string, now time.Time) (bool, error)
}

// ParticipationChecker reports whether a participation is still active.
type ParticipationChecker interface {
	IsActive(ctx context.Context, streamerID, campaignID string) (bool, error)
}

// OrphanLockReaper periodically frees orphaned locks.
type OrphanLockReaper struct {
	keys     LockedKeyStore
	parts    ParticipationChecker
	lock     distlock.DistLock
	interval time.Duration
	staleAge time.Duration
	now      func() time.Time
}

// NewOrphanLockReaper creates a reaper.
func NewOrphanLockReaper(keys LockedKeyStore, parts ParticipationChecker, lock distlock.DistLock, interval, staleAge time.Duration) *OrphanLockReaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultOrphanAge
	}
	return &OrphanLockReaper{
		keys:     keys,
		parts:    parts,
		lock:     lock,
		interval: interval,
		staleAge: staleAge,
		now:      time.Now,
	}
}

// Start runs the reap loop. It blocks until ctx is cancelled.
func (r *OrphanLockReaper) Start(ctx context.Context) {
	logger.Info("orphan lock reaper starting", "interval", r.interval.String(), "stale_age", r.staleAge.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("orphan lock reaper stopping")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce scans once if this replica wins the leader lock and returns the
// number of keys it unlocked.
func (r *OrphanLockReaper) RunOnce(ctx context.Context) int {
	reapCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	var unlocked int
	_, err := distlock.RunExclusive(reapCtx, r.lock, func(ctx context.Context) error {
		n, err := r.reap(ctx)
		unlocked = n
		return err
	})
	if err != nil {
		logger.Error("orphan lock reap failed", "error", err)
	}
	return unlocked
}

func (r *OrphanLockReaper) reap(ctx context.Context) (int, error) {
	now := r.now()
	keys, err := r.keys.LockedBefore(ctx, now.Add(-r.staleAge), reapBatchSize)
	if err != nil {
		return 0, err
	}

	unlocked := 0
	for _, k := range keys {
		active, err := r.parts.IsActive(ctx, k.OwnerID, k.LockedWithCampaignID)
		if err != nil {
			logger.Warn("orphan check failed", "owner_id", k.OwnerID, "category", k.Category, "error", err)
			continue
		}
		if active {
			continue
		}
		ok, err := r.keys.ForceUnlock(ctx, k.OwnerID, k.Category, "orphaned lock: participation "+k.LockedWithCampaignID+" not active", now)
		if err != nil {
			logger.Warn("orphan unlock failed", "owner_id", k.OwnerID, "category", k.Category, "error", err)
			continue
		}
		if ok {
			unlocked++
		}
	}
	if unlocked > 0 {
		logger.Info("orphaned locks freed", "count", unlocked, "scanned", len(keys))
	}
	return unlocked, nil
}
