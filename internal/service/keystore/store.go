package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/ignite/keylock/internal/service/catalog"
)

// Store is the KeyStore: lazy key creation, status views and the atomic
// Lock/Release/ForceUnlock transitions. Safe for concurrent use if the
// repository is.
type Store struct {
	repo       Repository
	categories *catalog.CategoryCatalog
}

// NewStore creates a key store over repo, resolving quotas from categories.
func NewStore(repo Repository, categories *catalog.CategoryCatalog) *Store {
	return &Store{repo: repo, categories: categories}
}

// GetOrCreate returns the key for (ownerID, category), creating an Available
// key with zero usage on first reference.
func (s *Store) GetOrCreate(ctx context.Context, ownerID, category string, now time.Time) (*domain.Key, error) {
	if _, err := s.categories.MustGet(category); err != nil {
		return nil, err
	}

	k, err := s.repo.Get(ctx, ownerID, category)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: get key: %w", ErrPersistence, err)
	}

	fresh := domain.NewKey(ownerID, category, now)
	err = s.repo.Insert(ctx, &fresh)
	switch {
	case err == nil:
		return &fresh, nil
	case errors.Is(err, ErrAlreadyExists):
		// Lost the creation race; the winner's row is authoritative.
		k, err = s.repo.Get(ctx, ownerID, category)
		if err != nil {
			return nil, fmt.Errorf("%w: reload key: %w", ErrPersistence, err)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: insert key: %w", ErrPersistence, err)
	}
}

// Status returns the computed view of one key without creating it.
func (s *Store) Status(ctx context.Context, ownerID, category string, now time.Time) (domain.StatusView, error) {
	info, err := s.categories.MustGet(category)
	if err != nil {
		return domain.StatusView{}, err
	}
	k, err := s.repo.Get(ctx, ownerID, category)
	if errors.Is(err, ErrNotFound) {
		fresh := domain.NewKey(ownerID, category, now)
		k, err = &fresh, nil
	}
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("%w: get key: %w", ErrPersistence, err)
	}
	return ComputeStatus(*k, info, now), nil
}

// StatusesForOwner returns a view for every configured category. Categories
// the streamer never used are reported as fresh Available keys; nothing is
// created.
func (s *Store) StatusesForOwner(ctx context.Context, ownerID string, now time.Time) ([]domain.StatusView, error) {
	keys, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %w", ErrPersistence, err)
	}
	byCategory := make(map[string]domain.Key, len(keys))
	for _, k := range keys {
		byCategory[k.Category] = k
	}

	names := s.categories.Names()
	views := make([]domain.StatusView, 0, len(names))
	for _, name := range names {
		info, _ := s.categories.Get(name)
		k, ok := byCategory[name]
		if !ok {
			k = domain.NewKey(ownerID, name, now)
		}
		views = append(views, ComputeStatus(k, info, now))
	}
	return views, nil
}

// Keys returns the stored keys of one streamer.
func (s *Store) Keys(ctx context.Context, ownerID string) ([]domain.Key, error) {
	keys, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %w", ErrPersistence, err)
	}
	return keys, nil
}

// TryLock atomically moves the key from usable to Locked with campaignID.
// ok=false means the key was locked, cooling off, out of quota, or another
// join won the race; nothing was written in that case.
func (s *Store) TryLock(ctx context.Context, ownerID, category, campaignID, brandID string, now time.Time) (bool, error) {
	info, err := s.categories.MustGet(category)
	if err != nil {
		return false, err
	}
	if _, err := s.GetOrCreate(ctx, ownerID, category, now); err != nil {
		return false, err
	}

	ok, err := s.repo.ConditionalUpdate(ctx, Update{
		Kind:       UpdateLock,
		OwnerID:    ownerID,
		Category:   category,
		CampaignID: campaignID,
		BrandID:    brandID,
		Now:        now,
		DayStart:   DayStart(now),
		Quota:      info.MaxUsagePerDay,
	})
	if err != nil {
		return false, fmt.Errorf("%w: lock key: %w", ErrPersistence, err)
	}
	return ok, nil
}

// Release moves a Locked key into cooloff for cooloffHours. It is a no-op
// (released=false) if the key is not Locked.
func (s *Store) Release(ctx context.Context, ownerID, category string, cooloffHours int, now time.Time) (bool, error) {
	return s.ReleaseFor(ctx, ownerID, category, "", cooloffHours, now)
}

// ReleaseFor is Release guarded by the locking campaign: a key locked with a
// different campaign is left alone. An empty campaignID releases any lock.
func (s *Store) ReleaseFor(ctx context.Context, ownerID, category, campaignID string, cooloffHours int, now time.Time) (bool, error) {
	u := Update{
		Kind:       UpdateRelease,
		OwnerID:    ownerID,
		Category:   category,
		CampaignID: campaignID,
		Now:        now,
	}
	if cooloffHours > 0 {
		ends := now.Add(time.Duration(cooloffHours) * time.Hour)
		u.CooloffEndsAt = &ends
	}
	ok, err := s.repo.ConditionalUpdate(ctx, u)
	if err != nil {
		return false, fmt.Errorf("%w: release key: %w", ErrPersistence, err)
	}
	return ok, nil
}

// Rollback undoes a TryLock whose follow-up write failed: the key goes back
// to Available without cooloff and the consumed usage unit is refunded.
func (s *Store) Rollback(ctx context.Context, ownerID, category, campaignID string, now time.Time) (bool, error) {
	ok, err := s.repo.ConditionalUpdate(ctx, Update{
		Kind:       UpdateRollback,
		OwnerID:    ownerID,
		Category:   category,
		CampaignID: campaignID,
		Now:        now,
	})
	if err != nil {
		return false, fmt.Errorf("%w: rollback key: %w", ErrPersistence, err)
	}
	return ok, nil
}

// ForceUnlock returns a Locked or Cooloff key straight to Available. It is the
// administrative escape hatch for orphaned locks and is always logged as an
// anomaly.
func (s *Store) ForceUnlock(ctx context.Context, ownerID, category, reason string, now time.Time) (bool, error) {
	prev, err := s.repo.Get(ctx, ownerID, category)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Warn("force unlock could not read previous key state",
			"owner_id", ownerID, "category", category, "error", err)
	}

	ok, err := s.repo.ConditionalUpdate(ctx, Update{
		Kind:     UpdateForceUnlock,
		OwnerID:  ownerID,
		Category: category,
		Now:      now,
	})
	if err != nil {
		return false, fmt.Errorf("%w: force unlock: %w", ErrPersistence, err)
	}

	fields := []interface{}{"owner_id", ownerID, "category", category, "reason", reason, "unlocked", ok}
	if prev != nil {
		fields = append(fields, "previous_status", prev.Status, "locked_with_campaign_id", prev.LockedWithCampaignID)
	}
	logger.Anomaly("force_unlock", "key force-unlocked", fields...)
	return ok, nil
}

// ExpireCooloffs demotes elapsed cooloffs to Available.
func (s *Store) ExpireCooloffs(ctx context.Context, now time.Time) (int, error) {
	n, err := s.repo.ExpireCooloffs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: expire cooloffs: %w", ErrPersistence, err)
	}
	return n, nil
}

// LockedBefore lists keys that have been Locked since before the given time.
func (s *Store) LockedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Key, error) {
	keys, err := s.repo.ListLockedBefore(ctx, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list locked keys: %w", ErrPersistence, err)
	}
	return keys, nil
}
