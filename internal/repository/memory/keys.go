// Package memory provides mutex-guarded in-process repositories. They give
// the same conditional-write guarantees as the shared stores within a single
// process and back local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/keystore"
)

type keyID struct{ owner, category string }

// KeyRepo implements keystore.Repository in memory.
type KeyRepo struct {
	mu   sync.Mutex
	keys map[keyID]*domain.Key
}

// NewKeyRepo creates an empty in-memory key repository.
func NewKeyRepo() *KeyRepo {
	return &KeyRepo{keys: make(map[keyID]*domain.Key)}
}

func (r *KeyRepo) Get(_ context.Context, ownerID, category string) (*domain.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[keyID{ownerID, category}]
	if !ok {
		return nil, keystore.ErrNotFound
	}
	return cloneKey(k), nil
}

func (r *KeyRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Key
	for id, k := range r.keys {
		if id.owner == ownerID {
			out = append(out, *cloneKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (r *KeyRepo) Insert(_ context.Context, k *domain.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := keyID{k.OwnerID, k.Category}
	if _, exists := r.keys[id]; exists {
		return keystore.ErrAlreadyExists
	}
	r.keys[id] = cloneKey(k)
	return nil
}

func (r *KeyRepo) ConditionalUpdate(_ context.Context, u keystore.Update) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[keyID{u.OwnerID, u.Category}]
	if !ok {
		return false, nil
	}
	return Apply(k, u), nil
}

func (r *KeyRepo) ExpireCooloffs(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.keys {
		if k.Status == domain.KeyCooloff && k.CooloffEndsAt != nil && !k.CooloffEndsAt.After(now) {
			k.Status = domain.KeyAvailable
			k.CooloffEndsAt = nil
			k.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *KeyRepo) ListLockedBefore(_ context.Context, before time.Time, limit int) ([]domain.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Key
	for _, k := range r.keys {
		if k.Status == domain.KeyLocked && k.LockedAt != nil && k.LockedAt.Before(before) {
			out = append(out, *cloneKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockedAt.Before(*out[j].LockedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Apply evaluates u's predicate against k and, if it holds, mutates k.
// It is the reference semantics every key backend must match.
func Apply(k *domain.Key, u keystore.Update) bool {
	switch u.Kind {
	case keystore.UpdateLock:
		usable := k.Status == domain.KeyAvailable ||
			(k.Status == domain.KeyCooloff && k.CooloffEndsAt != nil && !k.CooloffEndsAt.After(u.Now))
		newDay := k.LastUsedAt == nil || k.LastUsedAt.Before(u.DayStart)
		if !usable || (!newDay && k.UsageCount >= u.Quota) {
			return false
		}
		if newDay {
			k.UsageCount = 1
		} else {
			k.UsageCount++
		}
		now := u.Now
		k.Status = domain.KeyLocked
		k.LockedWithCampaignID = u.CampaignID
		k.LockedAt = &now
		k.CooloffEndsAt = nil
		k.LastUsedAt = &now
		k.LastBrandID = u.BrandID

	case keystore.UpdateRelease:
		if k.Status != domain.KeyLocked || (u.CampaignID != "" && k.LockedWithCampaignID != u.CampaignID) {
			return false
		}
		k.LockedWithCampaignID = ""
		k.LockedAt = nil
		if u.CooloffEndsAt != nil {
			ends := *u.CooloffEndsAt
			k.Status = domain.KeyCooloff
			k.CooloffEndsAt = &ends
		} else {
			k.Status = domain.KeyAvailable
			k.CooloffEndsAt = nil
		}

	case keystore.UpdateRollback:
		if k.Status != domain.KeyLocked || k.LockedWithCampaignID != u.CampaignID {
			return false
		}
		k.Status = domain.KeyAvailable
		k.LockedWithCampaignID = ""
		k.LockedAt = nil
		if k.UsageCount > 0 {
			k.UsageCount--
		}

	case keystore.UpdateForceUnlock:
		if k.Status == domain.KeyAvailable {
			return false
		}
		k.Status = domain.KeyAvailable
		k.LockedWithCampaignID = ""
		k.LockedAt = nil
		k.CooloffEndsAt = nil

	default:
		return false
	}
	k.UpdatedAt = u.Now
	return true
}

func cloneKey(k *domain.Key) *domain.Key {
	cp := *k
	if k.LockedAt != nil {
		t := *k.LockedAt
		cp.LockedAt = &t
	}
	if k.CooloffEndsAt != nil {
		t := *k.CooloffEndsAt
		cp.CooloffEndsAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}
