package keystore

import (
	"context"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// UpdateKind selects the conditional transition applied by ConditionalUpdate.
type UpdateKind int

const (
	// UpdateLock: Available (or Cooloff with cooloff_ends_at <= Now) and daily
	// quota not exhausted → Locked with CampaignID. usage_count restarts at 1
	// when last_used_at < DayStart, otherwise increments.
	UpdateLock UpdateKind = iota + 1
	// UpdateRelease: Locked (with CampaignID, if set) → Cooloff until
	// CooloffEndsAt, or straight to Available when CooloffEndsAt is nil.
	UpdateRelease
	// UpdateRollback: Locked with CampaignID → Available, refunding one unit
	// of usage_count.
	UpdateRollback
	// UpdateForceUnlock: Locked or Cooloff → Available.
	UpdateForceUnlock
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateLock:
		return "lock"
	case UpdateRelease:
		return "release"
	case UpdateRollback:
		return "rollback"
	case UpdateForceUnlock:
		return "force_unlock"
	}
	return "unknown"
}

// Update describes one conditional transition of the key (OwnerID, Category).
// Fields not used by Kind are ignored.
type Update struct {
	Kind          UpdateKind
	OwnerID       string
	Category      string
	CampaignID    string
	BrandID       string
	Now           time.Time
	DayStart      time.Time
	Quota         int
	CooloffEndsAt *time.Time
}

// Repository defines the data access contract for keys. The identity of a key
// is always the composite (ownerID, category); implementations must apply
// ConditionalUpdate as one atomic compare-and-set against that identity.
type Repository interface {
	// Get returns a key. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, ownerID, category string) (*domain.Key, error)

	// ListByOwner returns all keys of one streamer, ordered by category.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Key, error)

	// Insert creates a key. Returns ErrAlreadyExists if one exists.
	Insert(ctx context.Context, k *domain.Key) error

	// ConditionalUpdate applies u if the key's current state satisfies the
	// transition's predicate. ok=false means the predicate failed and nothing
	// was written.
	ConditionalUpdate(ctx context.Context, u Update) (ok bool, err error)

	// ExpireCooloffs demotes every Cooloff key whose cooloff_ends_at <= now
	// to Available and returns how many were changed.
	ExpireCooloffs(ctx context.Context, now time.Time) (int, error)

	// ListLockedBefore returns up to limit keys Locked since before the
	// given time, oldest first.
	ListLockedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Key, error)
}
