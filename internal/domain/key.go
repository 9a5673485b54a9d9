package domain

import "time"

// KeyStatus is the stored state of a streamer's category key.
type KeyStatus string

const (
	KeyAvailable KeyStatus = "available"
	KeyLocked    KeyStatus = "locked"
	KeyCooloff   KeyStatus = "cooloff"
)

// Key is the per-(owner, category) lock token. At most one exists per pair and
// it is locked with at most one campaign at a time.
type Key struct {
	OwnerID  string    `json:"owner_id" db:"owner_id"`
	Category string    `json:"category" db:"category"`
	Status   KeyStatus `json:"status" db:"status"`

	LockedWithCampaignID string     `json:"locked_with_campaign_id,omitempty" db:"locked_with_campaign_id"`
	LockedAt             *time.Time `json:"locked_at,omitempty" db:"locked_at"`
	CooloffEndsAt        *time.Time `json:"cooloff_ends_at,omitempty" db:"cooloff_ends_at"`
	LastBrandID          string     `json:"last_brand_id,omitempty" db:"last_brand_id"`

	UsageCount int        `json:"usage_count" db:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewKey returns a fresh Available key with zero usage.
func NewKey(ownerID, category string, now time.Time) Key {
	return Key{
		OwnerID:   ownerID,
		Category:  category,
		Status:    KeyAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsLockedToCampaign reports whether the key is held by a campaign, as opposed
// to being unusable because of cooloff or the daily quota.
func (k *Key) IsLockedToCampaign() bool {
	return k.Status == KeyLocked && k.LockedWithCampaignID != ""
}

// UnavailableReason explains why a computed status view reports canUse=false.
type UnavailableReason string

const (
	ReasonNone                UnavailableReason = ""
	ReasonLockedToCampaign    UnavailableReason = "locked_to_campaign"
	ReasonCooloff             UnavailableReason = "cooloff"
	ReasonDailyQuotaExhausted UnavailableReason = "daily_quota_exhausted"
)

// StatusView is the computed, time-aware view of a key.
type StatusView struct {
	OwnerID                 string            `json:"owner_id"`
	Category                string            `json:"category"`
	Status                  KeyStatus         `json:"status"`
	Reason                  UnavailableReason `json:"reason,omitempty"`
	LockedWithCampaignID    string            `json:"locked_with_campaign_id,omitempty"`
	CooloffRemainingMinutes int               `json:"cooloff_remaining_minutes,omitempty"`
	DailyUsageRemaining     int               `json:"daily_usage_remaining"`
	CanUse                  bool              `json:"can_use"`
	NextAvailableAt         *time.Time        `json:"next_available_at,omitempty"`
}
