package keystore

import (
	"testing"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/stretchr/testify/assert"
)

var gaming = domain.CategoryInfo{Category: "gaming", MaxUsagePerDay: 2, DefaultCooloffHours: 360}

func ptr(t time.Time) *time.Time { return &t }

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2026, 5, 2, 3, 0, 0, 0, loc) // 2026-05-01 18:00 UTC
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), DayStart(now))
}

func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	earlierToday := now.Add(-2 * time.Hour)

	tests := []struct {
		name          string
		key           domain.Key
		wantStatus    domain.KeyStatus
		wantReason    domain.UnavailableReason
		wantCanUse    bool
		wantRemaining int
		wantNext      *time.Time
		wantMinutes   int
	}{
		{
			name:          "fresh key",
			key:           domain.NewKey("s1", "gaming", now),
			wantStatus:    domain.KeyAvailable,
			wantCanUse:    true,
			wantRemaining: 2,
		},
		{
			name:          "used once today",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyAvailable, UsageCount: 1, LastUsedAt: &earlierToday},
			wantStatus:    domain.KeyAvailable,
			wantCanUse:    true,
			wantRemaining: 1,
		},
		{
			name:          "quota exhausted today",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyAvailable, UsageCount: 2, LastUsedAt: &earlierToday},
			wantStatus:    domain.KeyLocked,
			wantReason:    domain.ReasonDailyQuotaExhausted,
			wantRemaining: 0,
			wantNext:      ptr(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:          "quota exhausted yesterday resets",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyAvailable, UsageCount: 2, LastUsedAt: &yesterday},
			wantStatus:    domain.KeyAvailable,
			wantCanUse:    true,
			wantRemaining: 2,
		},
		{
			name:          "cooling off",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyCooloff, CooloffEndsAt: ptr(now.Add(90*time.Second + time.Nanosecond)), UsageCount: 1, LastUsedAt: &earlierToday},
			wantStatus:    domain.KeyCooloff,
			wantReason:    domain.ReasonCooloff,
			wantRemaining: 1,
			wantNext:      ptr(now.Add(90*time.Second + time.Nanosecond)),
			wantMinutes:   2,
		},
		{
			name:          "cooling off across midnight reports today's usage",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyCooloff, CooloffEndsAt: ptr(now.Add(time.Hour)), UsageCount: 2, LastUsedAt: &yesterday},
			wantStatus:    domain.KeyCooloff,
			wantReason:    domain.ReasonCooloff,
			wantRemaining: 2,
			wantNext:      ptr(now.Add(time.Hour)),
			wantMinutes:   60,
		},
		{
			name:          "cooloff elapsed",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyCooloff, CooloffEndsAt: ptr(now), UsageCount: 1, LastUsedAt: &earlierToday},
			wantStatus:    domain.KeyAvailable,
			wantCanUse:    true,
			wantRemaining: 1,
		},
		{
			name:          "locked to campaign",
			key:           domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyLocked, LockedWithCampaignID: "c1", LockedAt: &earlierToday, UsageCount: 1, LastUsedAt: &earlierToday},
			wantStatus:    domain.KeyLocked,
			wantReason:    domain.ReasonLockedToCampaign,
			wantRemaining: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := ComputeStatus(tc.key, gaming, now)
			assert.Equal(t, tc.wantStatus, v.Status)
			assert.Equal(t, tc.wantReason, v.Reason)
			assert.Equal(t, tc.wantCanUse, v.CanUse)
			assert.Equal(t, tc.wantRemaining, v.DailyUsageRemaining)
			assert.Equal(t, tc.wantNext, v.NextAvailableAt)
			assert.Equal(t, tc.wantMinutes, v.CooloffRemainingMinutes)
		})
	}
}

func TestComputeStatus_DoesNotMutate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ends := now.Add(time.Hour)
	k := domain.Key{OwnerID: "s1", Category: "gaming", Status: domain.KeyCooloff, CooloffEndsAt: &ends}
	before := k

	ComputeStatus(k, gaming, now.Add(2*time.Hour))
	assert.Equal(t, before, k)
}
