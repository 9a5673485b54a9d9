package keystore

import (
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// DayStart returns 00:00 UTC of now's UTC calendar day.
func DayStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EffectiveUsage is the key's usage count for now's UTC day. Usage recorded
// on an earlier day counts as zero.
func EffectiveUsage(k domain.Key, now time.Time) int {
	if k.LastUsedAt == nil || k.LastUsedAt.Before(DayStart(now)) {
		return 0
	}
	return k.UsageCount
}

// ComputeStatus derives the time-aware view of k. It never mutates anything.
//
// DailyUsageRemaining always uses the day-reset usage, including while the
// key cools off, so a cooloff spanning midnight shows the new day's quota.
// A key locked to a campaign reports Locked/locked_to_campaign. Quota
// exhaustion also reports Locked, but with reason daily_quota_exhausted and
// no LockedWithCampaignID.
func ComputeStatus(k domain.Key, info domain.CategoryInfo, now time.Time) domain.StatusView {
	quota := info.MaxUsagePerDay
	usage := EffectiveUsage(k, now)
	view := domain.StatusView{
		OwnerID:             k.OwnerID,
		Category:            k.Category,
		DailyUsageRemaining: max(0, quota-usage),
	}

	if k.IsLockedToCampaign() {
		view.Status = domain.KeyLocked
		view.Reason = domain.ReasonLockedToCampaign
		view.LockedWithCampaignID = k.LockedWithCampaignID
		return view
	}

	if k.Status == domain.KeyCooloff && k.CooloffEndsAt != nil && k.CooloffEndsAt.After(now) {
		remaining := k.CooloffEndsAt.Sub(now)
		ends := *k.CooloffEndsAt
		view.Status = domain.KeyCooloff
		view.Reason = domain.ReasonCooloff
		view.CooloffRemainingMinutes = int((remaining + time.Minute - 1) / time.Minute)
		view.NextAvailableAt = &ends
		return view
	}

	if usage >= quota {
		tomorrow := DayStart(now).Add(24 * time.Hour)
		view.Status = domain.KeyLocked
		view.Reason = domain.ReasonDailyQuotaExhausted
		view.DailyUsageRemaining = 0
		view.NextAvailableAt = &tomorrow
		return view
	}

	view.Status = domain.KeyAvailable
	view.CanUse = true
	return view
}
