package eligibility

import (
	"slices"
	"strings"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// inScope reports whether every non-empty scope axis admits the request.
func inScope(s domain.RuleScope, st domain.Streamer, c domain.Campaign) bool {
	if len(s.UserRoles) > 0 && !slices.Contains(s.UserRoles, st.Role) {
		return false
	}
	if len(s.StreamerIDs) > 0 && !slices.Contains(s.StreamerIDs, st.ID) {
		return false
	}
	if len(s.BrandIDs) > 0 && !slices.Contains(s.BrandIDs, c.BrandID) {
		return false
	}
	if cc := s.CampaignCriteria; cc != nil {
		if cc.MinBudget != nil && c.Budget < *cc.MinBudget {
			return false
		}
		if cc.MaxBudget != nil && c.Budget > *cc.MaxBudget {
			return false
		}
		if len(cc.PaymentTypes) > 0 && !slices.Contains(cc.PaymentTypes, c.PaymentType) {
			return false
		}
		if len(cc.Categories) > 0 && !slices.Contains(cc.Categories, c.Category) {
			return false
		}
	}
	return true
}

// conditionsMet applies the optional schedule and region gates.
func conditionsMet(cond domain.RuleConditions, st domain.Streamer, now time.Time) bool {
	if w := cond.Schedule; w != nil && !inWindow(*w, now.UTC()) {
		return false
	}
	if rf := cond.Regions; rf != nil {
		if containsFold(rf.Deny, st.Region) {
			return false
		}
		if len(rf.Allow) > 0 && !containsFold(rf.Allow, st.Region) {
			return false
		}
	}
	return true
}

func inWindow(w domain.ScheduleWindow, now time.Time) bool {
	if len(w.Days) > 0 && !slices.Contains(w.Days, now.Weekday()) {
		return false
	}
	h := now.Hour()
	switch {
	case w.StartHour == w.EndHour:
		return true
	case w.StartHour < w.EndHour:
		return h >= w.StartHour && h < w.EndHour
	default:
		return h >= w.StartHour || h < w.EndHour
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
