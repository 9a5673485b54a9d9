package eligibility

import (
	"fmt"
	"slices"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// conflict is what a rule check found. A nil *conflict means no match.
type conflict struct {
	campaigns  []string
	categories []string
	brands     []string
	message    string
}

func (c *conflict) add(p domain.ActiveParticipation) {
	c.campaigns = appendUnique(c.campaigns, p.CampaignID)
	c.categories = appendUnique(c.categories, p.Category)
	c.brands = appendUnique(c.brands, p.BrandID)
}

func appendUnique(list []string, s string) []string {
	if s == "" || slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

// others returns the participations that occupy a slot, excluding the
// candidate campaign itself.
func others(parts []domain.ActiveParticipation, campaignID string) []domain.ActiveParticipation {
	var out []domain.ActiveParticipation
	for _, p := range parts {
		if p.IsActive() && p.CampaignID != campaignID {
			out = append(out, p)
		}
	}
	return out
}

// excludes reports whether a and b fall on opposite sides of a list/excluded
// pair, in either direction.
func excludes(list, excluded []string, a, b string) bool {
	return (slices.Contains(list, a) && slices.Contains(excluded, b)) ||
		(slices.Contains(excluded, a) && slices.Contains(list, b))
}

func checkCategoryExclusivity(cfg domain.CategoryExclusivityConfig, c domain.Campaign, parts []domain.ActiveParticipation) *conflict {
	var found *conflict
	for _, p := range others(parts, c.ID) {
		var hit bool
		if len(cfg.ExcludedCategories) > 0 {
			hit = excludes(cfg.Categories, cfg.ExcludedCategories, c.Category, p.Category)
		} else {
			hit = p.Category != c.Category &&
				slices.Contains(cfg.Categories, c.Category) && slices.Contains(cfg.Categories, p.Category)
		}
		if hit {
			if found == nil {
				found = &conflict{}
			}
			found.add(p)
		}
	}
	if found != nil {
		found.message = fmt.Sprintf("Category %q cannot be combined with your active %v campaign(s)",
			c.Category, found.categories)
	}
	return found
}

func checkBrandExclusivity(cfg domain.BrandExclusivityConfig, c domain.Campaign, parts []domain.ActiveParticipation) *conflict {
	var found *conflict
	for _, p := range others(parts, c.ID) {
		var hit bool
		if len(cfg.ExcludedBrands) > 0 {
			hit = excludes(cfg.Brands, cfg.ExcludedBrands, c.BrandID, p.BrandID)
		} else {
			hit = p.BrandID == c.BrandID && (len(cfg.Brands) == 0 || slices.Contains(cfg.Brands, c.BrandID))
		}
		if hit {
			if found == nil {
				found = &conflict{}
			}
			found.add(p)
		}
	}
	if found == nil {
		return nil
	}
	if len(cfg.ExcludedBrands) > 0 {
		found.message = fmt.Sprintf("Brand %s is exclusive with brand(s) %v you are already promoting",
			c.BrandID, found.brands)
	} else {
		found.message = fmt.Sprintf("You already have an active campaign with brand %s", c.BrandID)
	}
	return found
}

func checkCooldown(cfg domain.CooldownConfig, c domain.Campaign, parts []domain.ActiveParticipation, now time.Time) *conflict {
	if len(cfg.Categories) > 0 && !slices.Contains(cfg.Categories, c.Category) {
		return nil
	}
	if len(cfg.Brands) > 0 && !slices.Contains(cfg.Brands, c.BrandID) {
		return nil
	}

	mode := cfg.MatchMode()
	var (
		latest   time.Time
		matched  bool
		previous domain.ActiveParticipation
	)
	for _, p := range parts {
		ended, ok := p.EndedAt()
		if !ok {
			continue
		}
		switch mode {
		case domain.CooldownSameCategory:
			ok = p.Category == c.Category
		case domain.CooldownSameBrand:
			ok = p.BrandID == c.BrandID
		case domain.CooldownSameCategoryAndBrand:
			ok = p.Category == c.Category && p.BrandID == c.BrandID
		}
		if !ok {
			continue
		}
		if !matched || ended.After(latest) || (ended.Equal(latest) && p.CampaignID < previous.CampaignID) {
			latest, previous, matched = ended, p, true
		}
	}
	if !matched {
		return nil
	}

	ends := latest.Add(cfg.Period())
	if !ends.After(now) {
		return nil
	}
	found := &conflict{}
	found.add(previous)
	found.message = fmt.Sprintf("Cooldown active after campaign %s; eligible again at %s",
		previous.CampaignID, ends.UTC().Format(time.RFC3339))
	return found
}

func checkSimultaneousLimit(cfg domain.SimultaneousLimitConfig, c domain.Campaign, parts []domain.ActiveParticipation) *conflict {
	active := others(parts, c.ID)

	if cfg.MaxSimultaneousCampaigns > 0 && len(active) >= cfg.MaxSimultaneousCampaigns {
		found := &conflict{}
		for _, p := range active {
			found.add(p)
		}
		found.message = fmt.Sprintf("You are in %d active campaigns; the limit is %d",
			len(active), cfg.MaxSimultaneousCampaigns)
		return found
	}

	if cfg.MaxCampaignsPerCategory > 0 {
		found := &conflict{}
		n := 0
		for _, p := range active {
			if p.Category == c.Category {
				found.add(p)
				n++
			}
		}
		if n >= cfg.MaxCampaignsPerCategory {
			found.message = fmt.Sprintf("You are in %d active %s campaigns; the limit is %d",
				n, c.Category, cfg.MaxCampaignsPerCategory)
			return found
		}
	}
	return nil
}
