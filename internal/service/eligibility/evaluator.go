package eligibility

import (
	"fmt"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/catalog"
	"github.com/ignite/keylock/internal/service/keystore"
)

// Evaluator produces join decisions. It holds no state besides a parsed
// template cache and is safe for concurrent use.
type Evaluator struct {
	messages *messageRenderer
}

// NewEvaluator creates an evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{messages: newMessageRenderer()}
}

// Evaluate decides whether jc.Streamer may join jc.Campaign. Identical inputs
// always yield identical decisions.
func (e *Evaluator) Evaluate(jc JoinContext) Decision {
	status := keystore.ComputeStatus(e.keyFor(jc), jc.Category, jc.Now)
	if !status.CanUse {
		return Decision{
			Allowed:         false,
			Blocking:        true,
			Reason:          ReasonKeyUnavailable,
			KeyStatus:       &status,
			NextAvailableAt: status.NextAvailableAt,
		}
	}

	d := Decision{KeyStatus: &status}
	for _, rule := range e.orderedRules(jc.Rules) {
		if err := rule.CheckConfig(); err != nil {
			d.Skipped = append(d.Skipped, SkippedRule{RuleID: rule.ID, Error: err.Error()})
			continue
		}
		if !inScope(rule.Scope, jc.Streamer, jc.Campaign) || !conditionsMet(rule.Conditions, jc.Streamer, jc.Now) {
			continue
		}
		found, err := e.check(&rule, &jc)
		if err != nil {
			d.Skipped = append(d.Skipped, SkippedRule{RuleID: rule.ID, Error: err.Error()})
			continue
		}
		if found == nil {
			continue
		}

		v := domain.ConflictViolation{
			StreamerID:            jc.Streamer.ID,
			CampaignID:            jc.Campaign.ID,
			RuleID:                rule.ID,
			RuleName:              rule.Name,
			ConflictType:          rule.Type,
			Severity:              rule.Severity,
			Message:               e.messages.render(&rule, &jc, found, found.message),
			ConflictingCampaigns:  found.campaigns,
			ConflictingCategories: found.categories,
			ConflictingBrands:     found.brands,
			Status:                domain.ViolationPending,
			DetectedAt:            jc.Now,
		}
		d.Triggered = append(d.Triggered, v)
		d.Hits = append(d.Hits, catalog.RuleHit{RuleID: rule.ID, Severity: rule.Severity})

		switch rule.Severity {
		case domain.SeverityBlocking:
			if !d.Blocking {
				d.Blocking = true
				d.PrimaryRuleID = rule.ID
				d.Reason = v.Message
			}
		case domain.SeverityWarning:
			d.Warnings = append(d.Warnings, v)
		case domain.SeverityAdvisory:
			d.Advisories = append(d.Advisories, v)
		}
	}
	d.Allowed = !d.Blocking
	return d
}

func (e *Evaluator) keyFor(jc JoinContext) domain.Key {
	for _, k := range jc.Keys {
		if k.Category == jc.Campaign.Category {
			return k
		}
	}
	return domain.NewKey(jc.Streamer.ID, jc.Campaign.Category, jc.Now)
}

func (e *Evaluator) orderedRules(rules []domain.ConflictRule) []domain.ConflictRule {
	out := make([]domain.ConflictRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	catalog.SortRules(out)
	return out
}

func (e *Evaluator) check(rule *domain.ConflictRule, jc *JoinContext) (*conflict, error) {
	switch cfg := rule.Config.(type) {
	case domain.CategoryExclusivityConfig:
		return checkCategoryExclusivity(cfg, jc.Campaign, jc.Participations), nil
	case domain.BrandExclusivityConfig:
		return checkBrandExclusivity(cfg, jc.Campaign, jc.Participations), nil
	case domain.CooldownConfig:
		return checkCooldown(cfg, jc.Campaign, jc.Participations, jc.Now), nil
	case domain.SimultaneousLimitConfig:
		return checkSimultaneousLimit(cfg, jc.Campaign, jc.Participations), nil
	}
	return nil, fmt.Errorf("rule %s: unsupported config type %T", rule.ID, rule.Config)
}
