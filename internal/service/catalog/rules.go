package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/logger"
)

// RuleCatalog serves the active conflict rules in evaluation order
// (priority desc, id asc) from a short-TTL cache. The cache only ever holds
// the result of ListActive, so a rule disabled by an admin disappears within
// one TTL.
type RuleCatalog struct {
	repo RuleRepository
	ttl  time.Duration
	now  func() time.Time

	mu        sync.RWMutex
	cached    []domain.ConflictRule
	fetchedAt time.Time
}

// NewRuleCatalog creates a catalog over repo. ttl <= 0 disables caching.
func NewRuleCatalog(repo RuleRepository, ttl time.Duration) *RuleCatalog {
	return &RuleCatalog{repo: repo, ttl: ttl, now: time.Now}
}

// ActiveRulesSortedByPriority returns all active rules ordered by
// (priority desc, id asc). The returned slice is the caller's to keep.
func (c *RuleCatalog) ActiveRulesSortedByPriority(ctx context.Context) ([]domain.ConflictRule, error) {
	if rules, ok := c.fromCache(); ok {
		return rules, nil
	}

	rules, err := c.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}
	active := make([]domain.ConflictRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	SortRules(active)

	c.mu.Lock()
	c.cached = active
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return cloneRules(active), nil
}

// Get loads one rule straight from the repository, active or not. A rule
// whose stored config is malformed is still returned with ConfigErr set.
func (c *RuleCatalog) Get(ctx context.Context, id string) (*domain.ConflictRule, error) {
	rule, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return rule, nil
}

// Invalidate drops the cached rule set so the next read hits the repository.
func (c *RuleCatalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *RuleCatalog) fromCache() ([]domain.ConflictRule, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return cloneRules(c.cached), true
}

// RuleHit is one rule match to be folded into the rule's counters.
type RuleHit struct {
	RuleID   string
	Severity domain.Severity
}

// RecordHits bumps analytics counters for matched rules. Writes are
// best-effort: failures are logged and otherwise ignored.
func (c *RuleCatalog) RecordHits(ctx context.Context, hits []RuleHit, at time.Time) {
	deltas := make(map[string]*CounterDelta)
	var order []string
	for _, h := range hits {
		d, ok := deltas[h.RuleID]
		if !ok {
			d = &CounterDelta{}
			deltas[h.RuleID] = d
			order = append(order, h.RuleID)
		}
		d.Triggered++
		switch h.Severity {
		case domain.SeverityBlocking:
			d.Blocked++
		case domain.SeverityWarning:
			d.Warned++
		}
	}
	for _, id := range order {
		if err := c.repo.IncrementCounters(ctx, id, *deltas[id], at); err != nil {
			logger.Warn("rule counter update failed", "rule_id", id, "error", err)
		}
	}
}

// SortRules orders rules for evaluation: priority descending, id ascending.
func SortRules(rules []domain.ConflictRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Less(&rules[j])
	})
}

func cloneRules(in []domain.ConflictRule) []domain.ConflictRule {
	out := make([]domain.ConflictRule, len(in))
	copy(out, in)
	return out
}
