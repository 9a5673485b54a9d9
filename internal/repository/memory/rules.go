package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/catalog"
)

// RuleRepo implements catalog.RuleRepository in memory.
type RuleRepo struct {
	mu    sync.Mutex
	rules map[string]domain.ConflictRule
}

// NewRuleRepo creates a repository holding rules.
func NewRuleRepo(rules ...domain.ConflictRule) *RuleRepo {
	r := &RuleRepo{rules: make(map[string]domain.ConflictRule, len(rules))}
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	return r
}

// Put adds or replaces a rule.
func (r *RuleRepo) Put(rule domain.ConflictRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
}

func (r *RuleRepo) ListActive(context.Context) ([]domain.ConflictRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConflictRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RuleRepo) Get(_ context.Context, id string) (*domain.ConflictRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, catalog.ErrRuleNotFound
	}
	return &rule, nil
}

func (r *RuleRepo) IncrementCounters(_ context.Context, id string, d catalog.CounterDelta, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return catalog.ErrRuleNotFound
	}
	rule.TimesTriggered += d.Triggered
	rule.ConflictsBlocked += d.Blocked
	rule.ConflictsWarned += d.Warned
	if rule.LastApplied == nil || rule.LastApplied.Before(at) {
		applied := at
		rule.LastApplied = &applied
	}
	r.rules[id] = rule
	return nil
}
