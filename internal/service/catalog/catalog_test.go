package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRuleRepo is an in-memory rule repository for unit testing.
type memRuleRepo struct {
	mu       sync.Mutex
	rules    map[string]domain.ConflictRule
	lists    int
	deltas   map[string]CounterDelta
	failIncr bool
}

func newMemRuleRepo(rules ...domain.ConflictRule) *memRuleRepo {
	m := &memRuleRepo{rules: make(map[string]domain.ConflictRule), deltas: make(map[string]CounterDelta)}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRuleRepo) ListActive(_ context.Context) ([]domain.ConflictRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []domain.ConflictRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRuleRepo) Get(_ context.Context, id string) (*domain.ConflictRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &r, nil
}

func (m *memRuleRepo) IncrementCounters(_ context.Context, id string, d CounterDelta, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncr {
		return errors.New("db down")
	}
	cur := m.deltas[id]
	cur.Triggered += d.Triggered
	cur.Blocked += d.Blocked
	cur.Warned += d.Warned
	m.deltas[id] = cur
	return nil
}

func (m *memRuleRepo) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rules[id]
	r.IsActive = active
	m.rules[id] = r
}

func rule(id string, priority int, active bool) domain.ConflictRule {
	return domain.ConflictRule{
		ID:       id,
		Type:     domain.RuleSimultaneousLimit,
		Severity: domain.SeverityWarning,
		Config:   domain.SimultaneousLimitConfig{MaxSimultaneousCampaigns: 3},
		IsActive: active,
		Priority: priority,
	}
}

func ruleIDs(rules []domain.ConflictRule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

func TestCategoryCatalog(t *testing.T) {
	cat, err := NewCategoryCatalog([]domain.CategoryInfo{
		{Category: "gaming", MaxUsagePerDay: 1, DefaultCooloffHours: 360},
		{Category: "beauty", MaxUsagePerDay: 2, DefaultCooloffHours: 24},
	})
	require.NoError(t, err)

	info, ok := cat.Get("gaming")
	require.True(t, ok)
	assert.Equal(t, 360, info.DefaultCooloffHours)

	_, ok = cat.Get("cooking")
	assert.False(t, ok)

	_, err = cat.MustGet("cooking")
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	assert.Equal(t, []string{"beauty", "gaming"}, cat.Names())
}

func TestCategoryCatalog_RejectsBadSeed(t *testing.T) {
	_, err := NewCategoryCatalog([]domain.CategoryInfo{{Category: "gaming", MaxUsagePerDay: 0}})
	assert.Error(t, err)

	_, err = NewCategoryCatalog([]domain.CategoryInfo{
		{Category: "gaming", MaxUsagePerDay: 1},
		{Category: "gaming", MaxUsagePerDay: 2},
	})
	assert.Error(t, err)
}

func TestActiveRulesSortedByPriority_OrderAndFilter(t *testing.T) {
	repo := newMemRuleRepo(
		rule("r-b", 5, true),
		rule("r-a", 5, true),
		rule("r-top", 10, true),
		rule("r-off", 99, false),
		rule("r-low", 1, true),
	)
	c := NewRuleCatalog(repo, 0)

	rules, err := c.ActiveRulesSortedByPriority(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r-top", "r-a", "r-b", "r-low"}, ruleIDs(rules))
}

func TestActiveRulesSortedByPriority_CacheTTL(t *testing.T) {
	repo := newMemRuleRepo(rule("r1", 1, true), rule("r2", 2, true))
	c := NewRuleCatalog(repo, 30*time.Second)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := c.ActiveRulesSortedByPriority(ctx)
	require.NoError(t, err)
	repo.setActive("r2", false)

	rules, _ := c.ActiveRulesSortedByPriority(ctx)
	assert.Len(t, rules, 2, "served from cache inside the TTL")
	assert.Equal(t, 1, repo.lists)

	clock = clock.Add(30 * time.Second)
	rules, _ = c.ActiveRulesSortedByPriority(ctx)
	assert.Equal(t, []string{"r1"}, ruleIDs(rules), "disabled rule must drop out once the TTL passes")
	assert.Equal(t, 2, repo.lists)

	c.Invalidate()
	_, _ = c.ActiveRulesSortedByPriority(ctx)
	assert.Equal(t, 3, repo.lists)
}

func TestActiveRulesSortedByPriority_ReturnsCopy(t *testing.T) {
	repo := newMemRuleRepo(rule("r1", 1, true))
	c := NewRuleCatalog(repo, time.Minute)

	rules, _ := c.ActiveRulesSortedByPriority(context.Background())
	rules[0].IsActive = false

	again, _ := c.ActiveRulesSortedByPriority(context.Background())
	assert.True(t, again[0].IsActive)
}

func TestRecordHits_AggregatesPerRule(t *testing.T) {
	repo := newMemRuleRepo(rule("r1", 1, true), rule("r2", 1, true))
	c := NewRuleCatalog(repo, 0)

	c.RecordHits(context.Background(), []RuleHit{
		{RuleID: "r1", Severity: domain.SeverityBlocking},
		{RuleID: "r1", Severity: domain.SeverityWarning},
		{RuleID: "r2", Severity: domain.SeverityAdvisory},
	}, time.Now())

	assert.Equal(t, CounterDelta{Triggered: 2, Blocked: 1, Warned: 1}, repo.deltas["r1"])
	assert.Equal(t, CounterDelta{Triggered: 1}, repo.deltas["r2"])
}

func TestRecordHits_FailureIsSwallowed(t *testing.T) {
	repo := newMemRuleRepo(rule("r1", 1, true))
	repo.failIncr = true
	c := NewRuleCatalog(repo, 0)

	assert.NotPanics(t, func() {
		c.RecordHits(context.Background(), []RuleHit{{RuleID: "r1", Severity: domain.SeverityWarning}}, time.Now())
	})
}

func TestRuleCatalogGet_IncludesInactive(t *testing.T) {
	repo := newMemRuleRepo(rule("on", 1, true), rule("off", 1, false))
	c := NewRuleCatalog(repo, time.Minute)

	r, err := c.Get(context.Background(), "off")
	require.NoError(t, err)
	assert.False(t, r.IsActive)

	_, err = c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}
