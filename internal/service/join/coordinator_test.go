package join

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/repository/memory"
	"github.com/ignite/keylock/internal/service/catalog"
	"github.com/ignite/keylock/internal/service/eligibility"
	"github.com/ignite/keylock/internal/service/keystore"
	"github.com/ignite/keylock/internal/service/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type memDirectory struct {
	campaigns map[string]domain.Campaign
	streamers map[string]domain.Streamer
}

func (d *memDirectory) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	c, ok := d.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return &c, nil
}

func (d *memDirectory) GetStreamer(_ context.Context, id string) (*domain.Streamer, error) {
	s, ok := d.streamers[id]
	if !ok {
		return nil, ErrStreamerNotFound
	}
	return &s, nil
}

type memParticipations struct {
	mu    sync.Mutex
	items []domain.ActiveParticipation
}

func (m *memParticipations) ListRecent(_ context.Context, streamerID string, since time.Time) ([]domain.ActiveParticipation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActiveParticipation
	for _, p := range m.items {
		if p.StreamerID != streamerID {
			continue
		}
		if end, ok := p.EndedAt(); ok && end.Before(since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memParticipations) persist(_ context.Context, p domain.ActiveParticipation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, p)
	return nil
}

type memRules struct{ rules []domain.ConflictRule }

func (m *memRules) ListActive(context.Context) ([]domain.ConflictRule, error) { return m.rules, nil }
func (m *memRules) Get(_ context.Context, id string) (*domain.ConflictRule, error) {
	for _, r := range m.rules {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, catalog.ErrRuleNotFound
}
func (m *memRules) IncrementCounters(context.Context, string, catalog.CounterDelta, time.Time) error {
	return nil
}

// barrierRepo holds every lock attempt until n of them have arrived, so all
// joins evaluate against the same snapshot before any of them writes.
type barrierRepo struct {
	*memory.KeyRepo
	arrive sync.WaitGroup
}

func newBarrierRepo(n int) *barrierRepo {
	b := &barrierRepo{KeyRepo: memory.NewKeyRepo()}
	b.arrive.Add(n)
	return b
}

func (b *barrierRepo) ConditionalUpdate(ctx context.Context, u keystore.Update) (bool, error) {
	if u.Kind == keystore.UpdateLock {
		b.arrive.Done()
		b.arrive.Wait()
	}
	return b.KeyRepo.ConditionalUpdate(ctx, u)
}

// losingRepo loses every lock race.
type losingRepo struct{ *memory.KeyRepo }

func (l losingRepo) ConditionalUpdate(ctx context.Context, u keystore.Update) (bool, error) {
	if u.Kind == keystore.UpdateLock {
		return false, nil
	}
	return l.KeyRepo.ConditionalUpdate(ctx, u)
}

// commitThenFailRepo applies lock writes and then reports a deadline, like a
// driver call that times out after the server committed.
type commitThenFailRepo struct{ *memory.KeyRepo }

func (r commitThenFailRepo) ConditionalUpdate(ctx context.Context, u keystore.Update) (bool, error) {
	if u.Kind == keystore.UpdateLock {
		_, _ = r.KeyRepo.ConditionalUpdate(ctx, u)
		return false, context.DeadlineExceeded
	}
	return r.KeyRepo.ConditionalUpdate(ctx, u)
}

// unreachableRepo fails lock writes without applying them.
type unreachableRepo struct{ *memory.KeyRepo }

func (r unreachableRepo) ConditionalUpdate(ctx context.Context, u keystore.Update) (bool, error) {
	if u.Kind == keystore.UpdateLock {
		return false, errors.New("connection reset")
	}
	return r.KeyRepo.ConditionalUpdate(ctx, u)
}

type fixture struct {
	coord      *Coordinator
	keys       keystore.Repository
	parts      *memParticipations
	violations *memory.ViolationRepo
	rules      *memRules
	clock      time.Time
}

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, repo keystore.Repository) *fixture {
	t.Helper()
	if repo == nil {
		repo = memory.NewKeyRepo()
	}
	cats, err := catalog.NewCategoryCatalog([]domain.CategoryInfo{
		{Category: "gaming", MaxUsagePerDay: 1, DefaultCooloffHours: 360},
		{Category: "beauty", MaxUsagePerDay: 2, DefaultCooloffHours: 24},
	})
	require.NoError(t, err)

	six := 6
	dir := &memDirectory{
		campaigns: map[string]domain.Campaign{
			"A":     {ID: "A", BrandID: "BrandX", Category: "gaming", Budget: 1000, PaymentType: domain.PaymentCPM},
			"B":     {ID: "B", BrandID: "BrandY", Category: "gaming", Budget: 1000, PaymentType: domain.PaymentCPM},
			"X2":    {ID: "X2", BrandID: "BrandX", Category: "beauty", Budget: 500, PaymentType: domain.PaymentFixed},
			"short": {ID: "short", BrandID: "BrandZ", Category: "beauty", CooloffHours: &six},
			"odd":   {ID: "odd", BrandID: "BrandZ", Category: "cooking"},
		},
		streamers: map[string]domain.Streamer{
			"U1": {ID: "U1", Role: "streamer", Region: "US"},
		},
	}

	f := &fixture{
		keys:       repo,
		parts:      &memParticipations{},
		violations: memory.NewViolationRepo(),
		rules:      &memRules{},
		clock:      t0,
	}
	f.coord = NewCoordinator(Deps{
		Campaigns:      dir,
		Streamers:      dir,
		Participations: f.parts,
		Violations:     violation.NewRecorder(f.violations, nil),
		Keys:           keystore.NewStore(repo, cats),
		Categories:     cats,
		Rules:          catalog.NewRuleCatalog(f.rules, 0),
		Evaluator:      eligibility.NewEvaluator(),
	}, Options{CompensationTimeout: time.Second})
	f.coord.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) join(t *testing.T, campaignID string) *Result {
	t.Helper()
	res, err := f.coord.Join(context.Background(), Request{StreamerID: "U1", CampaignID: campaignID, Persist: f.parts.persist})
	require.NoError(t, err)
	return res
}

// =============================================================================
// JOIN
// =============================================================================

func TestJoin_LockThenCooloffScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.join(t, "A")
	require.True(t, res.Allowed)
	assert.Equal(t, "gaming", res.LockedCategory)
	require.NotNil(t, res.Participation)

	k, err := f.keys.Get(ctx, "U1", "gaming")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyLocked, k.Status)
	assert.Equal(t, "A", k.LockedWithCampaignID)

	res = f.join(t, "B")
	assert.False(t, res.Allowed)
	assert.Equal(t, eligibility.ReasonKeyUnavailable, res.Decision.Reason)
	assert.Equal(t, domain.KeyLocked, res.Decision.KeyStatus.Status)

	left, err := f.coord.Leave(ctx, "U1", "A", "completed")
	require.NoError(t, err)
	assert.True(t, left.Released)
	assert.Equal(t, 360, left.CooloffHours)
	require.NotNil(t, left.CooloffEndsAt)
	assert.Equal(t, t0.Add(360*time.Hour), *left.CooloffEndsAt)

	f.clock = t0.Add(time.Hour)
	res = f.join(t, "B")
	assert.False(t, res.Allowed)
	require.NotNil(t, res.Decision.NextAvailableAt)
	assert.Equal(t, t0.Add(360*time.Hour), *res.Decision.NextAvailableAt)

	f.clock = t0.Add(360 * time.Hour)
	res = f.join(t, "B")
	assert.True(t, res.Allowed)
}

func TestJoin_ConcurrentSingleWinner(t *testing.T) {
	const n = 50
	f := newFixture(t, newBarrierRepo(n))

	var wins, conflicts int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.coord.Join(context.Background(), Request{StreamerID: "U1", CampaignID: "A"})
			switch {
			case errors.Is(err, ErrKeyConflict):
				atomic.AddInt64(&conflicts, 1)
			case err != nil:
				t.Errorf("join: %v", err)
			case res.Allowed:
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(n-1), conflicts)
}

func TestJoinWithRetry_LosingTwiceIsALockedDecision(t *testing.T) {
	f := newFixture(t, losingRepo{memory.NewKeyRepo()})

	res, err := f.coord.JoinWithRetry(context.Background(), Request{StreamerID: "U1", CampaignID: "A"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, res.Decision.Blocking)
	assert.Equal(t, eligibility.ReasonKeyUnavailable, res.Decision.Reason)
	assert.Equal(t, domain.KeyLocked, res.Decision.KeyStatus.Status)
}

func TestJoinWithRetry_LostRacesRecordNoViolations(t *testing.T) {
	f := newFixture(t, losingRepo{memory.NewKeyRepo()})
	left := t0.Add(-24 * time.Hour)
	f.parts.items = []domain.ActiveParticipation{{
		ID: "old", StreamerID: "U1", CampaignID: "old", Category: "gaming", BrandID: "BrandQ",
		Status: domain.ParticipationCompleted, JoinedAt: t0.Add(-72 * time.Hour), LeftAt: &left,
	}}
	f.rules.rules = []domain.ConflictRule{{
		ID: "cool", Type: domain.RuleCooldownPeriod, Severity: domain.SeverityWarning,
		Priority: 5, IsActive: true, Config: domain.CooldownConfig{CooldownDays: 7},
	}}

	res, err := f.coord.JoinWithRetry(context.Background(), Request{StreamerID: "U1", CampaignID: "A"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Empty(t, res.Violations)

	stored, err := f.violations.ListByStreamer(context.Background(), "U1", violation.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored, "attempts that lost the key race must not leave pending violations")
}

func TestJoin_BlockingRuleLeavesKeyUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.rules.rules = []domain.ConflictRule{{
		ID: "brand-x", Name: "BrandX exclusive", Type: domain.RuleBrandExclusivity,
		Severity: domain.SeverityBlocking, Priority: 10, IsActive: true,
		Config: domain.BrandExclusivityConfig{Brands: []string{"BrandX"}},
	}}

	require.True(t, f.join(t, "A").Allowed)

	res := f.join(t, "X2")
	assert.False(t, res.Allowed)
	assert.Equal(t, "brand-x", res.Decision.PrimaryRuleID)
	require.Len(t, res.Violations, 1)
	assert.NotEmpty(t, res.Violations[0].ID)

	_, err := f.keys.Get(context.Background(), "U1", "beauty")
	assert.ErrorIs(t, err, keystore.ErrNotFound, "blocked join must not create or lock the key")

	stored, err := f.violations.Get(context.Background(), res.Violations[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ViolationPending, stored.Status)
}

func TestJoin_WarningProceedsUnlessAborted(t *testing.T) {
	f := newFixture(t, nil)
	left := t0.Add(-24 * time.Hour)
	f.parts.items = []domain.ActiveParticipation{{
		ID: "old", StreamerID: "U1", CampaignID: "old", Category: "beauty", BrandID: "BrandQ",
		Status: domain.ParticipationCompleted, JoinedAt: t0.Add(-72 * time.Hour), LeftAt: &left,
	}}
	f.rules.rules = []domain.ConflictRule{{
		ID: "cool", Type: domain.RuleCooldownPeriod, Severity: domain.SeverityWarning,
		Priority: 5, IsActive: true, Config: domain.CooldownConfig{CooldownDays: 7},
	}}

	res, err := f.coord.Join(context.Background(), Request{StreamerID: "U1", CampaignID: "X2", AbortOnWarning: true})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, res.Aborted)
	assert.True(t, res.Decision.Allowed, "the decision itself allowed the join")
	_, err = f.keys.Get(context.Background(), "U1", "beauty")
	assert.ErrorIs(t, err, keystore.ErrNotFound)

	res = f.join(t, "X2")
	assert.True(t, res.Allowed)
	require.Len(t, res.Decision.Warnings, 1)
	assert.NotEmpty(t, res.Decision.Warnings[0].ID)
}

func TestJoin_UnknownCategoryIsConfigError(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.coord.Join(context.Background(), Request{StreamerID: "U1", CampaignID: "odd"})

	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestJoin_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.coord.Join(context.Background(), Request{StreamerID: "U1", CampaignID: "nope"})
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	_, err = f.coord.Join(context.Background(), Request{StreamerID: "ghost", CampaignID: "A"})
	assert.ErrorIs(t, err, ErrStreamerNotFound)
}

// =============================================================================
// COMPENSATION
// =============================================================================

func TestJoin_PersistFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.coord.Join(ctx, Request{
		StreamerID: "U1", CampaignID: "A",
		Persist: func(context.Context, domain.ActiveParticipation) error { return errors.New("db down") },
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCompensationFailed)

	k, err := f.keys.Get(ctx, "U1", "gaming")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyAvailable, k.Status)
	assert.Zero(t, k.UsageCount, "rollback refunds the quota slot")
	assert.Nil(t, k.CooloffEndsAt)

	assert.True(t, f.join(t, "A").Allowed)
}

func TestJoin_CancelledAfterLockRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.coord.Join(ctx, Request{
		StreamerID: "U1", CampaignID: "A",
		Persist: func(ctx context.Context, _ domain.ActiveParticipation) error {
			cancel()
			return ctx.Err()
		},
	})
	require.ErrorIs(t, err, context.Canceled)

	k, err := f.keys.Get(context.Background(), "U1", "gaming")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyAvailable, k.Status)
}

func TestJoin_LockErrorAfterCommitRollsBack(t *testing.T) {
	f := newFixture(t, commitThenFailRepo{memory.NewKeyRepo()})
	ctx := context.Background()

	_, err := f.coord.Join(ctx, Request{StreamerID: "U1", CampaignID: "A", Persist: f.parts.persist})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrCompensationFailed)

	k, err := f.keys.Get(ctx, "U1", "gaming")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyAvailable, k.Status)
	assert.Empty(t, k.LockedWithCampaignID)
	assert.Zero(t, k.UsageCount)
	assert.Empty(t, f.parts.items)
}

func TestJoin_LockErrorWithoutWriteLeavesKeyAlone(t *testing.T) {
	f := newFixture(t, unreachableRepo{memory.NewKeyRepo()})
	ctx := context.Background()

	_, err := f.coord.Join(ctx, Request{StreamerID: "U1", CampaignID: "A", Persist: f.parts.persist})
	require.Error(t, err)
	assert.ErrorIs(t, err, keystore.ErrPersistence)
	assert.NotErrorIs(t, err, ErrCompensationFailed)

	k, err := f.keys.Get(ctx, "U1", "gaming")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyAvailable, k.Status)
	assert.Empty(t, f.parts.items)
}

func TestJoin_CompensationFailure(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.coord.Join(context.Background(), Request{
		StreamerID: "U1", CampaignID: "A",
		Persist: func(ctx context.Context, p domain.ActiveParticipation) error {
			// Someone else moved the key before the rollback could run.
			_, _ = f.coord.Keys.ForceUnlock(ctx, p.StreamerID, p.Category, "test", t0)
			return errors.New("db down")
		},
	})
	assert.ErrorIs(t, err, ErrCompensationFailed)
}

// =============================================================================
// LEAVE
// =============================================================================

func TestLeave_CampaignOverrideAndGuard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.join(t, "short").Allowed)

	res, err := f.coord.Leave(ctx, "U1", "X2", "left")
	require.NoError(t, err)
	assert.False(t, res.Released, "a different campaign's lock is not released")

	res, err = f.coord.Leave(ctx, "U1", "short", "completed")
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Equal(t, 6, res.CooloffHours)

	res, err = f.coord.Leave(ctx, "U1", "short", "completed")
	require.NoError(t, err)
	assert.False(t, res.Released, "leave is idempotent")
}

func TestForceUnlock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.join(t, "A").Allowed)
	ok, err := f.coord.ForceUnlock(ctx, "U1", "gaming", "campaign deleted")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.coord.ForceUnlock(ctx, "U1", "cooking", "typo")
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
