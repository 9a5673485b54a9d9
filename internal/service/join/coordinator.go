package join

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/ignite/keylock/internal/service/catalog"
	"github.com/ignite/keylock/internal/service/eligibility"
	"github.com/ignite/keylock/internal/service/keystore"
)

// Deps are the collaborators of a Coordinator. Violations may be nil, in
// which case decisions are returned but not stored.
type Deps struct {
	Campaigns      CampaignDirectory
	Streamers      StreamerDirectory
	Participations ParticipationReader
	Violations     ViolationRecorder
	Keys           *keystore.Store
	Categories     *catalog.CategoryCatalog
	Rules          *catalog.RuleCatalog
	Evaluator      *eligibility.Evaluator
}

// Options tune a Coordinator.
type Options struct {
	// ParticipationLookback bounds how far back ended participations are
	// loaded for cooldown rules.
	ParticipationLookback time.Duration

	// CompensationTimeout bounds the detached rollback after a failed
	// participation write.
	CompensationTimeout time.Duration
}

// Coordinator is the JoinCoordinator.
type Coordinator struct {
	Deps
	opts Options
	now  func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if opts.ParticipationLookback <= 0 {
		opts.ParticipationLookback = 90 * 24 * time.Hour
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = 10 * time.Second
	}
	return &Coordinator{Deps: deps, opts: opts, now: time.Now}
}

// Request is one join attempt.
type Request struct {
	StreamerID string
	CampaignID string

	// AbortOnWarning stops the join before locking when the decision carries
	// warnings.
	AbortOnWarning bool

	// Persist records the participation after the key is locked. A nil
	// Persist means the caller records it on its own and owns compensation.
	Persist PersistFunc
}

// Result is the outcome of a join.
type Result struct {
	Allowed        bool                       `json:"allowed"`
	Aborted        bool                       `json:"aborted,omitempty"`
	LockedCategory string                     `json:"locked_category,omitempty"`
	Participation  *domain.ActiveParticipation `json:"participation,omitempty"`
	Decision       eligibility.Decision       `json:"decision"`
	Violations     []domain.ConflictViolation `json:"violations,omitempty"`
}

// Join evaluates and, if allowed, locks the streamer's key for the campaign's
// category. A lost lock race returns ErrKeyConflict along with the decision
// that allowed the attempt. Violations are recorded only once the outcome is
// known, so a lost race leaves nothing behind for the retry to duplicate.
func (c *Coordinator) Join(ctx context.Context, req Request) (*Result, error) {
	now := c.now()

	jc, err := c.load(ctx, req.StreamerID, req.CampaignID, now)
	if err != nil {
		return nil, err
	}

	res := &Result{Decision: c.Evaluator.Evaluate(*jc)}
	if !res.Decision.Allowed {
		res.Violations = c.finish(ctx, jc, &res.Decision, now)
		return res, nil
	}
	if req.AbortOnWarning && len(res.Decision.Warnings) > 0 {
		res.Aborted = true
		res.Violations = c.finish(ctx, jc, &res.Decision, now)
		return res, nil
	}

	camp := jc.Campaign
	ok, err := c.Keys.TryLock(ctx, req.StreamerID, camp.Category, camp.ID, camp.BrandID, now)
	if err != nil {
		return nil, c.undoUncertainLock(ctx, req.StreamerID, camp, err)
	}
	if !ok {
		logger.Info("join lost key race", "streamer_id", req.StreamerID, "campaign_id", camp.ID, "category", camp.Category)
		return res, ErrKeyConflict
	}
	res.Violations = c.finish(ctx, jc, &res.Decision, now)

	p := domain.ActiveParticipation{
		ID:         uuid.New().String(),
		StreamerID: req.StreamerID,
		CampaignID: camp.ID,
		Category:   camp.Category,
		BrandID:    camp.BrandID,
		Status:     domain.ParticipationActive,
		JoinedAt:   now,
	}
	if req.Persist != nil {
		perr := ctx.Err()
		if perr == nil {
			perr = req.Persist(ctx, p)
		}
		if perr != nil {
			return nil, c.compensate(ctx, p, perr)
		}
	}

	res.Allowed = true
	res.LockedCategory = camp.Category
	res.Participation = &p
	logger.Info("streamer joined campaign",
		"streamer_id", req.StreamerID, "campaign_id", camp.ID, "category", camp.Category,
		"warnings", len(res.Decision.Warnings))
	return res, nil
}

// JoinWithRetry runs Join and retries once on ErrKeyConflict. If the retry
// also loses, the result is an ordinary blocked decision for the key.
func (c *Coordinator) JoinWithRetry(ctx context.Context, req Request) (*Result, error) {
	res, err := c.Join(ctx, req)
	if !errors.Is(err, ErrKeyConflict) {
		return res, err
	}
	res, err = c.Join(ctx, req)
	if !errors.Is(err, ErrKeyConflict) {
		return res, err
	}

	category := res.LockedCategory
	if ks := res.Decision.KeyStatus; ks != nil {
		category = ks.Category
	}
	view, serr := c.Keys.Status(ctx, req.StreamerID, category, c.now())
	if serr != nil {
		return nil, serr
	}
	if view.CanUse {
		// The winner may have rolled back since; report the lock we lost to.
		view.Status = domain.KeyLocked
		view.CanUse = false
	}
	return &Result{Decision: eligibility.Decision{
		Allowed:         false,
		Blocking:        true,
		Reason:          eligibility.ReasonKeyUnavailable,
		KeyStatus:       &view,
		NextAvailableAt: view.NextAvailableAt,
	}}, nil
}

func (c *Coordinator) load(ctx context.Context, streamerID, campaignID string, now time.Time) (*eligibility.JoinContext, error) {
	camp, err := c.Campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	info, err := c.Categories.MustGet(camp.Category)
	if err != nil {
		logger.Error("campaign has unknown category", "campaign_id", camp.ID, "category", camp.Category)
		return nil, err
	}
	st, err := c.Streamers.GetStreamer(ctx, streamerID)
	if err != nil {
		return nil, fmt.Errorf("load streamer %s: %w", streamerID, err)
	}
	parts, err := c.Participations.ListRecent(ctx, streamerID, now.Add(-c.opts.ParticipationLookback))
	if err != nil {
		return nil, fmt.Errorf("load participations: %w", err)
	}
	keys, err := c.Keys.Keys(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	rules, err := c.Rules.ActiveRulesSortedByPriority(ctx)
	if err != nil {
		return nil, err
	}
	return &eligibility.JoinContext{
		Streamer:       *st,
		Campaign:       *camp,
		Category:       info,
		Participations: parts,
		Keys:           keys,
		Rules:          rules,
		Now:            now,
	}, nil
}

// finish applies the side effects of a decision: skipped-rule logging, rule
// counters and violation storage. It assigns ids to reviewable violations
// and returns every triggered violation.
func (c *Coordinator) finish(ctx context.Context, jc *eligibility.JoinContext, d *eligibility.Decision, now time.Time) []domain.ConflictViolation {
	for _, s := range d.Skipped {
		logger.Warn("conflict rule skipped", "rule_id", s.RuleID, "error", s.Error)
	}
	if len(d.Triggered) == 0 {
		return nil
	}

	for i := range d.Triggered {
		if d.Triggered[i].RequiresResolution() {
			d.Triggered[i].ID = uuid.New().String()
		}
	}
	syncIDs(d.Warnings, d.Triggered)
	syncIDs(d.Advisories, d.Triggered)

	c.Rules.RecordHits(ctx, d.Hits, now)
	if c.Violations != nil {
		if _, err := c.Violations.Record(ctx, d.Triggered); err != nil {
			logger.Warn("violation record failed",
				"streamer_id", jc.Streamer.ID, "campaign_id", jc.Campaign.ID, "error", err)
		}
	}
	return d.Triggered
}

func syncIDs(dst, src []domain.ConflictViolation) {
	for i := range dst {
		for _, v := range src {
			if v.RuleID == dst[i].RuleID {
				dst[i].ID = v.ID
				break
			}
		}
	}
}

// compensate undoes a lock whose participation write failed. It runs on a
// context detached from the caller so a cancelled request still unlocks.
func (c *Coordinator) compensate(ctx context.Context, p domain.ActiveParticipation, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CompensationTimeout)
	defer cancel()

	ok, err := c.Keys.Rollback(cctx, p.StreamerID, p.Category, p.CampaignID, c.now())
	if err == nil && ok {
		logger.Warn("join rolled back",
			"streamer_id", p.StreamerID, "campaign_id", p.CampaignID, "category", p.Category, "cause", cause)
		return fmt.Errorf("record participation: %w", cause)
	}
	if err == nil {
		err = errors.New("key no longer locked by this campaign")
	}
	logger.Anomaly("compensation_failure", "key left locked after failed join",
		"streamer_id", p.StreamerID, "campaign_id", p.CampaignID, "category", p.Category,
		"cause", cause, "rollback_error", err)
	return fmt.Errorf("%w: %w (rollback: %v)", ErrCompensationFailed, cause, err)
}

// undoUncertainLock handles a TryLock error. The conditional write may have
// committed before the store reported the failure, so the campaign-guarded
// rollback runs anyway; it changes nothing when the lock never landed.
func (c *Coordinator) undoUncertainLock(ctx context.Context, streamerID string, camp domain.Campaign, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CompensationTimeout)
	defer cancel()

	undone, err := c.Keys.Rollback(cctx, streamerID, camp.Category, camp.ID, c.now())
	if err != nil {
		logger.Anomaly("compensation_failure", "lock outcome unknown after storage error",
			"streamer_id", streamerID, "campaign_id", camp.ID, "category", camp.Category,
			"cause", cause, "rollback_error", err)
		return fmt.Errorf("%w: %w (rollback: %v)", ErrCompensationFailed, cause, err)
	}
	if undone {
		logger.Warn("lock rolled back after storage error",
			"streamer_id", streamerID, "campaign_id", camp.ID, "category", camp.Category, "cause", cause)
	}
	return cause
}

// LeaveResult is the outcome of a leave.
type LeaveResult struct {
	Released      bool       `json:"released"`
	Category      string     `json:"category"`
	CooloffHours  int        `json:"cooloff_hours"`
	CooloffEndsAt *time.Time `json:"cooloff_ends_at,omitempty"`
}

// Leave releases the streamer's key for the campaign's category into
// cooloff. Only a lock held by this campaign is released; anything else is a
// no-op with Released=false.
func (c *Coordinator) Leave(ctx context.Context, streamerID, campaignID, reason string) (*LeaveResult, error) {
	now := c.now()
	camp, err := c.Campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	info, err := c.Categories.MustGet(camp.Category)
	if err != nil {
		logger.Error("campaign has unknown category", "campaign_id", camp.ID, "category", camp.Category)
		return nil, err
	}

	hours := info.DefaultCooloffHours
	if camp.CooloffHours != nil {
		hours = *camp.CooloffHours
	}

	released, err := c.Keys.ReleaseFor(ctx, streamerID, camp.Category, camp.ID, hours, now)
	if err != nil {
		return nil, err
	}

	res := &LeaveResult{Released: released, Category: camp.Category, CooloffHours: hours}
	if released && hours > 0 {
		ends := now.Add(time.Duration(hours) * time.Hour)
		res.CooloffEndsAt = &ends
	}
	logger.Info("streamer left campaign",
		"streamer_id", streamerID, "campaign_id", campaignID, "category", camp.Category,
		"reason", reason, "released", released, "cooloff_hours", hours)
	return res, nil
}

// ForceUnlock frees a key regardless of its state. Admin only.
func (c *Coordinator) ForceUnlock(ctx context.Context, ownerID, category, reason string) (bool, error) {
	if _, err := c.Categories.MustGet(category); err != nil {
		return false, err
	}
	return c.Keys.ForceUnlock(ctx, ownerID, category, reason, c.now())
}
