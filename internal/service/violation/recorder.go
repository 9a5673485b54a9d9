package violation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/logger"
)

// Recorder stores violations and applies admin decisions to them.
type Recorder struct {
	repo    Repository
	archive Archiver
}

// NewRecorder creates a recorder. archive may be nil.
func NewRecorder(repo Repository, archive Archiver) *Recorder {
	return &Recorder{repo: repo, archive: archive}
}

// Record persists every Warning and Blocking violation as Pending and logs
// the Advisory ones. It returns the persisted violations with their ids.
// A failed insert does not stop the remaining ones; the joined error is
// returned alongside whatever was stored.
func (r *Recorder) Record(ctx context.Context, vs []domain.ConflictViolation) ([]domain.ConflictViolation, error) {
	var (
		stored []domain.ConflictViolation
		errs   []error
	)
	for _, v := range vs {
		if !v.RequiresResolution() {
			logger.Info("advisory conflict",
				"streamer_id", v.StreamerID, "campaign_id", v.CampaignID,
				"rule_id", v.RuleID, "type", v.ConflictType, "message", v.Message)
			continue
		}
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.Status = domain.ViolationPending
		if err := r.repo.Insert(ctx, &v); err != nil {
			errs = append(errs, fmt.Errorf("insert violation for rule %s: %w", v.RuleID, err))
			continue
		}
		stored = append(stored, v)
	}
	return stored, errors.Join(errs...)
}

// Resolve marks a Pending violation as Resolved.
func (r *Recorder) Resolve(ctx context.Context, id, note string, now time.Time) (*domain.ConflictViolation, error) {
	return r.transition(ctx, id, domain.ViolationResolved, note, now)
}

// Override marks a Pending violation as Overridden: an admin accepted the
// conflict.
func (r *Recorder) Override(ctx context.Context, id, note string, now time.Time) (*domain.ConflictViolation, error) {
	return r.transition(ctx, id, domain.ViolationOverridden, note, now)
}

func (r *Recorder) transition(ctx context.Context, id string, to domain.ViolationStatus, note string, now time.Time) (*domain.ConflictViolation, error) {
	ok, err := r.repo.Transition(ctx, id, to, note, now)
	if err != nil {
		return nil, fmt.Errorf("%s violation: %w", to, err)
	}
	v, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, v.Status)
	}
	logger.Info("violation reviewed", "id", id, "status", to, "rule_id", v.RuleID, "streamer_id", v.StreamerID)
	r.archiveOne(ctx, *v)
	return v, nil
}

// ExpirePending expires violations left Pending for longer than maxAge.
func (r *Recorder) ExpirePending(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	expired, err := r.repo.ExpirePending(ctx, now.Add(-maxAge), now)
	if err != nil {
		return 0, fmt.Errorf("expire violations: %w", err)
	}
	for _, v := range expired {
		r.archiveOne(ctx, v)
	}
	return len(expired), nil
}

// List returns a streamer's violations, newest first.
func (r *Recorder) List(ctx context.Context, streamerID string, f ListFilter) ([]domain.ConflictViolation, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return r.repo.ListByStreamer(ctx, streamerID, f)
}

func (r *Recorder) archiveOne(ctx context.Context, v domain.ConflictViolation) {
	if r.archive == nil {
		return
	}
	if err := r.archive.Archive(ctx, v); err != nil {
		logger.Warn("violation archive failed", "id", v.ID, "error", err)
	}
}
