package violation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/repository/memory"
	"github.com/ignite/keylock/internal/service/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	got  []domain.ConflictViolation
	fail bool
}

func (f *fakeArchive) Archive(_ context.Context, v domain.ConflictViolation) error {
	if f.fail {
		return errors.New("archive down")
	}
	f.got = append(f.got, v)
	return nil
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func sample(sev domain.Severity, rule string) domain.ConflictViolation {
	return domain.ConflictViolation{
		StreamerID:   "s1",
		CampaignID:   "c1",
		RuleID:       rule,
		ConflictType: domain.RuleBrandExclusivity,
		Severity:     sev,
		Message:      "conflict",
		DetectedAt:   now,
	}
}

func TestRecord_PersistsOnlyReviewable(t *testing.T) {
	repo := memory.NewViolationRepo()
	rec := violation.NewRecorder(repo, nil)

	stored, err := rec.Record(context.Background(), []domain.ConflictViolation{
		sample(domain.SeverityBlocking, "r1"),
		sample(domain.SeverityWarning, "r2"),
		sample(domain.SeverityAdvisory, "r3"),
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, v := range stored {
		assert.NotEmpty(t, v.ID)
		assert.Equal(t, domain.ViolationPending, v.Status)
	}

	list, err := rec.List(context.Background(), "s1", violation.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestResolveAndOverride(t *testing.T) {
	repo := memory.NewViolationRepo()
	archive := &fakeArchive{}
	rec := violation.NewRecorder(repo, archive)
	ctx := context.Background()

	stored, err := rec.Record(ctx, []domain.ConflictViolation{
		sample(domain.SeverityBlocking, "r1"),
		sample(domain.SeverityWarning, "r2"),
	})
	require.NoError(t, err)

	v, err := rec.Resolve(ctx, stored[0].ID, "streamer left the other campaign", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.ViolationResolved, v.Status)
	assert.Equal(t, "streamer left the other campaign", v.ResolutionNote)
	require.NotNil(t, v.ResolvedAt)

	v, err = rec.Override(ctx, stored[1].ID, "approved by brand", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.ViolationOverridden, v.Status)

	assert.Len(t, archive.got, 2)

	_, err = rec.Override(ctx, stored[0].ID, "again", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, violation.ErrInvalidTransition)

	_, err = rec.Resolve(ctx, "missing", "", now)
	assert.ErrorIs(t, err, violation.ErrNotFound)
}

func TestExpirePending(t *testing.T) {
	repo := memory.NewViolationRepo()
	archive := &fakeArchive{fail: true}
	rec := violation.NewRecorder(repo, archive)
	ctx := context.Background()

	old := sample(domain.SeverityWarning, "r1")
	old.DetectedAt = now.Add(-40 * 24 * time.Hour)
	_, err := rec.Record(ctx, []domain.ConflictViolation{old, sample(domain.SeverityWarning, "r2")})
	require.NoError(t, err)

	n, err := rec.ExpirePending(ctx, 30*24*time.Hour, now)
	require.NoError(t, err, "archive failures are logged, not returned")
	assert.Equal(t, 1, n)

	pending, _ := rec.List(ctx, "s1", violation.ListFilter{Status: domain.ViolationPending})
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].RuleID)
}
