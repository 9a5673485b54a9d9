package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var violationCols = []string{"id", "streamer_id", "campaign_id", "rule_id", "rule_name", "conflict_type",
	"severity", "message", "conflicting_campaigns", "conflicting_categories", "conflicting_brands",
	"status", "detected_at", "resolved_at", "resolution_note"}

func TestViolationRepo_InsertAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewViolationRepo(db)
	ctx := context.Background()

	v := &domain.ConflictViolation{
		ID: "v1", StreamerID: "s1", CampaignID: "c1", RuleID: "r1",
		ConflictType: domain.RuleBrandExclusivity, Severity: domain.SeverityBlocking,
		Message: "conflict", ConflictingCampaigns: []string{"c0"},
		Status: domain.ViolationPending, DetectedAt: now,
	}
	mock.ExpectExec("INSERT INTO conflict_violations").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Insert(ctx, v))

	mock.ExpectQuery("FROM conflict_violations\\s+WHERE streamer_id = \\$1").
		WithArgs("s1", "pending", 10, 0).
		WillReturnRows(sqlmock.NewRows(violationCols).
			AddRow("v1", "s1", "c1", "r1", "", "brand_exclusivity", "blocking", "conflict",
				"{c0}", "{gaming}", "{BrandX}", "pending", now, nil, ""))

	list, err := repo.ListByStreamer(ctx, "s1", violation.ListFilter{Status: domain.ViolationPending, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"c0"}, list[0].ConflictingCampaigns)
	assert.Equal(t, []string{"BrandX"}, list[0].ConflictingBrands)
	assert.Nil(t, list[0].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestViolationRepo_Transition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewViolationRepo(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE conflict_violations").
		WithArgs("v1", "resolved", "ok", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.Transition(ctx, "v1", domain.ViolationResolved, "ok", now)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE conflict_violations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err = repo.Transition(ctx, "v1", domain.ViolationOverridden, "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec("UPDATE conflict_violations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err = repo.Transition(ctx, "ghost", domain.ViolationResolved, "", now)
	assert.ErrorIs(t, err, violation.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestViolationRepo_ExpirePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := now.Add(-30 * 24 * time.Hour)
	mock.ExpectQuery("UPDATE conflict_violations\\s+SET status = 'expired'").
		WithArgs(cutoff, now).
		WillReturnRows(sqlmock.NewRows(violationCols).
			AddRow("v9", "s1", "c1", "r1", "Rule", "cooldown_period", "warning", "cooldown",
				"{}", "{}", "{}", "expired", cutoff.Add(-time.Hour), now, ""))

	out, err := NewViolationRepo(db).ExpirePending(context.Background(), cutoff, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ViolationExpired, out[0].Status)
	require.NotNil(t, out[0].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
