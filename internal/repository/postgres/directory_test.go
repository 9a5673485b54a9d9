package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/join"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryRepo_GetCampaign(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDirectoryRepo(db)
	ctx := context.Background()

	cols := []string{"id", "brand_id", "name", "category", "budget", "payment_type", "cooloff_hours"}
	mock.ExpectQuery("FROM campaigns WHERE id = \\$1").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c1", "BrandX", "Spring", "gaming", 2500.0, "fixed", 48))
	mock.ExpectQuery("FROM campaigns WHERE id = \\$1").WithArgs("c2").
		WillReturnRows(sqlmock.NewRows(cols))

	c, err := repo.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFixed, c.PaymentType)
	require.NotNil(t, c.CooloffHours)
	assert.Equal(t, 48, *c.CooloffHours)

	_, err = repo.GetCampaign(ctx, "c2")
	assert.ErrorIs(t, err, join.ErrCampaignNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepo_GetStreamer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM streamers WHERE id = \\$1").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "region"}))

	_, err = NewDirectoryRepo(db).GetStreamer(context.Background(), "ghost")
	assert.ErrorIs(t, err, join.ErrStreamerNotFound)
}

func TestParticipationRepo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewParticipationRepo(db)
	ctx := context.Background()
	since := now.Add(-90 * 24 * time.Hour)
	left := now.Add(-time.Hour)

	mock.ExpectQuery("FROM campaign_participations").WithArgs("s1", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "streamer_id", "campaign_id", "category", "brand_id", "status", "joined_at", "left_at"}).
			AddRow("p1", "s1", "c1", "gaming", "BrandX", "active", now.Add(-48*time.Hour), nil).
			AddRow("p2", "s1", "c2", "beauty", "BrandY", "left", now.Add(-72*time.Hour), left))

	parts, err := repo.ListRecent(ctx, "s1", since)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.True(t, parts[0].IsActive())
	end, ok := parts[1].EndedAt()
	assert.True(t, ok)
	assert.Equal(t, left, end)

	mock.ExpectExec("UPDATE campaign_participations").
		WithArgs("s1", "c1", "completed", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ended, err := repo.End(ctx, "s1", "c1", domain.ParticipationCompleted, now)
	require.NoError(t, err)
	assert.True(t, ended)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	active, err := repo.IsActive(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, active)

	assert.NoError(t, mock.ExpectationsWereMet())
}
