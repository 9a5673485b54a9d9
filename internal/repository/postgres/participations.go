package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// ParticipationRepo reads and writes campaign participations. The engine
// only reads them; Create and End exist for the HTTP glue that stands in for
// the campaign module.
type ParticipationRepo struct{ db *sql.DB }

// NewParticipationRepo creates a Postgres-backed participation repository.
func NewParticipationRepo(db *sql.DB) *ParticipationRepo { return &ParticipationRepo{db: db} }

// ListRecent returns the streamer's active participations plus those that
// ended at or after since.
func (r *ParticipationRepo) ListRecent(ctx context.Context, streamerID string, since time.Time) ([]domain.ActiveParticipation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, streamer_id, campaign_id, category, COALESCE(brand_id, ''), status, joined_at, left_at
		FROM campaign_participations
		WHERE streamer_id = $1
		  AND (status = 'active' OR left_at >= $2)
		ORDER BY joined_at, id
	`, streamerID, since)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()

	var out []domain.ActiveParticipation
	for rows.Next() {
		var (
			p      domain.ActiveParticipation
			status string
			leftAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.StreamerID, &p.CampaignID, &p.Category, &p.BrandID,
			&status, &p.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		p.Status = domain.ParticipationStatus(status)
		p.LeftAt = timePtr(leftAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts an active participation.
func (r *ParticipationRepo) Create(ctx context.Context, p domain.ActiveParticipation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_participations (id, streamer_id, campaign_id, category, brand_id, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.StreamerID, p.CampaignID, p.Category, nullString(p.BrandID), string(p.Status), p.JoinedAt)
	if err != nil {
		return fmt.Errorf("create participation: %w", err)
	}
	return nil
}

// End closes the streamer's active participation in a campaign.
func (r *ParticipationRepo) End(ctx context.Context, streamerID, campaignID string, status domain.ParticipationStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_participations
		SET status = $3, left_at = $4
		WHERE streamer_id = $1 AND campaign_id = $2 AND status = 'active'
	`, streamerID, campaignID, string(status), at)
	if err != nil {
		return false, fmt.Errorf("end participation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsActive reports whether the streamer still participates in the campaign.
func (r *ParticipationRepo) IsActive(ctx context.Context, streamerID, campaignID string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM campaign_participations
			WHERE streamer_id = $1 AND campaign_id = $2 AND status = 'active'
		)
	`, streamerID, campaignID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check participation: %w", err)
	}
	return active, nil
}
