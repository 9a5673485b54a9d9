package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/join"
)

// DirectoryRepo reads campaigns and streamers owned by other services.
type DirectoryRepo struct{ db *sql.DB }

// NewDirectoryRepo creates a Postgres-backed campaign/streamer directory.
func NewDirectoryRepo(db *sql.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

func (r *DirectoryRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var (
		c       domain.Campaign
		payment string
		cooloff sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, brand_id, name, category, budget, payment_type, cooloff_hours
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.BrandID, &c.Name, &c.Category, &c.Budget, &payment, &cooloff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, join.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.PaymentType = domain.PaymentType(payment)
	if cooloff.Valid {
		h := int(cooloff.Int64)
		c.CooloffHours = &h
	}
	return &c, nil
}

func (r *DirectoryRepo) GetStreamer(ctx context.Context, id string) (*domain.Streamer, error) {
	var s domain.Streamer
	err := r.db.QueryRowContext(ctx,
		`SELECT id, role, COALESCE(region, '') FROM streamers WHERE id = $1`, id,
	).Scan(&s.ID, &s.Role, &s.Region)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, join.ErrStreamerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get streamer: %w", err)
	}
	return &s, nil
}
