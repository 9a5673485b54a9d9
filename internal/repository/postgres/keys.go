package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/keystore"
)

// KeyRepo implements keystore.Repository against PostgreSQL. Every transition
// is a single conditional UPDATE, so the row lock taken by Postgres is the
// only serialization point between concurrent joins.
type KeyRepo struct{ db *sql.DB }

// NewKeyRepo creates a Postgres-backed key repository.
func NewKeyRepo(db *sql.DB) *KeyRepo { return &KeyRepo{db: db} }

const keyColumns = `owner_id, category, status, locked_with_campaign_id, locked_at,
	cooloff_ends_at, last_brand_id, usage_count, last_used_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*domain.Key, error) {
	var (
		k                 domain.Key
		status            string
		campaignID, brand sql.NullString
		lockedAt, cooloff sql.NullTime
		lastUsed          sql.NullTime
	)
	if err := row.Scan(&k.OwnerID, &k.Category, &status, &campaignID, &lockedAt,
		&cooloff, &brand, &k.UsageCount, &lastUsed, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	k.Status = domain.KeyStatus(status)
	k.LockedWithCampaignID = campaignID.String
	k.LastBrandID = brand.String
	k.LockedAt = timePtr(lockedAt)
	k.CooloffEndsAt = timePtr(cooloff)
	k.LastUsedAt = timePtr(lastUsed)
	return &k, nil
}

func (r *KeyRepo) Get(ctx context.Context, ownerID, category string) (*domain.Key, error) {
	k, err := scanKey(r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM streamer_keys WHERE owner_id = $1 AND category = $2`,
		ownerID, category,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, keystore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	return k, nil
}

func (r *KeyRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Key, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM streamer_keys WHERE owner_id = $1 ORDER BY category`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (r *KeyRepo) Insert(ctx context.Context, k *domain.Key) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO streamer_keys (owner_id, category, status, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, category) DO NOTHING
	`, k.OwnerID, k.Category, string(k.Status), k.UsageCount, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return keystore.ErrAlreadyExists
	}
	return nil
}

func (r *KeyRepo) ConditionalUpdate(ctx context.Context, u keystore.Update) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch u.Kind {
	case keystore.UpdateLock:
		res, err = r.db.ExecContext(ctx, `
			UPDATE streamer_keys
			SET status = 'locked',
				locked_with_campaign_id = $3,
				locked_at = $5,
				usage_count = CASE WHEN last_used_at IS NULL OR last_used_at < $6 THEN 1 ELSE usage_count + 1 END,
				last_used_at = $5,
				last_brand_id = $4,
				cooloff_ends_at = NULL,
				updated_at = $5
			WHERE owner_id = $1 AND category = $2
			  AND (status = 'available' OR (status = 'cooloff' AND cooloff_ends_at <= $5))
			  AND (last_used_at IS NULL OR last_used_at < $6 OR usage_count < $7)
		`, u.OwnerID, u.Category, u.CampaignID, nullString(u.BrandID), u.Now, u.DayStart, u.Quota)

	case keystore.UpdateRelease:
		res, err = r.db.ExecContext(ctx, `
			UPDATE streamer_keys
			SET status = CASE WHEN $4::timestamptz IS NULL THEN 'available' ELSE 'cooloff' END,
				cooloff_ends_at = $4,
				locked_with_campaign_id = NULL,
				locked_at = NULL,
				updated_at = $5
			WHERE owner_id = $1 AND category = $2
			  AND status = 'locked'
			  AND ($3::text = '' OR locked_with_campaign_id = $3)
		`, u.OwnerID, u.Category, u.CampaignID, u.CooloffEndsAt, u.Now)

	case keystore.UpdateRollback:
		res, err = r.db.ExecContext(ctx, `
			UPDATE streamer_keys
			SET status = 'available',
				locked_with_campaign_id = NULL,
				locked_at = NULL,
				usage_count = GREATEST(usage_count - 1, 0),
				updated_at = $4
			WHERE owner_id = $1 AND category = $2
			  AND status = 'locked' AND locked_with_campaign_id = $3
		`, u.OwnerID, u.Category, u.CampaignID, u.Now)

	case keystore.UpdateForceUnlock:
		res, err = r.db.ExecContext(ctx, `
			UPDATE streamer_keys
			SET status = 'available',
				locked_with_campaign_id = NULL,
				locked_at = NULL,
				cooloff_ends_at = NULL,
				updated_at = $3
			WHERE owner_id = $1 AND category = $2 AND status <> 'available'
		`, u.OwnerID, u.Category, u.Now)

	default:
		return false, fmt.Errorf("unsupported key update %s", u.Kind)
	}
	if err != nil {
		return false, fmt.Errorf("%s key: %w", u.Kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s key rows affected: %w", u.Kind, err)
	}
	return n == 1, nil
}

func (r *KeyRepo) ExpireCooloffs(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE streamer_keys
		SET status = 'available', cooloff_ends_at = NULL, updated_at = $1
		WHERE status = 'cooloff' AND cooloff_ends_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire cooloffs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *KeyRepo) ListLockedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Key, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM streamer_keys
		 WHERE status = 'locked' AND locked_at < $1
		 ORDER BY locked_at
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list locked keys: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func collectKeys(rows *sql.Rows) ([]domain.Key, error) {
	var out []domain.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
