package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/violation"
	"github.com/lib/pq"
)

// ViolationRepo implements violation.Repository against PostgreSQL.
type ViolationRepo struct{ db *sql.DB }

// NewViolationRepo creates a Postgres-backed violation repository.
func NewViolationRepo(db *sql.DB) *ViolationRepo { return &ViolationRepo{db: db} }

const violationColumns = `id, streamer_id, campaign_id, rule_id, COALESCE(rule_name, ''), conflict_type,
	severity, message, conflicting_campaigns, conflicting_categories, conflicting_brands,
	status, detected_at, resolved_at, COALESCE(resolution_note, '')`

func scanViolation(row rowScanner) (*domain.ConflictViolation, error) {
	var (
		v                      domain.ConflictViolation
		conflictType, severity string
		status                 string
		resolvedAt             sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.StreamerID, &v.CampaignID, &v.RuleID, &v.RuleName,
		&conflictType, &severity, &v.Message,
		pq.Array(&v.ConflictingCampaigns), pq.Array(&v.ConflictingCategories), pq.Array(&v.ConflictingBrands),
		&status, &v.DetectedAt, &resolvedAt, &v.ResolutionNote); err != nil {
		return nil, err
	}
	v.ConflictType = domain.RuleType(conflictType)
	v.Severity = domain.Severity(severity)
	v.Status = domain.ViolationStatus(status)
	v.ResolvedAt = timePtr(resolvedAt)
	return &v, nil
}

func (r *ViolationRepo) Insert(ctx context.Context, v *domain.ConflictViolation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conflict_violations (id, streamer_id, campaign_id, rule_id, rule_name, conflict_type,
			severity, message, conflicting_campaigns, conflicting_categories, conflicting_brands,
			status, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, v.ID, v.StreamerID, v.CampaignID, v.RuleID, v.RuleName, string(v.ConflictType),
		string(v.Severity), v.Message,
		pq.Array(v.ConflictingCampaigns), pq.Array(v.ConflictingCategories), pq.Array(v.ConflictingBrands),
		string(v.Status), v.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

func (r *ViolationRepo) Get(ctx context.Context, id string) (*domain.ConflictViolation, error) {
	v, err := scanViolation(r.db.QueryRowContext(ctx,
		`SELECT `+violationColumns+` FROM conflict_violations WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, violation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get violation: %w", err)
	}
	return v, nil
}

func (r *ViolationRepo) ListByStreamer(ctx context.Context, streamerID string, f violation.ListFilter) ([]domain.ConflictViolation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+violationColumns+`
		FROM conflict_violations
		WHERE streamer_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY detected_at DESC, id
		LIMIT $3 OFFSET $4
	`, streamerID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()
	return collectViolations(rows)
}

func (r *ViolationRepo) Transition(ctx context.Context, id string, status domain.ViolationStatus, note string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conflict_violations
		SET status = $2, resolution_note = $3, resolved_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), note, at)
	if err != nil {
		return false, fmt.Errorf("transition violation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conflict_violations WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check violation: %w", err)
	}
	if !exists {
		return false, violation.ErrNotFound
	}
	return false, nil
}

func (r *ViolationRepo) ExpirePending(ctx context.Context, detectedBefore, at time.Time) ([]domain.ConflictViolation, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE conflict_violations
		SET status = 'expired', resolved_at = $2
		WHERE status = 'pending' AND detected_at < $1
		RETURNING `+violationColumns,
		detectedBefore, at)
	if err != nil {
		return nil, fmt.Errorf("expire violations: %w", err)
	}
	defer rows.Close()
	return collectViolations(rows)
}

func collectViolations(rows *sql.Rows) ([]domain.ConflictViolation, error) {
	var out []domain.ConflictViolation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
