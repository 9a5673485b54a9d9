package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/catalog"
)

// RuleRepo implements catalog.RuleRepository against PostgreSQL. The
// type-specific config, scope and conditions are JSONB columns.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleColumns = `id, name, COALESCE(description, ''), type, severity, config, scope, conditions,
	COALESCE(message_template, ''), is_active, priority, times_triggered, conflicts_blocked,
	conflicts_warned, last_applied, created_at, updated_at`

// scanRule never fails on a malformed JSON column. The rule is returned with
// ConfigErr set so one bad row cannot take the whole rule set down.
func scanRule(row rowScanner) (*domain.ConflictRule, error) {
	var (
		r                         domain.ConflictRule
		ruleType, severity        string
		config, scope, conditions []byte
		lastApplied               sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &ruleType, &severity,
		&config, &scope, &conditions, &r.MessageTemplate, &r.IsActive, &r.Priority,
		&r.TimesTriggered, &r.ConflictsBlocked, &r.ConflictsWarned, &lastApplied,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Type = domain.RuleType(ruleType)
	r.Severity = domain.Severity(severity)
	r.LastApplied = timePtr(lastApplied)

	cfg, err := domain.DecodeRuleConfig(r.Type, config)
	if err != nil {
		r.ConfigErr = err
	}
	r.Config = cfg
	if len(scope) > 0 {
		if err := json.Unmarshal(scope, &r.Scope); err != nil && r.ConfigErr == nil {
			r.ConfigErr = fmt.Errorf("decode scope: %w", err)
		}
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil && r.ConfigErr == nil {
			r.ConfigErr = fmt.Errorf("decode conditions: %w", err)
		}
	}
	return &r, nil
}

func (r *RuleRepo) ListActive(ctx context.Context) ([]domain.ConflictRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM conflict_rules WHERE is_active = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []domain.ConflictRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *RuleRepo) Get(ctx context.Context, id string) (*domain.ConflictRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM conflict_rules WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepo) IncrementCounters(ctx context.Context, id string, d catalog.CounterDelta, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conflict_rules
		SET times_triggered = times_triggered + $2,
			conflicts_blocked = conflicts_blocked + $3,
			conflicts_warned = conflicts_warned + $4,
			last_applied = GREATEST(COALESCE(last_applied, $5), $5)
		WHERE id = $1
	`, id, d.Triggered, d.Blocked, d.Warned, at)
	if err != nil {
		return fmt.Errorf("increment rule counters: %w", err)
	}
	return nil
}
