package eligibility

import (
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/catalog"
)

// ReasonKeyUnavailable is the decision reason when the key check fails.
const ReasonKeyUnavailable = "key unavailable"

// JoinContext is everything one evaluation needs.
type JoinContext struct {
	Streamer domain.Streamer
	Campaign domain.Campaign

	// Category is the catalog entry for Campaign.Category.
	Category domain.CategoryInfo

	// Participations holds the streamer's active participations and any that
	// ended recently enough to matter for cooldown rules.
	Participations []domain.ActiveParticipation

	// Keys are the streamer's stored keys. A missing key is treated as a
	// fresh Available one.
	Keys []domain.Key

	// Rules are the active rules. Inactive entries are ignored and the order
	// is re-established, so callers may pass them unsorted.
	Rules []domain.ConflictRule

	Now time.Time
}

// SkippedRule is a rule left out of the evaluation because its config could
// not be used.
type SkippedRule struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Blocking bool   `json:"blocking"`
	Reason   string `json:"reason,omitempty"`

	// PrimaryRuleID is the highest-priority blocking rule, if any.
	PrimaryRuleID string `json:"primary_rule_id,omitempty"`

	KeyStatus       *domain.StatusView `json:"key_status,omitempty"`
	NextAvailableAt *time.Time         `json:"next_available_at,omitempty"`

	// Triggered lists every matched rule in evaluation order.
	Triggered  []domain.ConflictViolation `json:"triggered,omitempty"`
	Warnings   []domain.ConflictViolation `json:"warnings,omitempty"`
	Advisories []domain.ConflictViolation `json:"advisories,omitempty"`

	Hits    []catalog.RuleHit `json:"-"`
	Skipped []SkippedRule     `json:"skipped,omitempty"`
}
