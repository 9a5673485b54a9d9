package domain

import "time"

// ViolationStatus enumerates the review lifecycle of a persisted violation.
type ViolationStatus string

const (
	ViolationPending    ViolationStatus = "pending"
	ViolationResolved   ViolationStatus = "resolved"
	ViolationOverridden ViolationStatus = "overridden"
	ViolationExpired    ViolationStatus = "expired"
)

// ConflictViolation records one rule match against one join attempt.
type ConflictViolation struct {
	ID           string   `json:"id,omitempty" db:"id"`
	StreamerID   string   `json:"streamer_id" db:"streamer_id"`
	CampaignID   string   `json:"campaign_id" db:"campaign_id"`
	RuleID       string   `json:"rule_id" db:"rule_id"`
	RuleName     string   `json:"rule_name,omitempty" db:"rule_name"`
	ConflictType RuleType `json:"type" db:"conflict_type"`
	Severity     Severity `json:"severity" db:"severity"`
	Message      string   `json:"message" db:"message"`

	ConflictingCampaigns  []string `json:"conflicting_campaigns,omitempty" db:"conflicting_campaigns"`
	ConflictingCategories []string `json:"conflicting_categories,omitempty" db:"conflicting_categories"`
	ConflictingBrands     []string `json:"conflicting_brands,omitempty" db:"conflicting_brands"`

	Status         ViolationStatus `json:"status" db:"status"`
	DetectedAt     time.Time       `json:"detected_at" db:"detected_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolutionNote string          `json:"resolution_note,omitempty" db:"resolution_note"`
}

// RequiresResolution reports whether the violation is persisted for review.
// Advisory matches are logged only.
func (v *ConflictViolation) RequiresResolution() bool {
	return v.Severity == SeverityBlocking || v.Severity == SeverityWarning
}
