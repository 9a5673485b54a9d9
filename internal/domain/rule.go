package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleType enumerates the conflict rule kinds the evaluator understands.
type RuleType string

const (
	RuleCategoryExclusivity RuleType = "category_exclusivity"
	RuleBrandExclusivity    RuleType = "brand_exclusivity"
	RuleCooldownPeriod      RuleType = "cooldown_period"
	RuleSimultaneousLimit   RuleType = "simultaneous_limit"
)

// Severity decides what a matched rule does to a join attempt.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
	SeverityAdvisory Severity = "advisory"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityBlocking, SeverityWarning, SeverityAdvisory:
		return true
	}
	return false
}

// RuleConfig is the type-specific half of a ConflictRule. Exactly one concrete
// config type exists per RuleType.
type RuleConfig interface {
	RuleType() RuleType
	Validate() error
}

// CategoryExclusivityConfig makes Categories mutually exclusive with
// ExcludedCategories. With no ExcludedCategories, every category in the list
// excludes every other one.
type CategoryExclusivityConfig struct {
	Categories         []string `json:"categories"`
	ExcludedCategories []string `json:"excluded_categories,omitempty"`
}

func (CategoryExclusivityConfig) RuleType() RuleType { return RuleCategoryExclusivity }

func (c CategoryExclusivityConfig) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("categories must not be empty")
	}
	if len(c.ExcludedCategories) == 0 && len(c.Categories) < 2 {
		return fmt.Errorf("need excluded_categories or at least two categories")
	}
	return nil
}

// BrandExclusivityConfig makes Brands mutually exclusive with ExcludedBrands.
// With no ExcludedBrands, each listed brand is single-brand exclusive: a
// streamer may hold only one active campaign of that brand. An empty config
// applies single-brand exclusivity to every brand.
type BrandExclusivityConfig struct {
	Brands         []string `json:"brands,omitempty"`
	ExcludedBrands []string `json:"excluded_brands,omitempty"`
}

func (BrandExclusivityConfig) RuleType() RuleType { return RuleBrandExclusivity }

func (c BrandExclusivityConfig) Validate() error {
	if len(c.ExcludedBrands) > 0 && len(c.Brands) == 0 {
		return fmt.Errorf("excluded_brands requires brands")
	}
	return nil
}

// CooldownMatch selects which past participations a cooldown applies to.
type CooldownMatch string

const (
	CooldownSameCategory         CooldownMatch = "category"
	CooldownSameBrand            CooldownMatch = "brand"
	CooldownSameCategoryAndBrand CooldownMatch = "category_and_brand"
)

// CooldownConfig requires a gap between leaving a campaign and joining another
// matching one. CooldownDays is added to CooldownHours.
type CooldownConfig struct {
	CooldownHours int           `json:"cooldown_hours,omitempty"`
	CooldownDays  int           `json:"cooldown_days,omitempty"`
	Match         CooldownMatch `json:"match,omitempty"`
	Categories    []string      `json:"categories,omitempty"`
	Brands        []string      `json:"brands,omitempty"`
}

func (CooldownConfig) RuleType() RuleType { return RuleCooldownPeriod }

func (c CooldownConfig) Validate() error {
	if c.CooldownHours < 0 || c.CooldownDays < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	if c.Period() <= 0 {
		return fmt.Errorf("cooldown_hours or cooldown_days is required")
	}
	switch c.Match {
	case "", CooldownSameCategory, CooldownSameBrand, CooldownSameCategoryAndBrand:
	default:
		return fmt.Errorf("unknown cooldown match %q", c.Match)
	}
	return nil
}

// Period returns the total cooldown duration.
func (c CooldownConfig) Period() time.Duration {
	return time.Duration(c.CooldownHours)*time.Hour + time.Duration(c.CooldownDays)*24*time.Hour
}

// MatchMode returns Match, defaulting to same-category.
func (c CooldownConfig) MatchMode() CooldownMatch {
	if c.Match == "" {
		return CooldownSameCategory
	}
	return c.Match
}

// SimultaneousLimitConfig caps concurrent active participations. Zero means
// no limit on that axis.
type SimultaneousLimitConfig struct {
	MaxSimultaneousCampaigns int `json:"max_simultaneous_campaigns,omitempty"`
	MaxCampaignsPerCategory  int `json:"max_campaigns_per_category,omitempty"`
}

func (SimultaneousLimitConfig) RuleType() RuleType { return RuleSimultaneousLimit }

func (c SimultaneousLimitConfig) Validate() error {
	if c.MaxSimultaneousCampaigns < 0 || c.MaxCampaignsPerCategory < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if c.MaxSimultaneousCampaigns == 0 && c.MaxCampaignsPerCategory == 0 {
		return fmt.Errorf("max_simultaneous_campaigns or max_campaigns_per_category is required")
	}
	return nil
}

// DecodeRuleConfig parses the stored JSON config of a rule of type t.
func DecodeRuleConfig(t RuleType, raw []byte) (RuleConfig, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		cfg RuleConfig
		err error
	)
	switch t {
	case RuleCategoryExclusivity:
		var c CategoryExclusivityConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case RuleBrandExclusivity:
		var c BrandExclusivityConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case RuleCooldownPeriod:
		var c CooldownConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case RuleSimultaneousLimit:
		var c SimultaneousLimitConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	default:
		return nil, fmt.Errorf("unknown rule type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	return cfg, nil
}

// CampaignCriteria narrows a rule to campaigns within a budget range, payment
// type set, or category set.
type CampaignCriteria struct {
	MinBudget    *float64      `json:"min_budget,omitempty"`
	MaxBudget    *float64      `json:"max_budget,omitempty"`
	PaymentTypes []PaymentType `json:"payment_types,omitempty"`
	Categories   []string      `json:"categories,omitempty"`
}

// RuleScope filters which join attempts a rule applies to. Axes are AND'ed;
// an empty axis places no restriction.
type RuleScope struct {
	UserRoles        []string          `json:"user_roles,omitempty"`
	StreamerIDs      []string          `json:"streamer_ids,omitempty"`
	BrandIDs         []string          `json:"brand_ids,omitempty"`
	CampaignCriteria *CampaignCriteria `json:"campaign_criteria,omitempty"`
}

// ScheduleWindow limits a rule to UTC hours [StartHour, EndHour) on the given
// weekdays. StartHour > EndHour wraps past midnight. Equal hours mean all day.
type ScheduleWindow struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Days      []time.Weekday `json:"days,omitempty"`
}

// RegionFilter limits a rule by the streamer's region.
type RegionFilter struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// RuleConditions are optional gates shared by every rule type.
type RuleConditions struct {
	Schedule *ScheduleWindow `json:"schedule,omitempty"`
	Regions  *RegionFilter   `json:"regions,omitempty"`
}

// ConflictRule is an administrator-defined policy evaluated on every join.
type ConflictRule struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Description string   `json:"description,omitempty" db:"description"`
	Type        RuleType `json:"type" db:"type"`
	Severity    Severity `json:"severity" db:"severity"`

	// Config is nil when the stored config could not be decoded; ConfigErr
	// then carries the reason and the evaluator skips the rule.
	Config    RuleConfig `json:"config" db:"-"`
	ConfigErr error      `json:"-" db:"-"`

	Scope           RuleScope      `json:"scope" db:"scope"`
	Conditions      RuleConditions `json:"conditions" db:"conditions"`
	MessageTemplate string         `json:"message_template,omitempty" db:"message_template"`
	IsActive        bool           `json:"is_active" db:"is_active"`
	Priority        int            `json:"priority" db:"priority"`

	TimesTriggered   int64      `json:"times_triggered" db:"times_triggered"`
	ConflictsBlocked int64      `json:"conflicts_blocked" db:"conflicts_blocked"`
	ConflictsWarned  int64      `json:"conflicts_warned" db:"conflicts_warned"`
	LastApplied      *time.Time `json:"last_applied,omitempty" db:"last_applied"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CheckConfig returns the reason the rule cannot be evaluated, or nil.
func (r *ConflictRule) CheckConfig() error {
	if r.ConfigErr != nil {
		return r.ConfigErr
	}
	if r.Config == nil {
		return fmt.Errorf("rule %s has no config", r.ID)
	}
	if r.Config.RuleType() != r.Type {
		return fmt.Errorf("rule %s: config is %s, rule type is %s", r.ID, r.Config.RuleType(), r.Type)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: unknown severity %q", r.ID, r.Severity)
	}
	if s := r.Conditions.Schedule; s != nil {
		if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 24 {
			return fmt.Errorf("rule %s: schedule hours out of range", r.ID)
		}
	}
	return r.Config.Validate()
}

// Less orders rules by priority descending, then id ascending.
func (r *ConflictRule) Less(o *ConflictRule) bool {
	if r.Priority != o.Priority {
		return r.Priority > o.Priority
	}
	return r.ID < o.ID
}
