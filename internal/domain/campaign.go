package domain

import (
	"time"
)

// PaymentType enumerates how a brand pays streamers for a campaign.
type PaymentType string

const (
	PaymentCPM       PaymentType = "cpm"
	PaymentFixed     PaymentType = "fixed"
	PaymentPerStream PaymentType = "per_stream"
)

// Campaign is the subset of a brand campaign the engine needs. It is supplied
// by the campaign directory; the engine never writes it.
type Campaign struct {
	ID          string      `json:"id" db:"id"`
	BrandID     string      `json:"brand_id" db:"brand_id"`
	Name        string      `json:"name" db:"name"`
	Category    string      `json:"category" db:"category"`
	Budget      float64     `json:"budget" db:"budget"`
	PaymentType PaymentType `json:"payment_type" db:"payment_type"`

	// CooloffHours overrides the category's default cooloff when set.
	CooloffHours *int `json:"cooloff_hours,omitempty" db:"cooloff_hours"`
}

// Streamer is an authenticated broadcaster as supplied by the identity service.
type Streamer struct {
	ID     string `json:"id" db:"id"`
	Role   string `json:"role" db:"role"`
	Region string `json:"region,omitempty" db:"region"`
}

// ParticipationStatus enumerates the lifecycle of a streamer in a campaign.
type ParticipationStatus string

const (
	ParticipationActive    ParticipationStatus = "active"
	ParticipationCompleted ParticipationStatus = "completed"
	ParticipationLeft      ParticipationStatus = "left"
	ParticipationRemoved   ParticipationStatus = "removed"
)

// ActiveParticipation is a streamer's membership in a campaign. Owned by the
// campaign module; read-only input to the engine.
type ActiveParticipation struct {
	ID         string              `json:"id" db:"id"`
	StreamerID string              `json:"streamer_id" db:"streamer_id"`
	CampaignID string              `json:"campaign_id" db:"campaign_id"`
	Category   string              `json:"category" db:"category"`
	BrandID    string              `json:"brand_id" db:"brand_id"`
	Status     ParticipationStatus `json:"status" db:"status"`
	JoinedAt   time.Time           `json:"joined_at" db:"joined_at"`
	LeftAt     *time.Time          `json:"left_at,omitempty" db:"left_at"`
}

// IsActive reports whether the participation currently occupies a slot.
func (p *ActiveParticipation) IsActive() bool {
	return p.Status == ParticipationActive
}

// EndedAt returns when the participation stopped occupying a slot. Ended
// participations without a recorded leave time report false.
func (p *ActiveParticipation) EndedAt() (time.Time, bool) {
	if p.IsActive() || p.LeftAt == nil {
		return time.Time{}, false
	}
	return *p.LeftAt, true
}
