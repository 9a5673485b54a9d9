package join

import (
	"context"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// CampaignDirectory supplies campaign records. Unknown ids return
// ErrCampaignNotFound.
type CampaignDirectory interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
}

// StreamerDirectory supplies streamer identity. Unknown ids return
// ErrStreamerNotFound.
type StreamerDirectory interface {
	GetStreamer(ctx context.Context, id string) (*domain.Streamer, error)
}

// ParticipationReader lists a streamer's participations that are active or
// ended at or after since.
type ParticipationReader interface {
	ListRecent(ctx context.Context, streamerID string, since time.Time) ([]domain.ActiveParticipation, error)
}

// ViolationRecorder stores the violations of a decision.
type ViolationRecorder interface {
	Record(ctx context.Context, vs []domain.ConflictViolation) ([]domain.ConflictViolation, error)
}

// PersistFunc writes the participation record once the key is locked.
type PersistFunc func(ctx context.Context, p domain.ActiveParticipation) error
