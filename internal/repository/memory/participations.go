package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// ParticipationRepo keeps campaign participations in memory.
type ParticipationRepo struct {
	mu    sync.Mutex
	parts []domain.ActiveParticipation
}

// NewParticipationRepo creates an empty in-memory participation repository.
func NewParticipationRepo() *ParticipationRepo {
	return &ParticipationRepo{}
}

// ListRecent returns the streamer's active participations and those that
// ended at or after since, oldest join first.
func (r *ParticipationRepo) ListRecent(_ context.Context, streamerID string, since time.Time) ([]domain.ActiveParticipation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ActiveParticipation
	for _, p := range r.parts {
		if p.StreamerID != streamerID {
			continue
		}
		if p.IsActive() || (p.LeftAt != nil && !p.LeftAt.Before(since)) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *ParticipationRepo) Create(_ context.Context, p domain.ActiveParticipation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parts = append(r.parts, p)
	return nil
}

// End closes the streamer's active participation in the campaign. It reports
// false when there was none.
func (r *ParticipationRepo) End(_ context.Context, streamerID, campaignID string, status domain.ParticipationStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.parts {
		p := &r.parts[i]
		if p.StreamerID == streamerID && p.CampaignID == campaignID && p.IsActive() {
			left := at
			p.Status = status
			p.LeftAt = &left
			return true, nil
		}
	}
	return false, nil
}

func (r *ParticipationRepo) IsActive(_ context.Context, streamerID, campaignID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.parts {
		if p.StreamerID == streamerID && p.CampaignID == campaignID && p.IsActive() {
			return true, nil
		}
	}
	return false, nil
}
