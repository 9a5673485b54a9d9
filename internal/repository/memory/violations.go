package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/violation"
)

// ViolationRepo implements violation.Repository in memory.
type ViolationRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.ConflictViolation
}

// NewViolationRepo creates an empty in-memory violation repository.
func NewViolationRepo() *ViolationRepo {
	return &ViolationRepo{byID: make(map[string]*domain.ConflictViolation)}
}

func (r *ViolationRepo) Insert(_ context.Context, v *domain.ConflictViolation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.byID[v.ID] = &cp
	return nil
}

func (r *ViolationRepo) Get(_ context.Context, id string) (*domain.ConflictViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok {
		return nil, violation.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *ViolationRepo) ListByStreamer(_ context.Context, streamerID string, f violation.ListFilter) ([]domain.ConflictViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ConflictViolation
	for _, v := range r.byID {
		if v.StreamerID != streamerID || (f.Status != "" && v.Status != f.Status) {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *ViolationRepo) Transition(_ context.Context, id string, status domain.ViolationStatus, note string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok {
		return false, violation.ErrNotFound
	}
	if v.Status != domain.ViolationPending {
		return false, nil
	}
	v.Status = status
	v.ResolutionNote = note
	v.ResolvedAt = &at
	return true, nil
}

func (r *ViolationRepo) ExpirePending(_ context.Context, detectedBefore, at time.Time) ([]domain.ConflictViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ConflictViolation
	for _, v := range r.byID {
		if v.Status == domain.ViolationPending && v.DetectedAt.Before(detectedBefore) {
			v.Status = domain.ViolationExpired
			resolved := at
			v.ResolvedAt = &resolved
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
