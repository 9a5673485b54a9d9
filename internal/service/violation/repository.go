package violation

import (
	"context"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// Repository defines the data access contract for violations.
type Repository interface {
	Insert(ctx context.Context, v *domain.ConflictViolation) error
	Get(ctx context.Context, id string) (*domain.ConflictViolation, error)
	ListByStreamer(ctx context.Context, streamerID string, f ListFilter) ([]domain.ConflictViolation, error)

	// Transition moves a Pending violation to status. It returns false when
	// the violation exists but is no longer Pending.
	Transition(ctx context.Context, id string, status domain.ViolationStatus, note string, at time.Time) (bool, error)

	// ExpirePending marks every Pending violation detected before the cutoff
	// as Expired and returns the affected rows.
	ExpirePending(ctx context.Context, detectedBefore, at time.Time) ([]domain.ConflictViolation, error)
}

// Archiver receives violations that reached a final state.
type Archiver interface {
	Archive(ctx context.Context, v domain.ConflictViolation) error
}

// ListFilter narrows ListByStreamer.
type ListFilter struct {
	Status domain.ViolationStatus
	Limit  int
	Offset int
}
