package catalog

import (
	"context"
	"time"

	"github.com/ignite/keylock/internal/domain"
)

// RuleRepository defines the data access contract for conflict rules.
// Rules are written by the admin console; the engine only reads them and
// bumps their analytics counters.
type RuleRepository interface {
	// ListActive returns every rule with is_active = true. Order is not
	// guaranteed; the catalog sorts.
	ListActive(ctx context.Context) ([]domain.ConflictRule, error)

	// Get returns one rule regardless of its active flag.
	Get(ctx context.Context, id string) (*domain.ConflictRule, error)

	// IncrementCounters adds the deltas to a rule's counters and moves
	// last_applied forward to at (never backwards).
	IncrementCounters(ctx context.Context, id string, d CounterDelta, at time.Time) error
}

// CounterDelta is one batch of analytics increments for a rule.
type CounterDelta struct {
	Triggered int64
	Blocked   int64
	Warned    int64
}
