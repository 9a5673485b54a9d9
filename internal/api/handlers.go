package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/keylock/internal/auth"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/httputil"
	"github.com/ignite/keylock/internal/service/join"
	"github.com/ignite/keylock/internal/service/keystore"
	"github.com/ignite/keylock/internal/service/violation"
)

// ParticipationStore records participations on behalf of join and leave.
type ParticipationStore interface {
	Create(ctx context.Context, p domain.ActiveParticipation) error
	End(ctx context.Context, streamerID, campaignID string, status domain.ParticipationStatus, at time.Time) (bool, error)
}

// Handlers serves the engine's HTTP surface.
type Handlers struct {
	coordinator    *join.Coordinator
	keys           *keystore.Store
	violations     *violation.Recorder
	participations ParticipationStore
	requestTimeout time.Duration
	now            func() time.Time
}

// NewHandlers wires the handlers. requestTimeout bounds join and leave.
func NewHandlers(c *join.Coordinator, keys *keystore.Store, violations *violation.Recorder, parts ParticipationStore, requestTimeout time.Duration) *Handlers {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Handlers{
		coordinator:    c,
		keys:           keys,
		violations:     violations,
		participations: parts,
		requestTimeout: requestTimeout,
		now:            time.Now,
	}
}

type joinRequest struct {
	StreamerID     string `json:"streamer_id"`
	CampaignID     string `json:"campaign_id"`
	AbortOnWarning bool   `json:"abort_on_warning"`
}

// Join evaluates eligibility and, when allowed, locks the key and records
// the participation. A blocked join is still a 200: the decision says why.
//
//	POST /api/v1/join
func (h *Handlers) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StreamerID == "" || req.CampaignID == "" {
		httputil.BadRequest(w, "streamer_id and campaign_id are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	res, err := h.coordinator.JoinWithRetry(ctx, join.Request{
		StreamerID:     req.StreamerID,
		CampaignID:     req.CampaignID,
		AbortOnWarning: req.AbortOnWarning,
		Persist:        h.participations.Create,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

type leaveRequest struct {
	StreamerID string `json:"streamer_id"`
	CampaignID string `json:"campaign_id"`
	Reason     string `json:"reason"`
}

type leaveResponse struct {
	*join.LeaveResult
	ParticipationEnded bool `json:"participation_ended"`
}

// Leave ends the participation, then releases the key into cooloff. A
// failed release leaves an orphaned lock for the reaper.
//
//	POST /api/v1/leave
func (h *Handlers) Leave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StreamerID == "" || req.CampaignID == "" {
		httputil.BadRequest(w, "streamer_id and campaign_id are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	ended, err := h.participations.End(ctx, req.StreamerID, req.CampaignID, endStatus(req.Reason), h.now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.coordinator.Leave(ctx, req.StreamerID, req.CampaignID, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, leaveResponse{LeaveResult: res, ParticipationEnded: ended})
}

// endStatus maps a leave reason onto the participation's final status.
// Anything other than completed or removed is a voluntary leave.
func endStatus(reason string) domain.ParticipationStatus {
	switch domain.ParticipationStatus(strings.ToLower(strings.TrimSpace(reason))) {
	case domain.ParticipationCompleted:
		return domain.ParticipationCompleted
	case domain.ParticipationRemoved:
		return domain.ParticipationRemoved
	default:
		return domain.ParticipationLeft
	}
}

// ListKeys returns the streamer's key status for every category.
//
//	GET /api/v1/streamers/{streamerID}/keys
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	streamerID := chi.URLParam(r, "streamerID")
	views, err := h.keys.StatusesForOwner(r.Context(), streamerID, h.now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"streamer_id": streamerID,
		"keys":        views,
	})
}

// ListViolations returns the streamer's violations, newest first.
// Optional query params: status, page, limit.
//
//	GET /api/v1/streamers/{streamerID}/violations
func (h *Handlers) ListViolations(w http.ResponseWriter, r *http.Request) {
	streamerID := chi.URLParam(r, "streamerID")
	page := ParsePagination(r, 50, 500)

	status := domain.ViolationStatus(strings.ToLower(r.URL.Query().Get("status")))
	switch status {
	case "", domain.ViolationPending, domain.ViolationResolved, domain.ViolationOverridden, domain.ViolationExpired:
	default:
		httputil.BadRequest(w, "unknown status "+string(status))
		return
	}

	vs, err := h.violations.List(r.Context(), streamerID, violation.ListFilter{
		Status: status,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if vs == nil {
		vs = []domain.ConflictViolation{}
	}
	httputil.OK(w, map[string]interface{}{
		"violations": vs,
		"pagination": page,
	})
}

type forceUnlockRequest struct {
	OwnerID  string `json:"owner_id"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// ForceUnlock returns a key to Available regardless of its state.
//
//	POST /api/v1/admin/keys/force-unlock
func (h *Handlers) ForceUnlock(w http.ResponseWriter, r *http.Request) {
	var req forceUnlockRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.OwnerID == "" || req.Category == "" || req.Reason == "" {
		httputil.BadRequest(w, "owner_id, category and reason are required")
		return
	}

	reason := req.Reason
	if op := auth.Operator(r.Context()); op != "" {
		reason += " (by " + op + ")"
	}
	unlocked, err := h.coordinator.ForceUnlock(r.Context(), req.OwnerID, req.Category, reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"owner_id": req.OwnerID,
		"category": req.Category,
		"unlocked": unlocked,
	})
}

type ruleResponse struct {
	*domain.ConflictRule
	ConfigError string `json:"config_error,omitempty"`
}

// GetRule returns one conflict rule, active or not. A rule the engine skips
// because of a malformed config carries config_error.
//
//	GET /api/v1/admin/rules/{id}
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.coordinator.Rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	res := ruleResponse{ConflictRule: rule}
	if err := rule.CheckConfig(); err != nil {
		res.ConfigError = err.Error()
	}
	httputil.OK(w, res)
}

type reviewRequest struct {
	Note string `json:"note"`
}

// ResolveViolation marks a pending violation resolved.
//
//	POST /api/v1/admin/violations/{id}/resolve
func (h *Handlers) ResolveViolation(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.violations.Resolve)
}

// OverrideViolation marks a pending violation overridden.
//
//	POST /api/v1/admin/violations/{id}/override
func (h *Handlers) OverrideViolation(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.violations.Override)
}

type reviewFunc func(ctx context.Context, id, note string, now time.Time) (*domain.ConflictViolation, error)

func (h *Handlers) review(w http.ResponseWriter, r *http.Request, fn reviewFunc) {
	id := chi.URLParam(r, "id")
	var req reviewRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	v, err := fn(r.Context(), id, req.Note, h.now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, v)
}
