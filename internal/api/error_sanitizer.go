package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/httputil"
	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/ignite/keylock/internal/service/catalog"
	"github.com/ignite/keylock/internal/service/join"
	"github.com/ignite/keylock/internal/service/violation"
)

// =============================================================================
// ERROR MAPPING
// Domain errors map to stable status codes and machine-readable codes.
// Everything else is a 500 with a generic message; the full error is logged
// server-side and never leaked to callers.
// =============================================================================

const (
	codeConfiguration      = "configuration_error"
	codeNotFound           = "not_found"
	codeInvalidTransition  = "invalid_transition"
	codeCompensationFailed = "compensation_failed"
	codeTimeout            = "timeout"
)

// respondError writes the response for err.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, codeConfiguration, cfgErr.Error())
	case errors.Is(err, domain.ErrCampaignNotFound),
		errors.Is(err, domain.ErrStreamerNotFound),
		errors.Is(err, violation.ErrNotFound),
		errors.Is(err, catalog.ErrRuleNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, codeNotFound, notFoundMessage(err))
	case errors.Is(err, violation.ErrInvalidTransition):
		httputil.ErrorCode(w, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, join.ErrCompensationFailed):
		// Already logged as an anomaly by the coordinator.
		httputil.ErrorCode(w, http.StatusInternalServerError, codeCompensationFailed,
			"participation could not be recorded and the key is still locked")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "path", r.URL.Path, "error", err)
		httputil.ErrorCode(w, http.StatusGatewayTimeout, codeTimeout, "request timed out")
	default:
		logger.Error("request failed", "path", r.URL.Path, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound):
		return domain.ErrCampaignNotFound.Error()
	case errors.Is(err, domain.ErrStreamerNotFound):
		return domain.ErrStreamerNotFound.Error()
	case errors.Is(err, catalog.ErrRuleNotFound):
		return catalog.ErrRuleNotFound.Error()
	default:
		return violation.ErrNotFound.Error()
	}
}
