package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rozmerigpt/user-limiter/internal/clock"
	"github.com/rozmerigpt/user-limiter/internal/models"
	"github.com/rozmerigpt/user-limiter/internal/observability"
	"github.com/rozmerigpt/user-limiter/internal/quota"
	"github.com/rozmerigpt/user-limiter/internal/storage"
	"github.com/rozmerigpt/user-limiter/internal/version"
)

// maxRequestBody caps the quota request body. The real payload is a handful
// of short JSON fields; anything near this limit is garbage.
const maxRequestBody = 1 << 20

// healthPingTimeout bounds the storage probe during a health check.
const healthPingTimeout = 2 * time.Second

// Handlers contains HTTP handlers for the quota API
type Handlers struct {
	quotaService quota.ServiceInterface
	storage      storage.Storage
	metrics      *observability.QuotaMetrics
	startTime    time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithStorage wires the backing store into the health check so it reports
// real connectivity instead of a hardcoded status.
func WithStorage(store storage.Storage) HandlerOption {
	return func(h *Handlers) {
		h.storage = store
	}
}

// WithQuotaMetrics attaches fail-open accounting. A nil value is accepted
// and disables recording.
func WithQuotaMetrics(metrics *observability.QuotaMetrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = metrics
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(quotaService quota.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		quotaService: quotaService,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Quota handles quota evaluation requests from the browser extension
// POST /api/v1/quota
//
// The action field selects between consuming a unit (check_and_increment)
// and reading the current allowance (get_remaining). Malformed input is
// rejected before any counter is touched; once the request is past
// validation, evaluation failures degrade open rather than blocking the
// user.
func (h *Handlers) Quota(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req models.QuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, models.ErrorCodeBadRequest, "Request body too large")
			return
		}
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	// Identity inputs come from transport, never from the body.
	rc := requestContext(r)

	var (
		response interface{}
		err      error
	)
	switch req.Action {
	case models.ActionCheckAndIncrement:
		response, err = h.quotaService.CheckAndIncrement(r.Context(), &req, rc)
	case models.ActionGetRemaining:
		response, err = h.quotaService.GetRemaining(r.Context(), &req, rc)
	default:
		// Unreachable after Validate, kept so a future action cannot fall
		// through to a consuming evaluation.
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
			fmt.Sprintf("unknown action '%s'", req.Action))
		return
	}

	if err != nil {
		var serviceErr *quota.ServiceError
		if errors.As(err, &serviceErr) {
			h.writeErrorResponse(w, r, serviceErr.StatusCode, serviceErr.Code, serviceErr.Message)
			return
		}

		// Anything else is an evaluation-side failure. Those never block a
		// user: report a minimal allowance and let the request through.
		slog.Error("Quota evaluation failed, failing open",
			"action", req.Action,
			"error", err,
			"request_id", GetRequestID(r))
		h.metrics.RecordFailOpen(r.Context())
		h.writeJSONResponse(w, http.StatusOK, failOpenResponse(req.Action))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// failOpenResponse builds the degraded-mode body for the given action. The
// allowance is deliberately minimal so a broken backend does not advertise a
// full day's quota.
func failOpenResponse(action string) interface{} {
	reset := clock.NextReset(time.Now())
	message := "Quota service degraded; request allowed."

	if action == models.ActionGetRemaining {
		return &models.QuotaRemainingResponse{
			Remaining: quota.DefaultRemainingOnFailure,
			ResetTime: reset,
			Message:   message,
		}
	}
	return &models.QuotaDecisionResponse{
		Allowed:   true,
		Remaining: quota.DefaultRemainingOnFailure,
		ResetTime: reset,
		Message:   message,
	}
}

// HealthCheck handles health check requests
// GET /health
//
// The endpoint always answers 200: the service stays usable in fail-open
// mode even when storage is down, so a broken backend demotes the status to
// degraded instead of failing the probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.storage.Ping(ctx); err != nil {
			response.Status = models.StatusDegraded
			response.AddComponent("storage", models.StatusUnhealthy, err.Error())
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; all that is left is to record it.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = GetRequestID(r)

	h.writeJSONResponse(w, statusCode, errorResp)
}
