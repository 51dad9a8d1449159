package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/health"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/ratelimit"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/store"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/validation"
)

// EventPublisher schedules a batch of events for asynchronous fan-out and
// returns the number scheduled.
type EventPublisher interface {
	PublishBatch(ctx context.Context, payloads []*contracts.EventPayload) int
}

// RateLimitConfig tunes the per-user publish limiter.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// Handler serves the HTTP API: event publishing, event lookups, health.
type Handler struct {
	publisher EventPublisher
	events    store.EventStore
	limiter   *ratelimit.RateLimiter
	rl        RateLimitConfig
	checker   *health.Checker
	log       zerolog.Logger
}

func NewHandler(p EventPublisher, events store.EventStore, limiter *ratelimit.RateLimiter, rl RateLimitConfig, checker *health.Checker) *Handler {
	return &Handler{
		publisher: p,
		events:    events,
		limiter:   limiter,
		rl:        rl,
		checker:   checker,
		log:       logger.WithComponent("rest"),
	}
}

type publishRequest struct {
	Events []*contracts.EventPayload `json:"events"`
}

type publishResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// PublishEvents accepts a batch of events, validates each one, applies the
// per-user rate limit and hands the survivors to the fan-out publisher.
// The batch is accepted as a whole even when individual events are
// rejected; rejects are counted in the response.
func (h *Handler) PublishEvents(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewInvalidInput("malformed request body: "+err.Error()))
		return
	}
	if len(req.Events) == 0 {
		writeError(w, apperrors.NewInvalidInput("no events in request"))
		return
	}

	accepted := make([]*contracts.EventPayload, 0, len(req.Events))
	rejected := 0
	for _, p := range req.Events {
		if err := validation.ValidateEventPayload(p); err != nil {
			h.log.Warn().Err(err).Msg("rejecting invalid event")
			rejected++
			continue
		}
		if h.rl.Enabled && h.limiter != nil {
			if err := h.limiter.Check(r.Context(), p.UserID, h.rl.Limit, h.rl.Window); err != nil {
				h.log.Warn().Str("user_id", p.UserID).Msg("rejecting rate-limited event")
				rejected++
				continue
			}
		}
		accepted = append(accepted, p)
	}

	published := h.publisher.PublishBatch(r.Context(), accepted)
	rejected += len(accepted) - published

	writeJSON(w, http.StatusAccepted, publishResponse{Accepted: published, Rejected: rejected})
}

type eventResponse struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`

	StatusSMS   string `json:"status_sms"`
	StatusEmail string `json:"status_email"`
	StatusPush  string `json:"status_push"`

	RetryCountSMS   int `json:"retry_count_sms"`
	RetryCountEmail int `json:"retry_count_email"`
	RetryCountPush  int `json:"retry_count_push"`

	Payload   domain.EventMeta `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toEventResponse(e *domain.Event) eventResponse {
	return eventResponse{
		EventID:   e.EventID,
		Status:    string(e.Status),
		UserID:    e.UserID,
		EventType: string(e.EventType),

		StatusSMS:   string(e.StatusSMS),
		StatusEmail: string(e.StatusEmail),
		StatusPush:  string(e.StatusPush),

		RetryCountSMS:   e.RetryCountSMS,
		RetryCountEmail: e.RetryCountEmail,
		RetryCountPush:  e.RetryCountPush,

		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// GetEvent returns one event record by id.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")
	e, err := h.events.Get(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
	Count  int             `json:"count"`
}

// ListEvents filters event records on a whitelisted column.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filterKey := r.URL.Query().Get("filter_key")
	filterValue := r.URL.Query().Get("filter_value")
	if filterKey == "" || filterValue == "" {
		writeError(w, apperrors.NewInvalidInput("filter_key and filter_value are required"))
		return
	}

	events, err := h.events.Scan(r.Context(), filterKey, filterValue)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: out, Count: len(out)})
}

type healthResponse struct {
	Status string                   `json:"status"`
	Checks map[string]health.Result `json:"checks"`
}

// Healthz reports the service's dependency health.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	results, healthy := h.checker.Run(r.Context())
	status := http.StatusOK
	body := healthResponse{Status: "ok", Checks: results}
	if !healthy {
		status = http.StatusServiceUnavailable
		body.Status = "degraded"
	}
	writeJSON(w, status, body)
}
