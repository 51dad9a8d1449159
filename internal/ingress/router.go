package ingress

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/idempotency"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/store"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/validation"
)

// Router consumes the ingress queue, persists one record per event, and
// fans each event out to the per-channel priority queues. Malformed
// messages are dropped; messages that fail on persistence or enqueue are
// left on the queue for redelivery.
type Router struct {
	bus    bus.Bus
	cfg    *config.Config
	events store.EventStore
	prefs  store.PreferenceStore
	dedup  *idempotency.Store

	now func() time.Time
	log zerolog.Logger
}

func New(b bus.Bus, cfg *config.Config, events store.EventStore, prefs store.PreferenceStore, dedup *idempotency.Store) *Router {
	return &Router{
		bus:    b,
		cfg:    cfg,
		events: events,
		prefs:  prefs,
		dedup:  dedup,
		now:    time.Now,
		log:    logger.WithComponent("ingress"),
	}
}

// Run consumes the ingress queue until the context is cancelled.
func (r *Router) Run(ctx context.Context) {
	r.log.Info().Str("queue", r.cfg.IngressQueue).Msg("ingress router started")

	for {
		if ctx.Err() != nil {
			r.log.Info().Msg("ingress router stopped")
			return
		}

		msgs, err := r.bus.Receive(ctx, r.cfg.IngressQueue, r.cfg.BatchSize, r.cfg.IngressWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.log.Error().Err(err).Msg("failed to receive from ingress queue")
			sleepCtx(ctx, r.cfg.IdleSleep)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		acked := make([]bus.DeleteEntry, 0, len(msgs))
		for _, m := range msgs {
			if r.processMessage(ctx, m) {
				acked = append(acked, bus.DeleteEntry{ID: m.ID, ReceiptHandle: m.ReceiptHandle})
			}
		}
		if len(acked) > 0 {
			if err := r.bus.DeleteBatch(ctx, r.cfg.IngressQueue, acked); err != nil {
				r.log.Error().Err(err).Int("count", len(acked)).Msg("failed to delete ingress batch")
			}
		}
	}
}

// processMessage handles one ingress message and reports whether it should
// be acknowledged. Unparseable and suppressed messages are acknowledged so
// they never come back; store or enqueue failures leave the message on the
// queue.
func (r *Router) processMessage(ctx context.Context, m bus.Message) bool {
	payload, err := contracts.Unwrap(m.Body)
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", m.ID).Msg("dropping malformed ingress message")
		metrics.RecordEventIngested("malformed")
		return true
	}

	if err := validation.ValidateEventPayload(payload); err != nil {
		r.log.Warn().Err(err).Str("message_id", m.ID).Msg("dropping invalid event payload")
		metrics.RecordEventIngested("invalid")
		return true
	}

	// Publisher-supplied ids drive dedup only; the record itself gets a
	// fresh id so replays of the same source event stay observable.
	if payload.EventID != "" && r.dedup != nil {
		dup, err := r.dedup.CheckAndMark(ctx, payload.EventID)
		if err != nil {
			r.log.Warn().Err(err).Str("event_id", payload.EventID).Msg("dedup check failed, continuing")
		} else if dup {
			r.log.Info().Str("event_id", payload.EventID).Msg("duplicate event dropped")
			metrics.RecordIdempotencyHit()
			metrics.RecordEventIngested("duplicate")
			return true
		}
	}

	eventID := uuid.NewString()
	event := r.buildEvent(eventID, payload)

	if err := r.events.PutIfAbsent(ctx, event); err != nil {
		r.log.Error().Err(err).Str("event_id", eventID).Msg("failed to persist event record")
		return false
	}

	profile := r.loadProfile(ctx, payload.UserID)
	userType := resolveUserType(payload, profile)
	critical := IsCritical(payload, userType)

	if !critical && r.suppressed(payload, profile) {
		return true
	}

	routed, ok := r.fanOut(ctx, eventID, payload, profile, critical)
	if !ok {
		return false
	}

	metrics.RecordEventIngested("ok")
	r.log.Info().
		Str("event_id", eventID).
		Str("event_type", payload.EventType).
		Str("user_id", payload.UserID).
		Bool("critical", critical).
		Int("channels", routed).
		Msg("event routed")
	return true
}

func (r *Router) buildEvent(eventID string, p *contracts.EventPayload) *domain.Event {
	now := r.now().UTC()
	return &domain.Event{
		EventID:     eventID,
		Status:      domain.StatusStart,
		StatusSMS:   domain.StatusStart,
		StatusEmail: domain.StatusStart,
		StatusPush:  domain.StatusStart,
		UserID:      p.UserID,
		EventType:   domain.ParseEventType(p.EventType),

		RetryCountSMS:   p.RetryCountSMS,
		RetryCountEmail: p.RetryCountEmail,
		RetryCountPush:  p.RetryCountPush,

		Payload: domain.EventMeta{
			ParentID:   p.ParentID,
			ParentType: p.ParentType,
			Timestamp:  p.Timestamp,
			Priority:   domain.Priority(p.Priority),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// loadProfile falls back to defaults on a missing user or a store error.
func (r *Router) loadProfile(ctx context.Context, userID string) *domain.UserProfile {
	profile, err := r.prefs.Get(ctx, userID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("preference lookup failed, using defaults")
		}
		return &domain.UserProfile{Preferences: domain.DefaultPreferences()}
	}
	return profile
}

// resolveUserType prefers the payload's tier over the stored profile. The
// wire value is case-insensitive.
func resolveUserType(p *contracts.EventPayload, profile *domain.UserProfile) domain.UserType {
	if t := strings.TrimSpace(p.UserType); t != "" {
		return domain.UserType(strings.ToLower(t))
	}
	return profile.UserType
}

// IsCritical implements the priority predicate: interaction events that
// demand attention, explicitly high-priority payloads, and privileged
// account tiers all escalate.
func IsCritical(p *contracts.EventPayload, userType domain.UserType) bool {
	switch domain.ParseEventType(p.EventType) {
	case domain.EventMention, domain.EventComment, domain.EventReply:
		return true
	}
	if domain.Priority(p.Priority) == domain.PriorityHigh {
		return true
	}
	switch domain.UserType(strings.ToLower(string(userType))) {
	case domain.UserAdmin, domain.UserPremium:
		return true
	}
	return false
}

// suppressed applies user suppression rules to non-critical events.
func (r *Router) suppressed(p *contracts.EventPayload, profile *domain.UserProfile) bool {
	prefs := profile.Preferences
	if prefs.PriorityOnly {
		r.log.Info().Str("user_id", p.UserID).Msg("suppressed: priority-only user")
		metrics.RecordSuppressed("priority_only")
		return true
	}
	if prefs.QuietHours.Contains(r.now()) {
		r.log.Info().Str("user_id", p.UserID).Msg("suppressed: quiet hours")
		metrics.RecordSuppressed("quiet_hours")
		return true
	}
	return false
}

// fanOut enqueues the payload on each enabled channel's priority queue and
// returns the number of channels routed plus whether every enqueue
// succeeded. Partial failure reports !ok so the source message redelivers.
func (r *Router) fanOut(ctx context.Context, eventID string, p *contracts.EventPayload, profile *domain.UserProfile, critical bool) (int, bool) {
	out := *p
	out.EventID = eventID

	body, err := contracts.Wrap(&out)
	if err != nil {
		r.log.Error().Err(err).Str("event_id", eventID).Msg("failed to encode routed payload")
		return 0, true
	}

	priority := "non_critical"
	if critical {
		priority = "critical"
	}

	routed := 0
	for _, ch := range domain.Channels() {
		if !r.channelEnabled(p, profile, ch) {
			continue
		}
		pair, err := r.cfg.ChannelQueues(string(ch))
		if err != nil {
			r.log.Error().Err(err).Msg("unroutable channel")
			continue
		}
		queue := pair.NonCritical
		if critical {
			queue = pair.Critical
		}
		if err := r.bus.Send(ctx, queue, body); err != nil {
			r.log.Error().Err(err).Str("event_id", eventID).Str("queue", queue).Msg("failed to enqueue channel message")
			return routed, false
		}
		metrics.RecordChannelEnqueued(string(ch), priority)
		routed++
	}
	return routed, true
}

// channelEnabled combines the user's stored toggles with the payload's own
// channel selection when one is present.
func (r *Router) channelEnabled(p *contracts.EventPayload, profile *domain.UserProfile, ch domain.Channel) bool {
	if !profile.Preferences.ChannelEnabled(ch) {
		return false
	}
	if p.Notifications != nil {
		return p.ChannelEnabled(ch)
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
