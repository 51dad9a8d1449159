package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/circuitbreaker"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/store"
)

// Worker is the per-channel delivery state machine. It owns the retry
// budget: transient failures increment the persisted counter, back off
// exponentially and release the message for redelivery; an exhausted budget
// or a permanent failure marks the record FAILED and parks the payload on
// the dead-letter queue.
type Worker struct {
	channel   domain.Channel
	transport Transport
	events    store.EventStore
	bus       bus.Bus
	dlq       string

	maxRetries  int
	backoffBase time.Duration
	breaker     *circuitbreaker.CircuitBreaker

	sleep func(ctx context.Context, d time.Duration)
	log   zerolog.Logger
}

func NewWorker(ch domain.Channel, t Transport, events store.EventStore, b bus.Bus, dlq string, maxRetries int, backoffBase time.Duration, breaker *circuitbreaker.CircuitBreaker) *Worker {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Worker{
		channel:     ch,
		transport:   t,
		events:      events,
		bus:         b,
		dlq:         dlq,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		breaker:     breaker,
		sleep:       sleepCtx,
		log:         logger.WithComponent("delivery").With().Str("channel", string(ch)).Logger(),
	}
}

// Handle implements dispatch.Handler. A nil return acknowledges the
// message; an error releases it for redelivery after the backoff already
// slept here. A redelivered message for a channel that already reached
// SUCCESS or FAILED is acknowledged without touching the record or the
// transport.
func (w *Worker) Handle(ctx context.Context, m bus.Message) error {
	payload, err := contracts.Unwrap(m.Body)
	if err != nil {
		w.log.Warn().Err(err).Str("message_id", m.ID).Msg("dropping malformed channel message")
		metrics.RecordFailed(string(w.channel), "malformed")
		return nil
	}
	if payload.EventID == "" {
		w.log.Warn().Str("message_id", m.ID).Msg("dropping channel message without event id")
		metrics.RecordFailed(string(w.channel), "missing_event_id")
		return nil
	}

	log := w.log.With().Str("event_id", payload.EventID).Logger()

	// The persisted counter is authoritative so a crashed worker resumes
	// where it left off; the payload counter is the fallback when the
	// record cannot be read. A channel that already settled never re-enters
	// the machine: terminal statuses are write-once.
	retryCount := payload.RetryCount(w.channel)
	if e := w.loadRecord(ctx, payload.EventID); e != nil {
		if st := e.ChannelStatus(w.channel); st.Terminal() {
			log.Info().Str("status", string(st)).Msg("channel already settled, dropping duplicate delivery")
			return nil
		}
		retryCount = e.RetryCount(w.channel)
	}

	if retryCount >= w.maxRetries {
		log.Warn().Int("retry_count", retryCount).Msg("retry budget already exhausted")
		w.fail(ctx, payload, retryCount, "max_retries")
		return nil
	}

	w.markProcessing(ctx, payload.EventID)

	start := time.Now()
	err = w.callTransport(ctx, payload)
	if err == nil {
		w.markSuccess(ctx, payload.EventID)
		metrics.RecordSent(string(w.channel), time.Since(start))
		log.Info().Msg("notification delivered")
		return nil
	}

	if apperrors.IsPermanent(err) {
		log.Warn().Err(err).Msg("permanent delivery failure")
		w.fail(ctx, payload, retryCount, "permanent")
		return nil
	}

	retryCount++
	payload.SetRetryCount(w.channel, retryCount)
	if uerr := w.events.UpdateRetry(ctx, payload.EventID, w.channel, retryCount); uerr != nil {
		log.Error().Err(uerr).Msg("failed to persist retry counter")
	}
	metrics.RecordRetryAttempt(string(w.channel))

	if retryCount >= w.maxRetries {
		log.Warn().Err(err).Int("retry_count", retryCount).Msg("retry budget exhausted")
		w.fail(ctx, payload, retryCount, "max_retries")
		return nil
	}

	backoff := w.backoffBase << (retryCount - 1)
	log.Warn().Err(err).
		Int("retry_count", retryCount).
		Dur("backoff", backoff).
		Msg("transient delivery failure, backing off")
	w.sleep(ctx, backoff)
	return err
}

func (w *Worker) callTransport(ctx context.Context, p *contracts.EventPayload) error {
	if w.breaker == nil {
		return w.transport.Send(ctx, p)
	}
	return w.breaker.Call(ctx, func() error {
		return w.transport.Send(ctx, p)
	})
}

func (w *Worker) loadRecord(ctx context.Context, eventID string) *domain.Event {
	e, err := w.events.Get(ctx, eventID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			w.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to read event record, using payload counter")
		}
		return nil
	}
	return e
}

func (w *Worker) markProcessing(ctx context.Context, eventID string) {
	if err := w.events.UpdateChannelStatus(ctx, eventID, w.channel, domain.StatusProcessing); err != nil {
		w.log.Error().Err(err).Str("event_id", eventID).Msg("failed to mark channel processing")
	}
	if err := w.events.UpdateStatus(ctx, eventID, domain.StatusProcessing); err != nil {
		w.log.Error().Err(err).Str("event_id", eventID).Msg("failed to mark event processing")
	}
}

func (w *Worker) markSuccess(ctx context.Context, eventID string) {
	if err := w.events.UpdateChannelStatus(ctx, eventID, w.channel, domain.StatusSuccess); err != nil {
		w.log.Error().Err(err).Str("event_id", eventID).Msg("failed to mark channel success")
	}
	if err := w.events.UpdateStatus(ctx, eventID, domain.StatusSuccess); err != nil {
		w.log.Error().Err(err).Str("event_id", eventID).Msg("failed to mark event success")
	}
}

// fail marks the record FAILED and parks the payload on the DLQ. A DLQ
// write failure is logged but does not resurrect the message; the record
// already says FAILED.
func (w *Worker) fail(ctx context.Context, p *contracts.EventPayload, retryCount int, reason string) {
	p.SetRetryCount(w.channel, retryCount)

	if err := w.events.UpdateChannelStatus(ctx, p.EventID, w.channel, domain.StatusFailed); err != nil {
		w.log.Error().Err(err).Str("event_id", p.EventID).Msg("failed to mark channel failed")
	}
	if err := w.events.UpdateStatus(ctx, p.EventID, domain.StatusFailed); err != nil {
		w.log.Error().Err(err).Str("event_id", p.EventID).Msg("failed to mark event failed")
	}

	metrics.RecordFailed(string(w.channel), reason)

	body, err := json.Marshal(p)
	if err != nil {
		w.log.Error().Err(err).Str("event_id", p.EventID).Msg("failed to encode dead letter")
		return
	}
	if err := w.bus.Send(ctx, w.dlq, body); err != nil {
		w.log.Error().Err(err).Str("event_id", p.EventID).Msg("failed to park message on dead-letter queue")
		return
	}
	metrics.RecordDLQMessage(string(w.channel))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
