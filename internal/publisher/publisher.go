package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/metrics"
)

// Publisher fans batches of events out onto the ingress topic. It chunks
// large batches, publishes chunks on a bounded worker pool in the
// background, and retries each item a few times. Item failures are
// isolated: one bad event never blocks the rest of the batch, and a slow
// broker never blocks the producer's call.
type Publisher struct {
	bus      bus.Bus
	topic    string
	chunk    int
	attempts int

	sem chan struct{}
	wg  sync.WaitGroup
	log zerolog.Logger
}

func New(b bus.Bus, topic string, chunk, workers, attempts int) *Publisher {
	if chunk <= 0 {
		chunk = 10
	}
	if workers <= 0 {
		workers = 1
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Publisher{
		bus:      b,
		topic:    topic,
		chunk:    chunk,
		attempts: attempts,
		sem:      make(chan struct{}, workers),
		log:      logger.WithComponent("publisher"),
	}
}

// PublishBatch wraps each payload in the fanout envelope and schedules the
// chunks for background publication, returning immediately with the number
// of events scheduled. Failed items are logged and counted; they never fail
// the call.
func (p *Publisher) PublishBatch(ctx context.Context, payloads []*contracts.EventPayload) int {
	if len(payloads) == 0 {
		return 0
	}

	// publication outlives the producer's request context
	bg := context.WithoutCancel(ctx)

	for start := 0; start < len(payloads); start += p.chunk {
		end := min(start+p.chunk, len(payloads))
		items := payloads[start:end]

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.sem <- struct{}{}
			defer func() { <-p.sem }()
			p.publishChunk(bg, items)
		}()
	}
	return len(payloads)
}

// Drain blocks until every scheduled chunk has been published or given up.
func (p *Publisher) Drain() {
	p.wg.Wait()
}

func (p *Publisher) publishChunk(ctx context.Context, items []*contracts.EventPayload) {
	for _, item := range items {
		body, err := contracts.Wrap(item)
		if err != nil {
			p.log.Error().Err(err).Str("event_type", item.EventType).Msg("failed to encode event")
			metrics.RecordPublished("encode_error")
			continue
		}
		if err := p.publishWithRetry(ctx, body); err != nil {
			p.log.Error().Err(err).
				Str("event_type", item.EventType).
				Str("user_id", item.UserID).
				Msg("failed to publish event")
			metrics.RecordPublished("error")
			continue
		}
		metrics.RecordPublished("ok")
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		lastErr = p.bus.Publish(ctx, p.topic, body)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < p.attempts {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
