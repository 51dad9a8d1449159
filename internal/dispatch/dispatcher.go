package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/metrics"
)

// Handler processes one channel message. A nil return acknowledges the
// message; a retryable error releases it for redelivery, anything else
// drops it.
type Handler interface {
	Handle(ctx context.Context, m bus.Message) error
}

// Options tunes one dispatcher loop.
type Options struct {
	BatchSize int
	Wait      time.Duration
	IdleSleep time.Duration
}

const settleTimeout = 10 * time.Second

// Dispatcher drains one channel's queue pair with strict priority: the
// critical queue is polled first every cycle, and the non-critical queue is
// only consulted when the critical queue came back empty. Messages within a
// batch are handled in parallel; a started batch is settled before the loop
// exits, with cancellation observed inside the handler's own waits.
type Dispatcher struct {
	bus         bus.Bus
	critical    string
	nonCritical string
	handler     Handler
	opts        Options
	log         zerolog.Logger
}

func New(b bus.Bus, critical, nonCritical string, h Handler, opts Options) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = time.Second
	}
	return &Dispatcher{
		bus:         b,
		critical:    critical,
		nonCritical: nonCritical,
		handler:     h,
		opts:        opts,
		log:         logger.WithComponent("dispatcher").With().Str("queue", nonCritical).Logger(),
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info().Str("critical_queue", d.critical).Msg("dispatcher started")

	for {
		if ctx.Err() != nil {
			d.log.Info().Msg("dispatcher stopped")
			return
		}

		n, err := d.drainOnce(ctx, d.critical)
		if err != nil {
			d.pollError(ctx, d.critical, err)
			continue
		}
		if n > 0 {
			continue
		}

		n, err = d.drainOnce(ctx, d.nonCritical)
		if err != nil {
			d.pollError(ctx, d.nonCritical, err)
			continue
		}
		if n == 0 {
			sleepCtx(ctx, d.opts.IdleSleep)
		}
	}
}

// drainOnce receives one batch from the queue and handles it, returning the
// number of messages received.
func (d *Dispatcher) drainOnce(ctx context.Context, queue string) (int, error) {
	msgs, err := d.bus.Receive(ctx, queue, d.opts.BatchSize, d.opts.Wait)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, m := range msgs {
		metrics.RecordMessageConsumed(queue)
		wg.Add(1)
		go func(m bus.Message) {
			defer wg.Done()
			d.handleOne(ctx, queue, m)
		}(m)
	}
	wg.Wait()
	return len(msgs), nil
}

// handleOne runs the handler, then settles the message. Settlement uses a
// detached context so an ack or release still lands when the handler was
// interrupted by shutdown.
func (d *Dispatcher) handleOne(ctx context.Context, queue string, m bus.Message) {
	settleCtx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if err := d.handler.Handle(ctx, m); err != nil {
		if !apperrors.IsRetryable(err) {
			d.log.Warn().Err(err).Str("message_id", m.ID).Msg("handler failed permanently, dropping message")
			if derr := d.bus.Delete(settleCtx, queue, m.ReceiptHandle); derr != nil {
				d.log.Error().Err(derr).Str("message_id", m.ID).Msg("failed to delete message")
			}
			return
		}
		d.log.Warn().Err(err).Str("message_id", m.ID).Msg("handler failed, releasing message")
		if rerr := d.bus.Release(settleCtx, queue, m.ReceiptHandle); rerr != nil {
			d.log.Error().Err(rerr).Str("message_id", m.ID).Msg("failed to release message")
		}
		return
	}

	if err := d.bus.Delete(settleCtx, queue, m.ReceiptHandle); err != nil {
		d.log.Error().Err(err).Str("message_id", m.ID).Msg("failed to delete message")
	}
}

func (d *Dispatcher) pollError(ctx context.Context, queue string, err error) {
	if ctx.Err() != nil {
		return
	}
	d.log.Error().Err(err).Str("poll_queue", queue).Msg("failed to receive batch")
	sleepCtx(ctx, d.opts.IdleSleep)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
