package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
)

const getPollInterval = 100 * time.Millisecond

// Bus implements bus.Bus on RabbitMQ. Receive is a polled basic.get so the
// pipeline keeps the pull-batch shape of its dispatchers; a message fetched
// with autoAck=false stays unacked until Delete (ack) or Release (nack with
// requeue).
//
// Each queue gets its own channel because acks must go through the channel
// that issued the delivery tag. The publisher has a dedicated channel.
type Bus struct {
	url string

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	queues map[string]*queueChannel
}

type queueChannel struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func New(url string) (*Bus, error) {
	b := &Bus{url: url, queues: make(map[string]*queueChannel)}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return apperrors.NewRetryable("rabbit dial failed", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return apperrors.NewRetryable("rabbit channel open failed", err)
	}
	b.conn = conn
	b.pubCh = pubCh
	return nil
}

// DeclareTopology declares every queue plus the ingress fanout exchange and
// binds the ingress queue to it. Idempotent.
func (b *Bus) DeclareTopology(topic, ingressQueue string, queues []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range queues {
		if _, err := b.pubCh.QueueDeclare(
			q,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := b.pubCh.ExchangeDeclare(topic, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	if err := b.pubCh.QueueBind(ingressQueue, "", topic, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", ingressQueue, topic, err)
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubCh == nil {
		return apperrors.NewRetryable("publisher channel not ready", nil)
	}
	err := b.pubCh.PublishWithContext(
		ctx,
		topic,
		"",    // routing key (fanout ignores it)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return apperrors.NewRetryable("publish failed", err)
	}
	return nil
}

func (b *Bus) Send(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubCh == nil {
		return apperrors.NewRetryable("publisher channel not ready", nil)
	}
	err := b.pubCh.PublishWithContext(
		ctx,
		"", // default exchange routes by queue name
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return apperrors.NewRetryable("send failed", err)
	}
	return nil
}

func (b *Bus) Receive(ctx context.Context, queue string, maxMessages int, wait time.Duration) ([]bus.Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	qc, err := b.queueChannel(queue)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	var out []bus.Message

	for {
		qc.mu.Lock()
		d, ok, err := qc.ch.Get(queue, false)
		qc.mu.Unlock()
		if err != nil {
			if len(out) > 0 {
				// keep what we already hold; the caller acks or releases it
				return out, nil
			}
			b.dropQueueChannel(queue)
			return nil, apperrors.NewRetryable("receive failed", err)
		}
		if ok {
			out = append(out, bus.Message{
				ID:            d.MessageId,
				Body:          d.Body,
				ReceiptHandle: strconv.FormatUint(d.DeliveryTag, 10),
			})
			if len(out) >= maxMessages {
				return out, nil
			}
			continue
		}
		if len(out) > 0 || time.Now().After(deadline) {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(getPollInterval):
		}
	}
}

func (b *Bus) Delete(ctx context.Context, queue, receiptHandle string) error {
	tag, err := strconv.ParseUint(receiptHandle, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInput("bad receipt handle: " + receiptHandle)
	}
	qc, err := b.queueChannel(queue)
	if err != nil {
		return err
	}
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if err := qc.ch.Ack(tag, false); err != nil {
		return apperrors.NewRetryable("ack failed", err)
	}
	return nil
}

func (b *Bus) DeleteBatch(ctx context.Context, queue string, entries []bus.DeleteEntry) error {
	var errs []error
	for _, e := range entries {
		if err := b.Delete(ctx, queue, e.ReceiptHandle); err != nil {
			log := logger.WithComponent("rabbitmq")
			log.Error().
				Err(err).
				Str("queue", queue).
				Str("message_id", e.ID).
				Msg("batch delete entry failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) Release(ctx context.Context, queue, receiptHandle string) error {
	tag, err := strconv.ParseUint(receiptHandle, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInput("bad receipt handle: " + receiptHandle)
	}
	qc, err := b.queueChannel(queue)
	if err != nil {
		return err
	}
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if err := qc.ch.Nack(tag, false, true); err != nil {
		return apperrors.NewRetryable("nack failed", err)
	}
	return nil
}

func (b *Bus) queueChannel(queue string) (*queueChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if qc, ok := b.queues[queue]; ok {
		return qc, nil
	}
	if b.conn == nil {
		return nil, apperrors.NewRetryable("bus not connected", nil)
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, apperrors.NewRetryable("channel open failed", err)
	}
	qc := &queueChannel{ch: ch}
	b.queues[queue] = qc
	return qc, nil
}

// dropQueueChannel discards a broken per-queue channel so the next Receive
// opens a fresh one. Unacked deliveries on the dropped channel are requeued
// by the broker.
func (b *Bus) dropQueueChannel(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if qc, ok := b.queues[queue]; ok {
		_ = qc.ch.Close()
		delete(b.queues, queue)
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for q, qc := range b.queues {
		_ = qc.ch.Close()
		delete(b.queues, q)
	}
	if b.pubCh != nil {
		_ = b.pubCh.Close()
		b.pubCh = nil
	}
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

// Ping reports broker liveness for health checks.
func (b *Bus) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		return apperrors.NewRetryable("rabbit connection closed", nil)
	}
	return nil
}
