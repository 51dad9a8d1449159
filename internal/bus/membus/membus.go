// Package membus is an in-process bus.Bus used by unit tests and local
// development. It keeps the broker contract the pipeline relies on:
// received messages are invisible until deleted, and released messages go
// back to the front of the queue.
package membus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
)

const pollInterval = 5 * time.Millisecond

type message struct {
	id   string
	body []byte
}

type queue struct {
	pending  []message
	inflight map[string]message
}

type Bus struct {
	mu       sync.Mutex
	queues   map[string]*queue
	bindings map[string][]string
	seq      int
}

func New() *Bus {
	return &Bus{
		queues:   make(map[string]*queue),
		bindings: make(map[string][]string),
	}
}

// Declare creates a queue if it does not exist.
func (b *Bus) Declare(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue(name)
}

// Bind subscribes a queue to a topic for Publish fanout.
func (b *Bus) Bind(topic, queueName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue(queueName)
	b.bindings[topic] = append(b.bindings[topic], queueName)
}

func (b *Bus) queue(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{inflight: make(map[string]message)}
		b.queues[name] = q
	}
	return q
}

func (b *Bus) nextID() string {
	b.seq++
	return fmt.Sprintf("m-%d", b.seq)
}

func (b *Bus) Publish(ctx context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	targets := b.bindings[topic]
	if len(targets) == 0 {
		return apperrors.NewRetryable("no queue bound to topic "+topic, nil)
	}
	for _, name := range targets {
		q := b.queue(name)
		q.pending = append(q.pending, message{id: b.nextID(), body: append([]byte(nil), body...)})
	}
	return nil
}

func (b *Bus) Send(ctx context.Context, queueName string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	q.pending = append(q.pending, message{id: b.nextID(), body: append([]byte(nil), body...)})
	return nil
}

func (b *Bus) Receive(ctx context.Context, queueName string, maxMessages int, wait time.Duration) ([]bus.Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := time.Now().Add(wait)

	for {
		b.mu.Lock()
		q := b.queue(queueName)
		n := len(q.pending)
		if n > 0 {
			if n > maxMessages {
				n = maxMessages
			}
			out := make([]bus.Message, 0, n)
			for _, m := range q.pending[:n] {
				q.inflight[m.id] = m
				out = append(out, bus.Message{ID: m.id, Body: m.body, ReceiptHandle: m.id})
			}
			q.pending = q.pending[n:]
			b.mu.Unlock()
			return out, nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (b *Bus) Delete(ctx context.Context, queueName, receiptHandle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	if _, ok := q.inflight[receiptHandle]; !ok {
		return apperrors.NewNotFound("no in-flight message " + receiptHandle)
	}
	delete(q.inflight, receiptHandle)
	return nil
}

func (b *Bus) DeleteBatch(ctx context.Context, queueName string, entries []bus.DeleteEntry) error {
	for _, e := range entries {
		if err := b.Delete(ctx, queueName, e.ReceiptHandle); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) Release(ctx context.Context, queueName, receiptHandle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	m, ok := q.inflight[receiptHandle]
	if !ok {
		return apperrors.NewNotFound("no in-flight message " + receiptHandle)
	}
	delete(q.inflight, receiptHandle)
	q.pending = append([]message{m}, q.pending...)
	return nil
}

// Depth returns the number of pending (visible) messages on a queue.
func (b *Bus) Depth(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue(queueName).pending)
}

// InflightCount returns the number of received-but-unacked messages.
func (b *Bus) InflightCount(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue(queueName).inflight)
}

// Drain removes and returns every pending message body on a queue.
func (b *Bus) Drain(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	out := make([][]byte, 0, len(q.pending))
	for _, m := range q.pending {
		out = append(out, m.body)
	}
	q.pending = nil
	return out
}
