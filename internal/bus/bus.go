package bus

import (
	"context"
	"time"
)

// Message is one received queue message. ReceiptHandle identifies the
// in-flight delivery for Delete/Release; the logical identity of the
// payload is the event id inside the body.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
}

// DeleteEntry pairs a message id with its receipt handle for batch deletes.
type DeleteEntry struct {
	ID            string
	ReceiptHandle string
}

// Bus is the only seam through which the pipeline talks to a broker.
// Delivery is at-least-once: a received message stays invisible until it is
// deleted or released, and comes back if the consumer dies holding it.
type Bus interface {
	// Publish fans the body out through the named topic to every bound queue.
	Publish(ctx context.Context, topic string, body []byte) error

	// Send enqueues the body directly on one queue.
	Send(ctx context.Context, queue string, body []byte) error

	// Receive long-polls the queue for up to wait, returning at most
	// maxMessages. An empty slice and nil error means the poll timed out.
	Receive(ctx context.Context, queue string, maxMessages int, wait time.Duration) ([]Message, error)

	// Delete acknowledges a message so it is never redelivered.
	Delete(ctx context.Context, queue, receiptHandle string) error

	// DeleteBatch acknowledges a batch in one call. Per-entry failures are
	// reported through the returned error but do not abort the rest.
	DeleteBatch(ctx context.Context, queue string, entries []DeleteEntry) error

	// Release returns an unprocessable message to the queue for redelivery.
	Release(ctx context.Context, queue, receiptHandle string) error
}
