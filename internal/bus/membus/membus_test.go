package membus

import (
	"context"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveDelete(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Send(ctx, "q1", []byte("one")))
	require.NoError(t, b.Send(ctx, "q1", []byte("two")))

	msgs, err := b.Receive(ctx, "q1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, b.Depth("q1"))
	assert.Equal(t, 2, b.InflightCount("q1"))

	require.NoError(t, b.Delete(ctx, "q1", msgs[0].ReceiptHandle))
	assert.Equal(t, 1, b.InflightCount("q1"))
}

func TestReceive_RespectsMax(t *testing.T) {
	b := New()
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, b.Send(ctx, "q", []byte("m")))
	}

	msgs, err := b.Receive(ctx, "q", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)
	assert.Equal(t, 5, b.Depth("q"))
}

func TestReceive_LongPollTimesOut(t *testing.T) {
	b := New()
	start := time.Now()
	msgs, err := b.Receive(context.Background(), "empty", 10, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRelease_RedeliversAtFront(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Send(ctx, "q", []byte("first")))
	require.NoError(t, b.Send(ctx, "q", []byte("second")))

	msgs, err := b.Receive(ctx, "q", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, b.Release(ctx, "q", msgs[0].ReceiptHandle))

	again, err := b.Receive(ctx, "q", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "first", string(again[0].Body))
}

func TestPublish_FansOutToBoundQueues(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.Bind("event", "event_queue")
	b.Bind("event", "audit_queue")

	require.NoError(t, b.Publish(ctx, "event", []byte("payload")))
	assert.Equal(t, 1, b.Depth("event_queue"))
	assert.Equal(t, 1, b.Depth("audit_queue"))
}

func TestPublish_UnboundTopicErrors(t *testing.T) {
	b := New()
	assert.Error(t, b.Publish(context.Background(), "nope", []byte("x")))
}

func TestDeleteBatch(t *testing.T) {
	b := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Send(ctx, "q", []byte("m")))
	}
	msgs, err := b.Receive(ctx, "q", 10, 10*time.Millisecond)
	require.NoError(t, err)

	entries := make([]bus.DeleteEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, bus.DeleteEntry{ID: m.ID, ReceiptHandle: m.ReceiptHandle})
	}
	require.NoError(t, b.DeleteBatch(ctx, "q", entries))
	assert.Equal(t, 0, b.InflightCount("q"))
}
