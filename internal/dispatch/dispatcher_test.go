package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus/membus"
)

type recordingHandler struct {
	mu      sync.Mutex
	seen    [][]byte
	failers map[string]int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{failers: make(map[string]int)}
}

func (h *recordingHandler) Handle(ctx context.Context, m bus.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := h.failers[string(m.Body)]; n > 0 {
		h.failers[string(m.Body)] = n - 1
		return errors.New("transient handler failure")
	}
	h.seen = append(h.seen, m.Body)
	return nil
}

func (h *recordingHandler) bodies() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.seen))
	for _, b := range h.seen {
		out = append(out, string(b))
	}
	return out
}

func opts() Options {
	return Options{BatchSize: 10, Wait: 20 * time.Millisecond, IdleSleep: 5 * time.Millisecond}
}

func runFor(t *testing.T, d *Dispatcher, dur time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(dur + 2*time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestRun_DrainsBothQueues(t *testing.T) {
	mb := membus.New()
	mb.Declare("crit")
	mb.Declare("noncrit")
	require.NoError(t, mb.Send(context.Background(), "crit", []byte("c1")))
	require.NoError(t, mb.Send(context.Background(), "noncrit", []byte("n1")))

	h := newRecordingHandler()
	d := New(mb, "crit", "noncrit", h, opts())
	runFor(t, d, 300*time.Millisecond)

	assert.ElementsMatch(t, []string{"c1", "n1"}, h.bodies())
	assert.Equal(t, 0, mb.Depth("crit"))
	assert.Equal(t, 0, mb.Depth("noncrit"))
	assert.Equal(t, 0, mb.InflightCount("crit"))
	assert.Equal(t, 0, mb.InflightCount("noncrit"))
}

func TestRun_CriticalDrainedBeforeNonCritical(t *testing.T) {
	mb := membus.New()
	mb.Declare("crit")
	mb.Declare("noncrit")
	ctx := context.Background()
	// more criticals than one batch so the loop must come back to the
	// critical queue before touching the backlog
	for i := 0; i < 15; i++ {
		require.NoError(t, mb.Send(ctx, "crit", []byte{'c'}))
	}
	require.NoError(t, mb.Send(ctx, "noncrit", []byte{'n'}))

	h := newRecordingHandler()
	o := opts()
	o.BatchSize = 5
	d := New(mb, "crit", "noncrit", h, o)
	runFor(t, d, 500*time.Millisecond)

	bodies := h.bodies()
	require.Len(t, bodies, 16)
	// the non-critical message is handled last
	assert.Equal(t, "n", bodies[15])
	for _, b := range bodies[:15] {
		assert.Equal(t, "c", b)
	}
}

func TestRun_HandlerErrorReleasesForRedelivery(t *testing.T) {
	mb := membus.New()
	mb.Declare("crit")
	mb.Declare("noncrit")
	require.NoError(t, mb.Send(context.Background(), "noncrit", []byte("flaky")))

	h := newRecordingHandler()
	h.failers["flaky"] = 2
	d := New(mb, "crit", "noncrit", h, opts())
	runFor(t, d, 500*time.Millisecond)

	assert.Equal(t, []string{"flaky"}, h.bodies())
	assert.Equal(t, 0, mb.Depth("noncrit"))
	assert.Equal(t, 0, mb.InflightCount("noncrit"))
}

func TestRun_NonRetryableHandlerErrorDropsMessage(t *testing.T) {
	mb := membus.New()
	mb.Declare("crit")
	mb.Declare("noncrit")
	require.NoError(t, mb.Send(context.Background(), "noncrit", []byte("poison")))

	var mu sync.Mutex
	calls := 0
	h := handlerFunc(func(ctx context.Context, m bus.Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return apperrors.NewInvalidInput("unusable message")
	})
	d := New(mb, "crit", "noncrit", h, opts())
	runFor(t, d, 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, mb.Depth("noncrit"))
	assert.Equal(t, 0, mb.InflightCount("noncrit"))
}

func TestRun_BatchHandledInParallel(t *testing.T) {
	mb := membus.New()
	mb.Declare("crit")
	mb.Declare("noncrit")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, mb.Send(ctx, "crit", []byte{'x'}))
	}

	var mu sync.Mutex
	inFlight, peak := 0, 0
	h := handlerFunc(func(ctx context.Context, m bus.Message) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	d := New(mb, "crit", "noncrit", h, opts())
	runFor(t, d, 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, peak, 1)
	assert.Equal(t, 0, mb.InflightCount("crit"))
}

type handlerFunc func(ctx context.Context, m bus.Message) error

func (f handlerFunc) Handle(ctx context.Context, m bus.Message) error { return f(ctx, m) }

func TestRun_StopsOnCancel(t *testing.T) {
	mb := membus.New()
	mb.Declare("crit")
	mb.Declare("noncrit")

	d := New(mb, "crit", "noncrit", newRecordingHandler(), opts())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
