package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/health"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/ratelimit"
)

type fakePublisher struct {
	got []*contracts.EventPayload
}

func (f *fakePublisher) PublishBatch(ctx context.Context, payloads []*contracts.EventPayload) int {
	f.got = append(f.got, payloads...)
	return len(payloads)
}

type fakeEvents struct {
	byID map[string]*domain.Event
	scan []*domain.Event
}

func (f *fakeEvents) PutIfAbsent(ctx context.Context, e *domain.Event) error { return nil }
func (f *fakeEvents) UpdateStatus(ctx context.Context, id string, s domain.EventStatus) error {
	return nil
}
func (f *fakeEvents) UpdateChannelStatus(ctx context.Context, id string, ch domain.Channel, s domain.EventStatus) error {
	return nil
}
func (f *fakeEvents) UpdateRetry(ctx context.Context, id string, ch domain.Channel, n int) error {
	return nil
}
func (f *fakeEvents) Get(ctx context.Context, id string) (*domain.Event, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NewNotFound("event " + id)
	}
	return e, nil
}
func (f *fakeEvents) Scan(ctx context.Context, k, v string) ([]*domain.Event, error) {
	return f.scan, nil
}

func newTestAPI(t *testing.T) (*fakePublisher, *fakeEvents, *health.Checker, http.Handler) {
	t.Helper()
	pub := &fakePublisher{}
	events := &fakeEvents{byID: make(map[string]*domain.Event)}
	checker := health.NewChecker(time.Second)
	h := NewHandler(pub, events, nil, RateLimitConfig{}, checker)
	return pub, events, checker, NewRouter(h, nil)
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPublishEvents_Accepted(t *testing.T) {
	pub, _, _, router := newTestAPI(t)

	rec := postJSON(t, router, "/publish_events", map[string]any{
		"events": []map[string]any{
			{"event_type": "LIKE", "user_id": "u1"},
			{"event_type": "MENTION", "user_id": "u2"},
		},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 0, resp.Rejected)
	assert.Len(t, pub.got, 2)
}

func TestPublishEvents_InvalidEventsRejectedIndividually(t *testing.T) {
	pub, _, _, router := newTestAPI(t)

	rec := postJSON(t, router, "/publish_events", map[string]any{
		"events": []map[string]any{
			{"event_type": "LIKE", "user_id": "u1"},
			{"event_type": "LIKE"}, // no user
		},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
	assert.Len(t, pub.got, 1)
}

func TestPublishEvents_MalformedBody(t *testing.T) {
	_, _, _, router := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/publish_events", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishEvents_EmptyBatch(t *testing.T) {
	_, _, _, router := newTestAPI(t)
	rec := postJSON(t, router, "/publish_events", map[string]any{"events": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishEvents_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pub := &fakePublisher{}
	h := NewHandler(pub, &fakeEvents{}, ratelimit.NewRateLimiter(client),
		RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute}, health.NewChecker(time.Second))
	router := NewRouter(h, nil)

	body := map[string]any{"events": []map[string]any{
		{"event_type": "LIKE", "user_id": "u1"},
		{"event_type": "LIKE", "user_id": "u1"},
		{"event_type": "LIKE", "user_id": "u1"},
	}}
	rec := postJSON(t, router, "/publish_events", body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
}

func TestGetEvent_Found(t *testing.T) {
	_, events, _, router := newTestAPI(t)
	events.byID["e1"] = &domain.Event{
		EventID: "e1", Status: domain.StatusSuccess, UserID: "u1",
		EventType: domain.EventLike, StatusSMS: domain.StatusSuccess,
		StatusEmail: domain.StatusSuccess, StatusPush: domain.StatusFailed,
		RetryCountPush: 5,
	}

	req := httptest.NewRequest(http.MethodGet, "/events/e1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.EventID)
	assert.Equal(t, "SUCCESS", resp.Status)
	assert.Equal(t, "FAILED", resp.StatusPush)
	assert.Equal(t, 5, resp.RetryCountPush)
}

func TestGetEvent_NotFound(t *testing.T) {
	_, _, _, router := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/events/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents_FilterRequired(t *testing.T) {
	_, _, _, router := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEvents_OK(t *testing.T) {
	_, events, _, router := newTestAPI(t)
	events.scan = []*domain.Event{
		{EventID: "e1", Status: domain.StatusFailed, UserID: "u1"},
		{EventID: "e2", Status: domain.StatusFailed, UserID: "u2"},
	}

	req := httptest.NewRequest(http.MethodGet, "/events?filter_key=status&filter_value=FAILED", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHealthz(t *testing.T) {
	_, _, checker, router := newTestAPI(t)
	checker.Register("db", func(ctx context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthz_Degraded(t *testing.T) {
	_, _, checker, router := newTestAPI(t)
	checker.Register("broker", func(ctx context.Context) error { return errors.New("down") })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
