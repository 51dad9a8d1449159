package contracts

import (
	"encoding/json"
	"testing"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap_DoubleEncoded(t *testing.T) {
	body := []byte(`{"Message":"{\"event_type\":\"MENTION\",\"user_id\":\"u1\",\"notifications\":{\"sms\":true,\"email\":true,\"push\":true}}"}`)

	p, err := Unwrap(body)
	require.NoError(t, err)
	assert.Equal(t, "MENTION", p.EventType)
	assert.Equal(t, "u1", p.UserID)
	assert.True(t, p.ChannelEnabled(domain.ChannelSMS))
	assert.True(t, p.ChannelEnabled(domain.ChannelEmail))
	assert.True(t, p.ChannelEnabled(domain.ChannelPush))
}

func TestUnwrap_MalformedOuter(t *testing.T) {
	_, err := Unwrap([]byte(`not json`))
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestUnwrap_MalformedInner(t *testing.T) {
	_, err := Unwrap([]byte(`{"Message":"{broken"}`))
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestUnwrap_EmptyMessage(t *testing.T) {
	_, err := Unwrap([]byte(`{"Message":""}`))
	assert.Error(t, err)
}

func TestUnwrap_ExtraProducerFieldsIgnored(t *testing.T) {
	body := []byte(`{"Message":"{\"event_type\":\"LIKE\",\"user_id\":\"u2\",\"shiny_new_field\":42}"}`)
	p, err := Unwrap(body)
	require.NoError(t, err)
	assert.Equal(t, "LIKE", p.EventType)
}

func TestWrap_ProducesEnvelope(t *testing.T) {
	p := &EventPayload{
		EventID:       "ev-1",
		EventType:     "COMMENT",
		UserID:        "u3",
		Priority:      "high",
		Notifications: &NotificationPrefs{Email: true},
	}

	body, err := Wrap(p)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.NotEmpty(t, env.Message)

	got, err := Unwrap(body)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", got.EventID)
	assert.Equal(t, "high", got.Priority)
	assert.True(t, got.ChannelEnabled(domain.ChannelEmail))
	assert.False(t, got.ChannelEnabled(domain.ChannelSMS))
}

func TestRetryCountAccessors(t *testing.T) {
	p := &EventPayload{}
	p.SetRetryCount(domain.ChannelEmail, 5)
	assert.Equal(t, 5, p.RetryCount(domain.ChannelEmail))
	assert.Equal(t, 0, p.RetryCount(domain.ChannelSMS))

	body, err := Wrap(p)
	require.NoError(t, err)
	got, err := Unwrap(body)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RetryCountEmail)
}

func TestChannelEnabled_NoPrefs(t *testing.T) {
	p := &EventPayload{}
	assert.False(t, p.ChannelEnabled(domain.ChannelSMS))
}
