// PATH: services/notification-service/internal/contracts/envelope.go
package contracts

import (
	"encoding/json"
	"strings"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
)

// Envelope is the fanout wrapper carried on every queue: an outer object
// whose single Message field holds the JSON-encoded event payload as a
// string. Consumers parse the outer object first, then the inner string.
type Envelope struct {
	Message string `json:"Message"`
}

// NotificationPrefs selects the channels a payload fans out to.
type NotificationPrefs struct {
	SMS   bool `json:"sms,omitempty"`
	Email bool `json:"email,omitempty"`
	Push  bool `json:"push,omitempty"`
}

// EventPayload is the wire schema of a published event. Extra producer
// fields are ignored; only event_type and user_id are required.
type EventPayload struct {
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	UserType  string `json:"user_type,omitempty"`
	Priority  string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`

	ParentID   string `json:"parent_id,omitempty"`
	ParentType string `json:"parent_type,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`

	UserPhone string `json:"user_phone,omitempty"`
	UserEmail string `json:"user_email,omitempty" validate:"omitempty,email"`

	RetryCountSMS   int `json:"retry_count_sms,omitempty"`
	RetryCountEmail int `json:"retry_count_email,omitempty"`
	RetryCountPush  int `json:"retry_count_push,omitempty"`

	Notifications *NotificationPrefs `json:"notifications,omitempty"`

	// TargetClients narrows push delivery to explicit socket ids.
	TargetClients []string `json:"target_clients,omitempty"`
}

// RetryCount returns the payload's retry counter for a channel.
func (p *EventPayload) RetryCount(ch domain.Channel) int {
	switch ch {
	case domain.ChannelSMS:
		return p.RetryCountSMS
	case domain.ChannelEmail:
		return p.RetryCountEmail
	case domain.ChannelPush:
		return p.RetryCountPush
	}
	return 0
}

// SetRetryCount sets the payload's retry counter for a channel.
func (p *EventPayload) SetRetryCount(ch domain.Channel, n int) {
	switch ch {
	case domain.ChannelSMS:
		p.RetryCountSMS = n
	case domain.ChannelEmail:
		p.RetryCountEmail = n
	case domain.ChannelPush:
		p.RetryCountPush = n
	}
}

// ChannelEnabled reports whether the payload opted into a channel.
func (p *EventPayload) ChannelEnabled(ch domain.Channel) bool {
	if p.Notifications == nil {
		return false
	}
	switch ch {
	case domain.ChannelSMS:
		return p.Notifications.SMS
	case domain.ChannelEmail:
		return p.Notifications.Email
	case domain.ChannelPush:
		return p.Notifications.Push
	}
	return false
}

// Wrap serializes a payload into the double-encoded envelope.
func Wrap(p *EventPayload) ([]byte, error) {
	inner, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.NewInternal("marshal event payload", err)
	}
	body, err := json.Marshal(Envelope{Message: string(inner)})
	if err != nil {
		return nil, apperrors.NewInternal("marshal envelope", err)
	}
	return body, nil
}

// Unwrap parses the envelope and the inner payload. Malformed input is an
// INVALID_INPUT error so callers drop it as a poison pill.
func Unwrap(body []byte) (*EventPayload, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewInvalidInput("malformed envelope: " + err.Error())
	}
	if strings.TrimSpace(env.Message) == "" {
		return nil, apperrors.NewInvalidInput("empty envelope message")
	}
	var p EventPayload
	if err := json.Unmarshal([]byte(env.Message), &p); err != nil {
		return nil, apperrors.NewInvalidInput("malformed event payload: " + err.Error())
	}
	return &p, nil
}
