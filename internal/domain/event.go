package domain

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event record.
type EventStatus string

const (
	StatusStart      EventStatus = "START"
	StatusProcessing EventStatus = "PROCESSING"
	StatusSuccess    EventStatus = "SUCCESS"
	StatusFailed     EventStatus = "FAILED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case StatusStart, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status must never be demoted.
func (s EventStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// EventType tags the kind of domain event that triggered a notification.
type EventType string

const (
	EventLike     EventType = "LIKE"
	EventComment  EventType = "COMMENT"
	EventShare    EventType = "SHARE"
	EventFollow   EventType = "FOLLOW"
	EventUnfollow EventType = "UNFOLLOW"
	EventMention  EventType = "MENTION"
	EventMessage  EventType = "MESSAGE"
	EventPost     EventType = "POST"
	EventReply    EventType = "REPLY"
	EventUnknown  EventType = "UNKNOWN"
)

// ParseEventType maps a wire string onto the enum; anything unrecognized
// becomes UNKNOWN and is still delivered.
func ParseEventType(s string) EventType {
	switch EventType(strings.ToUpper(strings.TrimSpace(s))) {
	case EventLike:
		return EventLike
	case EventComment:
		return EventComment
	case EventShare:
		return EventShare
	case EventFollow:
		return EventFollow
	case EventUnfollow:
		return EventUnfollow
	case EventMention:
		return EventMention
	case EventMessage:
		return EventMessage
	case EventPost:
		return EventPost
	case EventReply:
		return EventReply
	}
	return EventUnknown
}

// Channel is a delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Channels lists every delivery channel in fan-out order.
func Channels() []Channel {
	return []Channel{ChannelSMS, ChannelEmail, ChannelPush}
}

// Priority of the event payload.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// UserType of the event owner; premium tiers escalate priority.
type UserType string

const (
	UserAdmin   UserType = "admin"
	UserPremium UserType = "premium"
	UserBasic   UserType = "basic"
	UserFree    UserType = "free"
)

// EventMeta is the nested attribute bag persisted with every event.
type EventMeta struct {
	ParentID   string   `json:"parent_id"`
	ParentType string   `json:"parent_type"`
	Timestamp  string   `json:"timestamp"`
	Priority   Priority `json:"priority"`
}

// Event is the primary entity, keyed by EventID. The summary Status is
// last-writer-wins across channels; the per-channel statuses are the
// authoritative per-channel outcome.
type Event struct {
	EventID string
	Status  EventStatus

	StatusSMS   EventStatus
	StatusEmail EventStatus
	StatusPush  EventStatus

	UserID    string
	EventType EventType

	RetryCountSMS   int
	RetryCountEmail int
	RetryCountPush  int

	Payload EventMeta

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RetryCount returns the persisted retry counter for a channel.
func (e *Event) RetryCount(ch Channel) int {
	switch ch {
	case ChannelSMS:
		return e.RetryCountSMS
	case ChannelEmail:
		return e.RetryCountEmail
	case ChannelPush:
		return e.RetryCountPush
	}
	return 0
}

// SetRetryCount sets the retry counter for a channel.
func (e *Event) SetRetryCount(ch Channel, n int) {
	switch ch {
	case ChannelSMS:
		e.RetryCountSMS = n
	case ChannelEmail:
		e.RetryCountEmail = n
	case ChannelPush:
		e.RetryCountPush = n
	}
}

// ChannelStatus returns the per-channel status for a channel.
func (e *Event) ChannelStatus(ch Channel) EventStatus {
	switch ch {
	case ChannelSMS:
		return e.StatusSMS
	case ChannelEmail:
		return e.StatusEmail
	case ChannelPush:
		return e.StatusPush
	}
	return ""
}
