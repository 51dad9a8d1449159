package domain

import (
	"fmt"
	"time"
)

// QuietHours suppresses non-critical notifications inside a local-time
// window. Start/End are "HH:MM"; a window with Start > End wraps midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Contains reports whether t's local wall-clock time falls inside the
// window. Malformed bounds disable the window rather than suppressing.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()

	if start <= end {
		return now >= start && now < end
	}
	// window crosses midnight, e.g. 22:00-08:00
	return now >= start || now < end
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock out of range: %s", s)
	}
	return h*60 + m, nil
}

// Preferences controls which channels a user receives and when.
type Preferences struct {
	SMS          bool       `json:"sms"`
	Email        bool       `json:"email"`
	Push         bool       `json:"push"`
	PriorityOnly bool       `json:"priority_only"`
	QuietHours   QuietHours `json:"quiet_hours"`
}

// DefaultPreferences applies when a user has no stored preferences or the
// lookup fails: every channel on, no suppression.
func DefaultPreferences() Preferences {
	return Preferences{SMS: true, Email: true, Push: true}
}

// UserProfile pairs a user's notification preferences with the account
// tier consulted by the priority predicate.
type UserProfile struct {
	Preferences Preferences `json:"notification_preferences"`
	UserType    UserType    `json:"user_type,omitempty"`
}

// ChannelEnabled reports whether the given channel is on.
func (p Preferences) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return p.SMS
	case ChannelEmail:
		return p.Email
	case ChannelPush:
		return p.Push
	}
	return false
}
