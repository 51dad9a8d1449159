package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hh, mm int) time.Time {
	return time.Date(2025, 6, 1, hh, mm, 0, 0, time.Local)
}

func TestQuietHours_Disabled(t *testing.T) {
	q := QuietHours{Enabled: false, Start: "00:00", End: "23:59"}
	assert.False(t, q.Contains(at(12, 0)))
}

func TestQuietHours_SameDayWindow(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "09:00", End: "17:00"}
	assert.True(t, q.Contains(at(9, 0)))
	assert.True(t, q.Contains(at(12, 30)))
	assert.False(t, q.Contains(at(17, 0)))
	assert.False(t, q.Contains(at(8, 59)))
}

func TestQuietHours_MidnightWrap(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "22:00", End: "08:00"}
	assert.True(t, q.Contains(at(23, 30)))
	assert.True(t, q.Contains(at(0, 15)))
	assert.True(t, q.Contains(at(7, 59)))
	assert.False(t, q.Contains(at(8, 0)))
	assert.False(t, q.Contains(at(12, 0)))
	assert.False(t, q.Contains(at(21, 59)))
}

func TestQuietHours_MalformedBoundsDisable(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "bogus", End: "08:00"}
	assert.False(t, q.Contains(at(3, 0)))

	q = QuietHours{Enabled: true, Start: "22:00", End: "25:00"}
	assert.False(t, q.Contains(at(23, 0)))
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()
	assert.True(t, p.SMS)
	assert.True(t, p.Email)
	assert.True(t, p.Push)
	assert.False(t, p.PriorityOnly)
	assert.False(t, p.QuietHours.Enabled)
}

func TestPreferences_ChannelEnabled(t *testing.T) {
	p := Preferences{SMS: true, Email: false, Push: true}
	assert.True(t, p.ChannelEnabled(ChannelSMS))
	assert.False(t, p.ChannelEnabled(ChannelEmail))
	assert.True(t, p.ChannelEnabled(ChannelPush))
	assert.False(t, p.ChannelEnabled(Channel("fax")))
}
