package store

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
)

// EventStore persists event records. Updates are column-scoped partial
// writes so concurrent channel workers targeting the same event_id commute.
// Terminal-status discipline is enforced by the workers, not here.
type EventStore interface {
	// PutIfAbsent inserts the record; an existing event_id is a no-op.
	PutIfAbsent(ctx context.Context, e *domain.Event) error

	// UpdateStatus writes the last-writer-wins summary status.
	UpdateStatus(ctx context.Context, eventID string, status domain.EventStatus) error

	// UpdateChannelStatus writes the per-channel status column.
	UpdateChannelStatus(ctx context.Context, eventID string, ch domain.Channel, status domain.EventStatus) error

	// UpdateRetry writes the per-channel retry counter.
	UpdateRetry(ctx context.Context, eventID string, ch domain.Channel, n int) error

	Get(ctx context.Context, eventID string) (*domain.Event, error)

	// Scan is a best-effort filtered listing over a whitelisted column.
	Scan(ctx context.Context, filterKey, filterValue string) ([]*domain.Event, error)
}

// PreferenceStore resolves a user's notification profile (channel toggles,
// suppression windows, account tier). A missing user yields a NOT_FOUND
// error; callers fall back to domain.DefaultPreferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Put(ctx context.Context, userID string, profile *domain.UserProfile) error
}
