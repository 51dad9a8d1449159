package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
)

// Store implements store.EventStore on Postgres. Every update touches only
// its own columns; workers for different channels never contend on the same
// attribute.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// scanFilterColumns whitelists the columns Scan may filter on. Anything
// else is rejected instead of being interpolated into SQL.
var scanFilterColumns = map[string]bool{
	"status":       true,
	"status_sms":   true,
	"status_email": true,
	"status_push":  true,
	"user_id":      true,
	"event_type":   true,
}

var retryColumns = map[domain.Channel]string{
	domain.ChannelSMS:   "retry_count_sms",
	domain.ChannelEmail: "retry_count_email",
	domain.ChannelPush:  "retry_count_push",
}

var statusColumns = map[domain.Channel]string{
	domain.ChannelSMS:   "status_sms",
	domain.ChannelEmail: "status_email",
	domain.ChannelPush:  "status_push",
}

func (s *Store) PutIfAbsent(ctx context.Context, e *domain.Event) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL,
		e.EventID, string(e.Status),
		string(e.StatusSMS), string(e.StatusEmail), string(e.StatusPush),
		e.UserID, string(e.EventType),
		e.RetryCountSMS, e.RetryCountEmail, e.RetryCountPush,
		e.Payload.ParentID, e.Payload.ParentType, e.Payload.Timestamp, string(e.Payload.Priority),
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewRetryable("insert event", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, eventID string, status domain.EventStatus) error {
	res, err := s.db.ExecContext(ctx, updateStatusSQL, eventID, string(status))
	if err != nil {
		return apperrors.NewRetryable("update status", err)
	}
	return noRowsAsNotFound(res, eventID)
}

func (s *Store) UpdateChannelStatus(ctx context.Context, eventID string, ch domain.Channel, status domain.EventStatus) error {
	col, ok := statusColumns[ch]
	if !ok {
		return apperrors.NewInvalidInput("unknown channel: " + string(ch))
	}
	q := fmt.Sprintf(`UPDATE events SET %s = $2, updated_at = NOW() WHERE event_id = $1`, col)
	res, err := s.db.ExecContext(ctx, q, eventID, string(status))
	if err != nil {
		return apperrors.NewRetryable("update channel status", err)
	}
	return noRowsAsNotFound(res, eventID)
}

func (s *Store) UpdateRetry(ctx context.Context, eventID string, ch domain.Channel, n int) error {
	col, ok := retryColumns[ch]
	if !ok {
		return apperrors.NewInvalidInput("unknown channel: " + string(ch))
	}
	q := fmt.Sprintf(`UPDATE events SET %s = $2, updated_at = NOW() WHERE event_id = $1`, col)
	res, err := s.db.ExecContext(ctx, q, eventID, n)
	if err != nil {
		return apperrors.NewRetryable("update retry count", err)
	}
	return noRowsAsNotFound(res, eventID)
}

func (s *Store) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx, getEventSQL, eventID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("event not found: " + eventID)
	}
	if err != nil {
		return nil, apperrors.NewRetryable("get event", err)
	}
	return e, nil
}

func (s *Store) Scan(ctx context.Context, filterKey, filterValue string) ([]*domain.Event, error) {
	if !scanFilterColumns[filterKey] {
		return nil, apperrors.NewInvalidInput("unsupported filter key: " + filterKey)
	}
	q := fmt.Sprintf(`
SELECT event_id, status, status_sms, status_email, status_push,
       user_id, event_type,
       retry_count_sms, retry_count_email, retry_count_push,
       parent_id, parent_type, event_timestamp, priority,
       created_at, updated_at
FROM events
WHERE %s = $1
ORDER BY created_at DESC
LIMIT 500`, filterKey)

	rows, err := s.db.QueryContext(ctx, q, filterValue)
	if err != nil {
		return nil, apperrors.NewRetryable("scan events", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.NewRetryable("scan event row", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRetryable("scan events", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*domain.Event, error) {
	var e domain.Event
	var status, statusSMS, statusEmail, statusPush, eventType, priority string
	err := r.Scan(
		&e.EventID, &status, &statusSMS, &statusEmail, &statusPush,
		&e.UserID, &eventType,
		&e.RetryCountSMS, &e.RetryCountEmail, &e.RetryCountPush,
		&e.Payload.ParentID, &e.Payload.ParentType, &e.Payload.Timestamp, &priority,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EventStatus(status)
	e.StatusSMS = domain.EventStatus(statusSMS)
	e.StatusEmail = domain.EventStatus(statusEmail)
	e.StatusPush = domain.EventStatus(statusPush)
	e.EventType = domain.EventType(eventType)
	e.Payload.Priority = domain.Priority(priority)
	return &e, nil
}

func noRowsAsNotFound(res sql.Result, eventID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver without RowsAffected; treat the write as applied
	}
	if n == 0 {
		return apperrors.NewNotFound("event not found: " + eventID)
	}
	return nil
}

// PrefStore implements store.PreferenceStore on the user_preferences table.
type PrefStore struct {
	db *sql.DB
}

func NewPrefStore(db *sql.DB) *PrefStore { return &PrefStore{db: db} }

// Get resolves a user's profile; NOT_FOUND when the user has no row.
func (s *PrefStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, getProfileSQL, userID)

	var prefsJSON []byte
	var userType sql.NullString
	err := row.Scan(&prefsJSON, &userType)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("no preferences for user: " + userID)
	}
	if err != nil {
		return nil, apperrors.NewRetryable("get preferences", err)
	}

	profile := &domain.UserProfile{Preferences: domain.DefaultPreferences()}
	if err := json.Unmarshal(prefsJSON, &profile.Preferences); err != nil {
		return nil, apperrors.NewInternal("corrupt preferences for user "+userID, err)
	}
	if userType.Valid {
		profile.UserType = domain.UserType(userType.String)
	}
	return profile, nil
}

// Put upserts a user's profile.
func (s *PrefStore) Put(ctx context.Context, userID string, profile *domain.UserProfile) error {
	prefsJSON, err := json.Marshal(profile.Preferences)
	if err != nil {
		return apperrors.NewInternal("marshal preferences", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertProfileSQL, userID, prefsJSON, string(profile.UserType)); err != nil {
		return apperrors.NewRetryable("upsert preferences", err)
	}
	return nil
}
