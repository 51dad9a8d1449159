package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store deduplicates publisher-supplied event ids at ingress using Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new idempotency store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		ttl:    7 * 24 * time.Hour,
	}
}

// Key generates a Redis key for an event ID
func (s *Store) Key(eventID string) string {
	return fmt.Sprintf("ingress:processed:%s", eventID)
}

// CheckAndMark atomically checks whether the event id was already ingested
// and marks it if not. Returns (isDuplicate, error).
func (s *Store) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key := s.Key(eventID)

	// SETNX: true means we created the key (new), false means duplicate
	set, err := s.client.SetNX(ctx, key, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check and mark idempotency: %w", err)
	}
	return !set, nil
}
