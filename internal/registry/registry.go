// Package registry maps users to their live delivery targets: web sockets
// and iOS device tokens. Backed by Redis — a hash per connection plus a
// per-user set index so ListByUser is one SMEMBERS and a pipeline of HGETALL.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
)

type Registry struct {
	client *redis.Client
}

func New(client *redis.Client) *Registry {
	return &Registry{client: client}
}

func connKey(userID string, deviceType domain.DeviceType, id string) string {
	return fmt.Sprintf("conn:%s:%s:%s", userID, deviceType, id)
}

func indexKey(userID string) string {
	return fmt.Sprintf("connidx:%s", userID)
}

// Store registers a connection. The same (user, device, id) overwrites.
func (r *Registry) Store(ctx context.Context, conn domain.Connection) error {
	id := conn.ID()
	if id == "" {
		return apperrors.NewInvalidInput("connection has no identity")
	}

	body, err := json.Marshal(conn)
	if err != nil {
		return apperrors.NewInternal("marshal connection", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, connKey(conn.UserID, conn.DeviceType, id), body, 0)
	pipe.SAdd(ctx, indexKey(conn.UserID), string(conn.DeviceType)+":"+id)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewRetryable("store connection", err)
	}
	return nil
}

// Delete removes one connection for (user, device_type, id).
func (r *Registry) Delete(ctx context.Context, userID string, deviceType domain.DeviceType, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, connKey(userID, deviceType, id))
	pipe.SRem(ctx, indexKey(userID), string(deviceType)+":"+id)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewRetryable("delete connection", err)
	}
	return nil
}

// ListByUser enumerates every registered connection for a user. Index
// entries whose hash is gone (e.g. expired by an operator) are skipped and
// pruned.
func (r *Registry) ListByUser(ctx context.Context, userID string) ([]domain.Connection, error) {
	members, err := r.client.SMembers(ctx, indexKey(userID)).Result()
	if err != nil {
		return nil, apperrors.NewRetryable("list connections", err)
	}

	var out []domain.Connection
	for _, m := range members {
		i := strings.IndexByte(m, ':')
		if i < 0 {
			continue
		}
		deviceType, id := m[:i], m[i+1:]

		body, err := r.client.Get(ctx, connKey(userID, domain.DeviceType(deviceType), id)).Bytes()
		if err == redis.Nil {
			_ = r.client.SRem(ctx, indexKey(userID), m).Err()
			continue
		}
		if err != nil {
			return nil, apperrors.NewRetryable("read connection", err)
		}

		var conn domain.Connection
		if err := json.Unmarshal(body, &conn); err != nil {
			_ = r.client.SRem(ctx, indexKey(userID), m).Err()
			continue
		}
		out = append(out, conn)
	}
	return out, nil
}
