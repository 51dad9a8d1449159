package delivery

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
)

// Transport delivers one notification over a concrete channel. Send errors
// are classified through apperrors: PERMANENT_FAILURE means the recipient
// or request can never succeed and must not be retried; anything else is
// treated as transient.
type Transport interface {
	Name() string
	Send(ctx context.Context, p *contracts.EventPayload) error
}
