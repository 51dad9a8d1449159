// Package transports holds the concrete channel transports behind the
// delivery.Transport seam. Each transport maps provider responses onto the
// shared error taxonomy: a 4xx (other than 408 and 429) can never succeed
// and becomes a permanent failure; everything else is transient.
package transports

import (
	"fmt"
	"io"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
)

// classifyStatus maps a non-success provider status onto the error taxonomy.
func classifyStatus(transport string, status int) error {
	msg := fmt.Sprintf("%s provider returned %d", transport, status)
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return apperrors.NewPermanentFailure(msg, nil)
	}
	return apperrors.NewTransport(msg, nil)
}

// drainClose discards the response body so the connection can be reused.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

// FormatMessage renders the user-facing notification text for a payload.
func FormatMessage(p *contracts.EventPayload) string {
	switch domain.ParseEventType(p.EventType) {
	case domain.EventLike:
		return "Someone liked your post"
	case domain.EventComment:
		return "Someone commented on your post"
	case domain.EventShare:
		return "Someone shared your post"
	case domain.EventFollow:
		return "You have a new follower"
	case domain.EventUnfollow:
		return "A follower left"
	case domain.EventMention:
		return "You were mentioned"
	case domain.EventMessage:
		return "You have a new message"
	case domain.EventPost:
		return "Someone you follow published a post"
	case domain.EventReply:
		return "Someone replied to you"
	}
	return "You have a new notification"
}
