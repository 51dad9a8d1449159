package transports

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
)

// ConnectionLister enumerates a user's live delivery targets.
type ConnectionLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Connection, error)
}

// PushMessage is the frame written to a web socket relay.
type PushMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

// PushAck is the frame a relay answers with.
type PushAck struct {
	OK bool `json:"ok"`
}

// PushTransport fans one payload out to every live connection of the user:
// web sockets through the relay endpoint of the process that owns them, iOS
// devices through APNs. A user with no live connections is a successful
// delivery; a user with any failing connection is not.
type PushTransport struct {
	conns   ConnectionLister
	apns    *APNSClient
	dialer  *websocket.Dialer
	timeout time.Duration
	log     zerolog.Logger
}

func NewPushTransport(conns ConnectionLister, apns *APNSClient, timeout time.Duration) *PushTransport {
	return &PushTransport{
		conns:   conns,
		apns:    apns,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		timeout: timeout,
		log:     logger.WithComponent("push_transport"),
	}
}

func (t *PushTransport) Name() string { return "push" }

func (t *PushTransport) Send(ctx context.Context, p *contracts.EventPayload) error {
	conns, err := t.conns.ListByUser(ctx, p.UserID)
	if err != nil {
		return apperrors.NewTransport("list connections", err)
	}

	targets := filterTargets(conns, p.TargetClients)
	if len(targets) == 0 {
		t.log.Debug().Str("user_id", p.UserID).Msg("no live connections, nothing to push")
		return nil
	}

	var (
		errs         []error
		anyTransient bool
	)
	for _, conn := range targets {
		var err error
		switch conn.DeviceType {
		case domain.DeviceIOS:
			err = t.apns.Push(ctx, conn.DeviceToken, p)
		default:
			err = t.pushSocket(ctx, conn, p)
		}
		if err != nil {
			errs = append(errs, err)
			if !apperrors.IsPermanent(err) {
				anyTransient = true
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if anyTransient {
		return apperrors.NewTransport("push delivery incomplete", joined)
	}
	return apperrors.NewPermanentFailure("push delivery rejected", joined)
}

// filterTargets narrows to the payload's explicit socket ids when present.
func filterTargets(conns []domain.Connection, targetClients []string) []domain.Connection {
	if len(targetClients) == 0 {
		return conns
	}
	wanted := make(map[string]struct{}, len(targetClients))
	for _, id := range targetClients {
		wanted[id] = struct{}{}
	}
	var out []domain.Connection
	for _, c := range conns {
		if _, ok := wanted[c.ID()]; ok {
			out = append(out, c)
		}
	}
	return out
}

// pushSocket dials the relay URL of the owning process, writes the frame
// and waits for the ack.
func (t *PushTransport) pushSocket(ctx context.Context, conn domain.Connection, p *contracts.EventPayload) error {
	if conn.ConnectionURL == "" {
		return apperrors.NewPermanentFailure("connection has no relay url", nil)
	}

	ws, _, err := t.dialer.DialContext(ctx, conn.ConnectionURL, nil)
	if err != nil {
		return apperrors.NewTransport("dial relay "+conn.ConnectionURL, err)
	}
	defer func() { _ = ws.Close() }()

	deadline := time.Now().Add(t.timeout)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteJSON(PushMessage{
		Type:    "push_notification",
		Message: FormatMessage(p),
		EventID: p.EventID,
	}); err != nil {
		return apperrors.NewTransport("write push frame", err)
	}

	_ = ws.SetReadDeadline(deadline)
	var ack PushAck
	if err := ws.ReadJSON(&ack); err != nil {
		return apperrors.NewTransport("read push ack", err)
	}
	if !ack.OK {
		return apperrors.NewTransport("relay rejected push", nil)
	}
	return nil
}
