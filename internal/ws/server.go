package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/registry"
)

// Server upgrades client sockets, registers them in the shared connection
// registry with this process's relay URL, and answers relay dials from
// delivery workers.
type Server struct {
	hub          *Hub
	registry     *registry.Registry
	relayBaseURL string
	upgrader     websocket.Upgrader
	log          zerolog.Logger
}

func NewServer(hub *Hub, reg *registry.Registry, relayBaseURL string) *Server {
	return &Server{
		hub:          hub,
		registry:     reg,
		relayBaseURL: strings.TrimRight(relayBaseURL, "/"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// cross-origin browser clients connect directly
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.WithComponent("ws"),
	}
}

type connectedFrame struct {
	Type        string `json:"type"`
	WebsocketID string `json:"websocket_id"`
}

// HandleConnect upgrades a client socket for a user, mints the socket id
// and registers the connection so delivery workers can find it.
func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	websocketID := uuid.NewString()
	record := domain.Connection{
		UserID:        userID,
		DeviceType:    domain.DeviceWeb,
		WebsocketID:   websocketID,
		ConnectionURL: s.relayBaseURL + "/relay/" + websocketID,
		CreatedAt:     time.Now().Unix(),
	}
	if err := s.registry.Store(r.Context(), record); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to register connection")
		_ = conn.Close()
		return
	}

	client := &Client{
		ID:     websocketID,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		log:    s.log.With().Str("websocket_id", websocketID).Logger(),
	}
	s.hub.register(client)
	metrics.ConnectionOpened(string(domain.DeviceWeb))
	s.log.Info().Str("user_id", userID).Str("websocket_id", websocketID).Msg("websocket connected")

	// tell the client its socket id so it can publish targeted events
	if hello, err := json.Marshal(connectedFrame{Type: "connected", WebsocketID: websocketID}); err == nil {
		client.send <- hello
	}

	go client.writePump()
	go client.readPump(func() {
		s.hub.unregister(websocketID)
		metrics.ConnectionClosed(string(domain.DeviceWeb))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.registry.Delete(ctx, userID, domain.DeviceWeb, websocketID); err != nil {
			s.log.Warn().Err(err).Str("websocket_id", websocketID).Msg("failed to deregister connection")
		}
		s.log.Info().Str("user_id", userID).Str("websocket_id", websocketID).Msg("websocket disconnected")
	})
}

type relayAck struct {
	OK bool `json:"ok"`
}

// HandleRelay accepts a dial from a delivery worker, forwards each frame to
// the local socket with the given id, and acknowledges every frame.
func (s *Server) HandleRelay(w http.ResponseWriter, r *http.Request, websocketID string) {
	if websocketID == "" {
		http.Error(w, "missing websocket id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("relay upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		delivered := s.hub.SendTo(websocketID, frame)
		if !delivered {
			s.log.Warn().Str("websocket_id", websocketID).Msg("relay target not on this process")
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(relayAck{OK: delivered}); err != nil {
			return
		}
	}
}
