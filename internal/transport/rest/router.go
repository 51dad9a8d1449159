// Package rest is the HTTP surface of the notification service: event
// publishing and lookups, websocket attach and relay, health and metrics.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/ws"
)

// NewRouter assembles the service's routes. wsServer may be nil when the
// process runs without the websocket surface.
func NewRouter(h *Handler, wsServer *ws.Server) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/publish_events", h.PublishEvents)
	r.Get("/events", h.ListEvents)
	r.Get("/events/{event_id}", h.GetEvent)

	if wsServer != nil {
		r.Get("/ws/{user_id}", func(w http.ResponseWriter, req *http.Request) {
			wsServer.HandleConnect(w, req, chi.URLParam(req, "user_id"))
		})
		r.Get("/relay/{websocket_id}", func(w http.ResponseWriter, req *http.Request) {
			wsServer.HandleRelay(w, req, chi.URLParam(req, "websocket_id"))
		})
	}

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
