// Package ws owns the live websocket surface: the client sockets browsers
// keep open, the hub that indexes them by socket id, and the relay endpoint
// delivery workers dial to reach a socket owned by this process.
package ws

import (
	"sync"
)

// Hub indexes the clients connected to this process by websocket id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// SendTo queues a frame for the socket with the given id. It reports false
// when the socket is not on this process or its send buffer is full.
func (h *Hub) SendTo(id string, frame []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Count returns the number of clients on this process.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
