// Package websocket delivers realtime messaging events to connected UI
// surfaces and routes their thread commands to session actors.
package websocket

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Hub tracks the set of active client connections per user.
type Hub struct {
	// Registered clients. Maps user ID to a set of active connections; a
	// user may have several surfaces (tabs, devices) open at once.
	clients map[uuid.UUID]map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[uuid.UUID]map[*Client]bool),
	}
}

// Run starts the hub's processing loop.
func (h *Hub) Run() {
	log.Println("WebSocket hub started.")
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.clients[client.UserID]; !ok {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			log.Printf("WebSocket client registered for user %s. Connections for user: %d", client.UserID, len(h.clients[client.UserID]))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if userClients, ok := h.clients[client.UserID]; ok {
				if _, clientOk := userClients[client]; clientOk {
					delete(userClients, client)
					if len(userClients) == 0 {
						delete(h.clients, client.UserID)
					}
					log.Printf("WebSocket client unregistered for user %s. Remaining connections: %d", client.UserID, len(userClients))
				}
			}
			h.mu.Unlock()
		}
	}
}

// ConnectionCount reports the number of active connections across users.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, userClients := range h.clients {
		total += len(userClients)
	}
	return total
}
