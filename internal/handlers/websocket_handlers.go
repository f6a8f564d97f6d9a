package handlers

import (
	"log"
	"net/http"

	"crewdesk/internal/middleware"
	"crewdesk/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

// HandleWebSocket handles WebSocket connection requests.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.Config.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on websocket requests, so the token
		// rides in the query string.
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			log.Println("WebSocket connection failed: Missing token")
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		claims, err := middleware.ValidateToken(tokenString)
		if err != nil {
			log.Printf("WebSocket connection failed: Invalid token: %v", err)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		userID := claims.UserID
		if userID == uuid.Nil {
			log.Println("WebSocket connection failed: Nil userID in token claims")
			http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for user %s: %v", userID, err)
			return
		}

		client := &websocket.Client{
			Hub:    s.Hub,
			UserID: userID,
			Role:   claims.Role,
			Conn:   conn,
			Send:   make(chan []byte, 256),
			System: s.System,
			Store:  s.Store,
			Broker: s.Broker,
		}
		client.Hub.Register <- client

		// Each surface carries its own inbox subscription; the client
		// closes it when the connection goes away.
		client.OpenInbox()

		go client.WritePump()
		go client.ReadPump()
	}
}
