package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"crewdesk/internal/config"
	"crewdesk/internal/database"
	"crewdesk/internal/realtime"
	"crewdesk/internal/utils"
	"crewdesk/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
)

// Server holds all server dependencies, including the actor system and
// the message store.
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Store          database.MessageStore
	Broker         *realtime.Broker
	Hub            *websocket.Hub
	Metrics        *utils.MetricsCollector
	Config         *config.Config
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	store database.MessageStore,
	broker *realtime.Broker,
	hub *websocket.Hub,
	metrics *utils.MetricsCollector,
	cfg *config.Config,
) *Server {
	return &Server{
		System:         system,
		Context:        system.Root,
		Store:          store,
		Broker:         broker,
		Hub:            hub,
		Metrics:        metrics,
		Config:         cfg,
		RequestTimeout: 5 * time.Second, // Default timeout for actor requests
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps store and validation failures onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*utils.AppError); ok {
		http.Error(w, appErr.Error(), utils.AppErrorToHTTPStatus(appErr.Code))
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
