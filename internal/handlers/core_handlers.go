package handlers

import (
	"net/http"
	"time"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		payload := map[string]interface{}{
			"status":             "healthy",
			"websocket_clients":  s.Hub.ConnectionCount(),
			"subscription_count": s.Broker.SubscriptionCount(),
			"server_time":        time.Now(),
		}
		if s.Config.Server.MetricsEnabled {
			payload["metrics"] = s.Metrics.GetSnapshot()
		}

		writeJSON(w, http.StatusOK, payload)
	}
}
