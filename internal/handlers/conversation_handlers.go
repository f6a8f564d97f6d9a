package handlers

import (
	"log"
	"net/http"
	"time"

	"crewdesk/internal/messaging"
	"crewdesk/internal/middleware"
	"crewdesk/internal/policy"

	"github.com/google/uuid"
)

// HandleConversations returns the caller's conversation list: one entry
// per partner with the latest message and the unread count, newest
// conversation first.
func (s *Server) HandleConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}

		start := time.Now()
		conversations, err := messaging.BuildConversations(r.Context(), s.Store, userID)
		if err != nil {
			s.Metrics.IncrementErrors()
			writeError(w, err)
			return
		}
		s.Metrics.IncrementRequests()
		s.Metrics.AddOperationLatency("build_conversations", time.Since(start))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversations": conversations,
			"unreadTotal":   messaging.UnreadTotal(conversations),
		})
	}
}

// HandleConversation returns the full thread between the caller and one
// partner, oldest first, and marks the partner's messages read.
func (s *Server) HandleConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}

		partnerParam := r.URL.Query().Get("partnerId")
		if partnerParam == "" {
			http.Error(w, "Partner ID required", http.StatusBadRequest)
			return
		}
		partnerID, err := uuid.Parse(partnerParam)
		if err != nil {
			http.Error(w, "Invalid partner ID", http.StatusBadRequest)
			return
		}

		thread, err := s.Store.ListThread(r.Context(), userID, partnerID)
		if err != nil {
			writeError(w, err)
			return
		}

		// Opening a thread clears its unread state. Failure here only
		// leaves the badge stale, so it never fails the request.
		if err := s.Store.MarkRead(r.Context(), userID, partnerID); err != nil {
			log.Printf("Mark-read failed for user %s partner %s: %v", userID, partnerID, err)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"partnerId": partnerID,
			"messages":  thread,
		})
	}
}

// HandleRecipients lists the users the caller is allowed to start a
// conversation with, optionally narrowed by a name or email search.
func (s *Server) HandleRecipients() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, role, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}

		search := r.URL.Query().Get("q")
		recipients, err := policy.EligibleRecipients(r.Context(), s.Store, userID, role, search)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"recipients": recipients,
		})
	}
}
