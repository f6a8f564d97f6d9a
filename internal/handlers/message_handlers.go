package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"crewdesk/internal/middleware"
	"crewdesk/internal/policy"
	"crewdesk/internal/utils"

	"github.com/google/uuid"
)

// SendMessageRequest represents a request to send a direct message
type SendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Body        string `json:"body"`
}

// HandleSendMessage stores a new message from the caller to a recipient.
// Guest callers, blank bodies and self-sends are rejected before the
// store is touched.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, role, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}

		if !policy.CanMessage(role) {
			http.Error(w, "Guests cannot send messages", http.StatusForbidden)
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		recipientID, err := uuid.Parse(req.RecipientID)
		if err != nil {
			http.Error(w, "Invalid recipient ID", http.StatusBadRequest)
			return
		}

		body := strings.TrimSpace(req.Body)
		if body == "" {
			http.Error(w, "Message body must not be empty", http.StatusBadRequest)
			return
		}

		if recipientID == userID {
			http.Error(w, "Sender and recipient must differ", http.StatusBadRequest)
			return
		}

		start := time.Now()
		msg, err := s.Store.Send(r.Context(), userID, recipientID, body)
		if err != nil {
			s.Metrics.IncrementErrors()
			writeError(w, err)
			return
		}
		s.Metrics.IncrementRequests()
		s.Metrics.AddOperationLatency("send_message", time.Since(start))

		writeJSON(w, http.StatusCreated, msg)
	}
}

// HandleMarkRead marks every message from the given partner to the
// caller as read. Already-read rows are left untouched.
func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}

		var req struct {
			PartnerID string `json:"partnerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		partnerID, err := uuid.Parse(req.PartnerID)
		if err != nil {
			http.Error(w, "Invalid partner ID", http.StatusBadRequest)
			return
		}

		if err := s.Store.MarkRead(r.Context(), userID, partnerID); err != nil {
			s.Metrics.IncrementErrors()
			writeError(w, err)
			return
		}
		s.Metrics.IncrementRequests()

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HandleDeleteMessage removes a single message. Only the sender or the
// recipient of the message may delete it.
func (s *Server) HandleDeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}

		messageParam := r.URL.Query().Get("messageId")
		if messageParam == "" {
			http.Error(w, "Message ID required", http.StatusBadRequest)
			return
		}
		messageID, err := uuid.Parse(messageParam)
		if err != nil {
			http.Error(w, "Invalid message ID", http.StatusBadRequest)
			return
		}

		msg, err := s.Store.GetMessage(r.Context(), messageID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !msg.Involves(userID) {
			writeError(w, utils.NewForbiddenError("not a participant of this message"))
			return
		}

		if err := s.Store.Delete(r.Context(), messageID); err != nil {
			s.Metrics.IncrementErrors()
			writeError(w, err)
			return
		}
		s.Metrics.IncrementRequests()

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
