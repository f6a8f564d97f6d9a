package websocket

import (
	"encoding/json"
	"log"
	"time"

	"crewdesk/internal/database"
	"crewdesk/internal/messaging"
	"crewdesk/internal/models"
	"crewdesk/internal/realtime"
	"crewdesk/internal/utils"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Timeout for session actor round-trips.
	sessionTimeout = 5 * time.Second
)

// Client is one UI surface: a websocket connection bound to a user, an
// inbox-scoped subscription, and at most one open conversation session.
type Client struct {
	Hub *Hub

	// The identity this surface acts as.
	UserID uuid.UUID
	Role   models.Role

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound payloads.
	Send chan []byte

	// Collaborators for spawning sessions.
	System *protoactor.ActorSystem
	Store  database.MessageStore
	Broker *realtime.Broker

	inboxSub   *realtime.Subscription
	sessionPID *protoactor.PID
	partnerID  uuid.UUID
}

// Inbound commands from the UI surface.
type clientCommand struct {
	Type      string `json:"type"`
	PartnerID string `json:"partnerId,omitempty"`
	Body      string `json:"body,omitempty"`
}

// Outbound event envelopes.
type threadEvent struct {
	Type      string                    `json:"type"`
	PartnerID uuid.UUID                 `json:"partnerId"`
	Snapshot  *messaging.ThreadSnapshot `json:"snapshot"`
}

type messageEvent struct {
	Type      string          `json:"type"`
	PartnerID uuid.UUID       `json:"partnerId"`
	Message   *models.Message `json:"message"`
}

type signalEvent struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OpenInbox registers the inbox-scoped subscription for this surface:
// any insert involving the user produces a "conversations_changed"
// signal, after which the UI re-fetches the list. One subscription per
// surface; a prior one is closed first.
func (c *Client) OpenInbox() {
	if c.inboxSub != nil {
		c.inboxSub.Close()
	}
	c.inboxSub = c.Broker.SubscribeInbox(c.UserID, func() {
		c.enqueueJSON(signalEvent{Type: "conversations_changed"})
	})
}

// ReadPump pumps commands from the websocket connection to the session.
func (c *Client) ReadPump() {
	defer func() {
		c.closeSession()
		if c.inboxSub != nil {
			c.inboxSub.Close()
		}
		c.Hub.Unregister <- c
		c.Conn.Close()
		log.Printf("WebSocket ReadPump stopped for user %s", c.UserID)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for user %s: %v", c.UserID, err)
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrValidation, Message: "malformed command"})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd clientCommand) {
	switch cmd.Type {
	case "open":
		partnerID, err := uuid.Parse(cmd.PartnerID)
		if err != nil {
			c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrValidation, Message: "invalid partner id"})
			return
		}
		c.openSession(partnerID)

	case "send":
		c.sendToSession(cmd.Body)

	case "close":
		c.closeSession()

	default:
		c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrValidation, Message: "unknown command type"})
	}
}

// openSession replaces the current session, if any, with one for the
// given partner. The old session is stopped first so its subscription is
// gone before the new one opens.
func (c *Client) openSession(partnerID uuid.UUID) {
	c.closeSession()

	pid := messaging.SpawnSession(c.System, messaging.SessionConfig{
		Store:     c.Store,
		Broker:    c.Broker,
		SelfID:    c.UserID,
		SelfRole:  c.Role,
		PartnerID: partnerID,
		Sink: func(event messaging.SessionEvent) {
			c.enqueueJSON(messageEvent{Type: event.Type, PartnerID: partnerID, Message: event.Message})
		},
	})
	c.sessionPID = pid
	c.partnerID = partnerID

	future := c.System.Root.RequestFuture(pid, &messaging.OpenThread{}, sessionTimeout)
	result, err := future.Result()
	if err != nil {
		c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrStore, Message: "failed to open conversation"})
		return
	}

	snapshot, ok := result.(*messaging.ThreadSnapshot)
	if !ok {
		c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrStore, Message: "failed to open conversation"})
		return
	}
	c.enqueueJSON(threadEvent{Type: "thread", PartnerID: partnerID, Snapshot: snapshot})
}

func (c *Client) sendToSession(body string) {
	if c.sessionPID == nil {
		c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrValidation, Message: "no open conversation"})
		return
	}

	future := c.System.Root.RequestFuture(c.sessionPID, &messaging.SendInput{Body: body}, sessionTimeout)
	result, err := future.Result()
	if err != nil {
		c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrStore, Message: "failed to send message"})
		return
	}

	switch outcome := result.(type) {
	case *utils.AppError:
		c.enqueueJSON(errorEvent{Type: "error", Code: outcome.Code, Message: outcome.Message})
	case *models.Message:
		// Acknowledge so the UI clears its input; the message itself
		// arrives through the session's live subscription.
		c.enqueueJSON(messageEvent{Type: "sent", PartnerID: c.partnerID, Message: outcome})
	default:
		c.enqueueJSON(errorEvent{Type: "error", Code: utils.ErrStore, Message: "unexpected send result"})
	}
}

// closeSession tears the current session down synchronously: the
// CloseThread round-trip guarantees its subscription is gone before the
// caller opens a replacement, so no stale frame can follow the switch.
func (c *Client) closeSession() {
	if c.sessionPID == nil {
		return
	}
	future := c.System.Root.RequestFuture(c.sessionPID, &messaging.CloseThread{}, sessionTimeout)
	if _, err := future.Result(); err != nil {
		log.Printf("Failed to close session for user %s: %v", c.UserID, err)
	}
	c.System.Root.Stop(c.sessionPID)
	c.sessionPID = nil
	c.partnerID = uuid.Nil
}

func (c *Client) enqueueJSON(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event for user %s: %v", c.UserID, err)
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Printf("Send buffer full for user %s, dropping event", c.UserID)
	}
}

// WritePump pumps queued payloads to the websocket connection, one frame
// per event.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		log.Printf("WebSocket WritePump stopped for user %s", c.UserID)
	}()
	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("WebSocket write error for user %s: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
