package messaging

import (
	"context"
	"log"
	"strings"

	"crewdesk/internal/database"
	"crewdesk/internal/models"
	"crewdesk/internal/policy"
	"crewdesk/internal/realtime"
	"crewdesk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of an open conversation.
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusLoading SessionStatus = "loading"
	StatusReady   SessionStatus = "ready"
	StatusError   SessionStatus = "error"
)

// Message types for SessionActor
type (
	// OpenThread loads the history, marks it read best-effort and opens
	// the thread-scoped subscription. Responds with *ThreadSnapshot.
	OpenThread struct{}

	// SendInput sends a message to the partner. Responds with the stored
	// *models.Message or a *utils.AppError.
	SendInput struct {
		Body string
	}

	// GetSnapshot responds with the current *ThreadSnapshot.
	GetSnapshot struct{}

	// CloseThread tears down the subscription. Responds with true.
	CloseThread struct{}

	// liveMessage carries a broker delivery into the mailbox.
	liveMessage struct {
		message models.Message
	}
)

// ThreadSnapshot is the session state handed to the UI layer.
type ThreadSnapshot struct {
	Status   SessionStatus     `json:"status"`
	Messages []*models.Message `json:"messages"`
	Error    string            `json:"error,omitempty"`
}

// SessionEvent notifies the UI surface of a live thread change.
type SessionEvent struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

// EventSink receives session events. Optional; nil means pull-only.
type EventSink func(SessionEvent)

// SessionConfig wires one session to its collaborators.
type SessionConfig struct {
	Store     database.MessageStore
	Broker    *realtime.Broker
	SelfID    uuid.UUID
	SelfRole  models.Role
	PartnerID uuid.UUID
	Sink      EventSink
}

// SessionActor owns the in-memory message sequence of one open
// conversation. The mailbox is the single event queue of the session:
// the history load runs inside the OpenThread receive, so live inserts
// queued behind it are reconciled strictly after the history settles.
// Live events are appended at the tail and deduplicated by id; no
// reordering happens after load.
type SessionActor struct {
	cfg      SessionConfig
	status   SessionStatus
	messages []*models.Message
	seen     map[uuid.UUID]bool
	errMsg   string
	sub      *realtime.Subscription
}

func NewSessionActor(cfg SessionConfig) *SessionActor {
	return &SessionActor{
		cfg:    cfg,
		status: StatusIdle,
		seen:   make(map[uuid.UUID]bool),
	}
}

// SpawnSession starts a session actor on the system's root context.
func SpawnSession(system *actor.ActorSystem, cfg SessionConfig) *actor.PID {
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSessionActor(cfg)
	})
	return system.Root.Spawn(props)
}

func (a *SessionActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *OpenThread:
		a.handleOpen(context)
	case *SendInput:
		a.handleSend(context, msg)
	case *GetSnapshot:
		context.Respond(a.snapshot())
	case *liveMessage:
		a.handleLiveMessage(msg.message)
	case *CloseThread:
		a.closeSubscription()
		context.Respond(true)
	case *actor.Stopping:
		a.closeSubscription()
	}
}

func (a *SessionActor) handleOpen(ctx actor.Context) {
	a.status = StatusLoading
	a.errMsg = ""
	a.messages = nil
	a.seen = make(map[uuid.UUID]bool)

	// Subscribe before the history query, replacing any prior
	// subscription. An insert racing the load is delivered into the
	// mailbox behind this receive, so it is applied strictly after the
	// history settles instead of being lost to the query snapshot; the
	// seen set reconciles any overlap.
	a.closeSubscription()
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	a.sub = a.cfg.Broker.SubscribeThread(a.cfg.SelfID, a.cfg.PartnerID, func(m models.Message) {
		root.Send(self, &liveMessage{message: m})
	})

	thread, err := a.cfg.Store.ListThread(context.Background(), a.cfg.SelfID, a.cfg.PartnerID)
	if err != nil {
		a.status = StatusError
		a.errMsg = "failed to load conversation history"
		a.closeSubscription()
		log.Printf("Session %s/%s: history load failed: %v", a.cfg.SelfID, a.cfg.PartnerID, err)
		ctx.Respond(a.snapshot())
		return
	}

	a.status = StatusReady
	a.messages = thread
	for _, m := range thread {
		a.seen[m.ID] = true
	}

	// Mark-read is best-effort: its failure never invalidates the loaded
	// thread.
	if err := a.cfg.Store.MarkRead(context.Background(), a.cfg.SelfID, a.cfg.PartnerID); err != nil {
		log.Printf("Session %s/%s: mark-read failed: %v", a.cfg.SelfID, a.cfg.PartnerID, err)
	}

	ctx.Respond(a.snapshot())
}

func (a *SessionActor) handleSend(ctx actor.Context, in *SendInput) {
	// Rejections below happen locally, before any store call.
	if !policy.CanMessage(a.cfg.SelfRole) {
		ctx.Respond(utils.NewValidationError("guests cannot send messages"))
		return
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		ctx.Respond(utils.NewValidationError("message body must not be empty"))
		return
	}
	if a.cfg.SelfID == a.cfg.PartnerID {
		ctx.Respond(utils.NewValidationError("sender and recipient must differ"))
		return
	}

	msg, err := a.cfg.Store.Send(context.Background(), a.cfg.SelfID, a.cfg.PartnerID, body)
	if err != nil {
		if appErr, ok := err.(*utils.AppError); ok {
			ctx.Respond(appErr)
		} else {
			ctx.Respond(utils.NewStoreError("failed to send message", err))
		}
		return
	}

	// The stored row comes back through the realtime subscription and is
	// appended there, same as the partner's copy.
	ctx.Respond(msg)
}

func (a *SessionActor) handleLiveMessage(m models.Message) {
	if a.sub == nil {
		// Closed session; a late delivery must not touch state.
		return
	}
	if a.seen[m.ID] {
		return
	}
	a.seen[m.ID] = true

	copied := m
	a.messages = append(a.messages, &copied)

	if a.cfg.Sink != nil {
		a.cfg.Sink(SessionEvent{Type: "message", Message: &copied})
	}
}

func (a *SessionActor) snapshot() *ThreadSnapshot {
	messages := make([]*models.Message, len(a.messages))
	copy(messages, a.messages)
	return &ThreadSnapshot{
		Status:   a.status,
		Messages: messages,
		Error:    a.errMsg,
	}
}

func (a *SessionActor) closeSubscription() {
	if a.sub != nil {
		a.sub.Close()
		a.sub = nil
	}
}
