package models

import (
	"time"

	"github.com/google/uuid"
)

// KindUserMessage tags messages authored by a user. Other kinds (system
// notices etc.) may be added later without schema changes.
const KindUserMessage = "user_message"

// Message is a row in the append-mostly message log. Rows are immutable
// after insert except for Read, which only ever transitions false->true
// and only by the recipient's session.
type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SenderID    uuid.UUID `json:"senderId" db:"sender_id"`
	RecipientID uuid.UUID `json:"recipientId" db:"recipient_id"`
	Body        string    `json:"body" db:"body"`
	Kind        string    `json:"kind" db:"kind"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Involves reports whether userID is either participant of the message.
func (m *Message) Involves(userID uuid.UUID) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// PartnerOf returns the other participant from userID's perspective.
// Callers must ensure the message involves userID.
func (m *Message) PartnerOf(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// InThread reports whether the message belongs to the unordered pair
// {a, b}.
func (m *Message) InThread(a, b uuid.UUID) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}
