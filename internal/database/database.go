package database

import (
	"context"

	"crewdesk/internal/models"

	"github.com/google/uuid"
)

// UserFilter narrows directory queries. An empty Roles slice matches any
// role; Exclude, when non-nil, drops that user from the result. Search
// matches full name or email case-insensitively.
type UserFilter struct {
	Roles   []models.Role
	Exclude uuid.UUID
	Search  string
}

// MessageStore is the common interface over the message log and the user
// directory. It is the sole writer of message rows; everything above it
// only reads and derives.
//
// Implementations: PostgresStore, MongoStore, MemoryStore.
type MessageStore interface {
	// ListMessagesInvolving returns every message sent or received by
	// userID, newest first.
	ListMessagesInvolving(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)

	// ListThread returns all messages of the unordered pair
	// {userID, partnerID} in chronological order. An empty thread is an
	// empty slice, never an error.
	ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]*models.Message, error)

	// Send appends a new unread user message with a store-assigned id and
	// timestamp. Self-addressed messages fail with a VALIDATION_ERROR.
	Send(ctx context.Context, senderID, recipientID uuid.UUID, body string) (*models.Message, error)

	// MarkRead flips read=true on every unread message from senderID to
	// recipientID. Idempotent: a no-op when nothing is unread.
	MarkRead(ctx context.Context, recipientID, senderID uuid.UUID) error

	// Delete removes a single message. Authorization is the caller's
	// responsibility, not this layer's.
	Delete(ctx context.Context, messageID uuid.UUID) error

	// GetMessage fetches one message by id.
	GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error)

	// User directory reads.
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error)

	Close(ctx context.Context) error
}
