package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"crewdesk/internal/models"
	"crewdesk/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// NotifyChannel is the LISTEN/NOTIFY channel fed by the insert trigger on
// the messages table. The realtime layer listens here.
const NotifyChannel = "crewdesk_message_inserts"

// PostgresStore implements MessageStore on PostgreSQL.
type PostgresStore struct {
	DB *sqlx.DB
}

// NewPostgresStore opens a PostgreSQL connection pool and verifies it.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresStore{DB: db}, nil
}

// Close closes the database connection
func (p *PostgresStore) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

// InitializeSchema creates the tables and the insert-notification trigger
// if they don't exist.
func (p *PostgresStore) InitializeSchema(ctx context.Context) error {
	// Users directory. Owned by the user/auth collaborator; created here
	// so a fresh database is usable for development.
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			full_name VARCHAR(100) NOT NULL,
			email VARCHAR(100) UNIQUE NOT NULL,
			role VARCHAR(20) NOT NULL,
			avatar_url VARCHAR(255)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %v", err)
	}

	// Messages table
	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			sender_id UUID NOT NULL REFERENCES users(id),
			recipient_id UUID NOT NULL REFERENCES users(id),
			body TEXT NOT NULL,
			kind VARCHAR(30) NOT NULL DEFAULT 'user_message',
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CHECK (sender_id <> recipient_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_messages_unread
		ON messages (recipient_id, sender_id) WHERE read = FALSE
	`)
	if err != nil {
		return fmt.Errorf("failed to create unread index: %v", err)
	}

	// Row-insert notification: every insert is published on NotifyChannel
	// as the JSON of the new row, which the realtime listener decodes.
	_, err = p.DB.ExecContext(ctx, `
		CREATE OR REPLACE FUNCTION crewdesk_notify_message_insert() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('`+NotifyChannel+`', row_to_json(NEW)::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql
	`)
	if err != nil {
		return fmt.Errorf("failed to create notify function: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		DROP TRIGGER IF EXISTS messages_insert_notify ON messages;
		CREATE TRIGGER messages_insert_notify
		AFTER INSERT ON messages
		FOR EACH ROW EXECUTE FUNCTION crewdesk_notify_message_insert()
	`)
	if err != nil {
		return fmt.Errorf("failed to create notify trigger: %v", err)
	}

	return nil
}

// --- Message Methods ---

// ListMessagesInvolving fetches all messages sent or received by a user,
// newest first. Ties on created_at break on id so the order is stable.
func (p *PostgresStore) ListMessagesInvolving(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, body, kind, read, created_at
		FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC, id DESC
	`
	messages := []*models.Message{}
	err := p.DB.SelectContext(ctx, &messages, query, userID)
	if err != nil {
		return nil, utils.NewStoreError("failed to query messages for user", err)
	}
	return messages, nil
}

// ListThread fetches the conversation between two users in chronological
// order. No messages yields an empty slice.
func (p *PostgresStore) ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, body, kind, read, created_at
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC, id ASC
	`
	messages := []*models.Message{}
	err := p.DB.SelectContext(ctx, &messages, query, userID, partnerID)
	if err != nil {
		return nil, utils.NewStoreError("failed to query thread", err)
	}
	return messages, nil
}

// Send inserts a new unread message and returns it with the assigned id
// and timestamp.
func (p *PostgresStore) Send(ctx context.Context, senderID, recipientID uuid.UUID, body string) (*models.Message, error) {
	if senderID == recipientID {
		return nil, utils.NewValidationError("sender and recipient must differ")
	}

	msg := &models.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		Kind:        models.KindUserMessage,
		Read:        false,
	}

	query := `
		INSERT INTO messages (id, sender_id, recipient_id, body, kind, read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := p.DB.QueryRowxContext(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.RecipientID,
		msg.Body,
		msg.Kind,
		msg.Read,
	).Scan(&msg.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "check_violation" {
			return nil, utils.NewValidationError("sender and recipient must differ")
		}
		return nil, utils.NewStoreError("failed to insert message", err)
	}
	return msg, nil
}

// MarkRead flips every unread message from senderID to recipientID to
// read. Running it again affects zero rows, which is fine.
func (p *PostgresStore) MarkRead(ctx context.Context, recipientID, senderID uuid.UUID) error {
	query := `
		UPDATE messages SET read = TRUE
		WHERE recipient_id = $1 AND sender_id = $2 AND read = FALSE
	`
	_, err := p.DB.ExecContext(ctx, query, recipientID, senderID)
	if err != nil {
		return utils.NewStoreError("failed to mark messages read", err)
	}
	return nil
}

// Delete removes a single message row.
func (p *PostgresStore) Delete(ctx context.Context, messageID uuid.UUID) error {
	result, err := p.DB.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return utils.NewStoreError("failed to delete message", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewStoreError("failed to get rows affected after delete", err)
	}
	if rowsAffected == 0 {
		return utils.NewNotFoundError("message not found")
	}
	return nil
}

// GetMessage fetches one message by id.
func (p *PostgresStore) GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, body, kind, read, created_at
		FROM messages WHERE id = $1
	`
	var msg models.Message
	err := p.DB.GetContext(ctx, &msg, query, messageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewNotFoundError("message not found")
		}
		return nil, utils.NewStoreError("failed to query message by id", err)
	}
	return &msg, nil
}

// --- User Directory Methods ---

// GetUser fetches a user by their ID.
func (p *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT id, full_name, email, role, avatar_url FROM users WHERE id = $1`
	var user models.User
	err := p.DB.GetContext(ctx, &user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewNotFoundError("user not found")
		}
		return nil, utils.NewStoreError("failed to query user by id", err)
	}
	return &user, nil
}

// GetUsersByIDs fetches the directory entries for an id set.
func (p *PostgresStore) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	users := []*models.User{}
	if len(ids) == 0 {
		return users, nil
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	query := `SELECT id, full_name, email, role, avatar_url FROM users WHERE id = ANY($1)`
	err := p.DB.SelectContext(ctx, &users, query, pq.Array(idStrings))
	if err != nil {
		return nil, utils.NewStoreError("failed to query users by ids", err)
	}
	return users, nil
}

// ListUsers fetches directory entries matching the filter.
func (p *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	query := `SELECT id, full_name, email, role, avatar_url FROM users`
	clauses := []string{}
	args := []interface{}{}

	if len(filter.Roles) > 0 {
		roleStrings := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			roleStrings[i] = string(r)
		}
		args = append(args, pq.Array(roleStrings))
		clauses = append(clauses, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	if filter.Exclude != uuid.Nil {
		args = append(args, filter.Exclude)
		clauses = append(clauses, fmt.Sprintf("id <> $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY full_name ASC"

	users := []*models.User{}
	err := p.DB.SelectContext(ctx, &users, query, args...)
	if err != nil {
		return nil, utils.NewStoreError("failed to query users", err)
	}
	return users, nil
}
