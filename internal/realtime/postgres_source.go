package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"crewdesk/internal/database"
	"crewdesk/internal/models"
	"crewdesk/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = 30 * time.Second
)

// rowPayload mirrors the row_to_json output of the insert trigger.
type rowPayload struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	Kind        string `json:"kind"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at"`
}

// PostgresSource feeds the broker from the LISTEN/NOTIFY channel attached
// to the messages insert trigger. One source per process.
type PostgresSource struct {
	listener *pq.Listener
	broker   *Broker
	done     chan struct{}
	once     sync.Once
}

// NewPostgresSource opens a dedicated listening connection and subscribes
// to the message insert channel.
func NewPostgresSource(connectionString string, broker *Broker) (*PostgresSource, error) {
	listener := pq.NewListener(connectionString, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("Postgres listener event %d: %v", event, err)
			}
		})

	if err := listener.Listen(database.NotifyChannel); err != nil {
		listener.Close()
		return nil, utils.NewSubscriptionError("failed to listen on message insert channel", err)
	}

	return &PostgresSource{
		listener: listener,
		broker:   broker,
		done:     make(chan struct{}),
	}, nil
}

// Run consumes notifications until Close. Call it on its own goroutine.
func (s *PostgresSource) Run() {
	log.Printf("Postgres realtime source listening on %q", database.NotifyChannel)
	for {
		select {
		case <-s.done:
			return
		case notification := <-s.listener.Notify:
			if notification == nil {
				// The listener reconnected; notifications in between are
				// lost. Consumers re-derive from the store, so signal
				// nothing and keep going.
				log.Println("Postgres listener reconnected, events may have been missed")
				continue
			}
			msg, err := decodeRowPayload([]byte(notification.Extra))
			if err != nil {
				log.Printf("Dropping undecodable insert notification: %v", err)
				continue
			}
			s.broker.Publish(*msg)
		}
	}
}

// Close stops the loop and tears down the listening connection. Safe to
// call more than once.
func (s *PostgresSource) Close() {
	s.once.Do(func() {
		close(s.done)
		if err := s.listener.Close(); err != nil {
			log.Printf("Failed to close Postgres listener: %v", err)
		}
	})
}

func decodeRowPayload(raw []byte) (*models.Message, error) {
	var payload rowPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return nil, err
	}
	senderID, err := uuid.Parse(payload.SenderID)
	if err != nil {
		return nil, err
	}
	recipientID, err := uuid.Parse(payload.RecipientID)
	if err != nil {
		return nil, err
	}
	createdAt, err := parsePostgresTime(payload.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &models.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        payload.Body,
		Kind:        payload.Kind,
		Read:        payload.Read,
		CreatedAt:   createdAt,
	}, nil
}

// parsePostgresTime handles the timestamp shapes row_to_json emits.
func parsePostgresTime(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999-07",
		"2006-01-02 15:04:05.999999999-07",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
