package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"crewdesk/internal/models"
	"crewdesk/internal/utils"

	"github.com/google/uuid"
)

// MemoryStore implements MessageStore entirely in memory. It backs tests
// and DB_TYPE=memory development runs. The insert hook lets the realtime
// broker see new rows without a database trigger or change stream.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	messages map[uuid.UUID]*models.Message

	insertHook func(models.Message)

	// now is swappable so tests can control timestamps.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		messages: make(map[uuid.UUID]*models.Message),
		now:      time.Now,
	}
}

// SetInsertHook registers a callback invoked after every successful Send.
// The hook receives a copy of the inserted row.
func (s *MemoryStore) SetInsertHook(hook func(models.Message)) {
	s.mu.Lock()
	s.insertHook = hook
	s.mu.Unlock()
}

// SetClock overrides the timestamp source. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// PutUser adds or replaces a directory entry.
func (s *MemoryStore) PutUser(user *models.User) {
	s.mu.Lock()
	copied := *user
	s.users[user.ID] = &copied
	s.mu.Unlock()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// messageOlder orders by created_at with id as the stable secondary key.
func messageOlder(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// --- Message Methods ---

func (s *MemoryStore) ListMessagesInvolving(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := []*models.Message{}
	for _, m := range s.messages {
		if m.Involves(userID) {
			copied := *m
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messageOlder(messages[j], messages[i]) })
	return messages, nil
}

func (s *MemoryStore) ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := []*models.Message{}
	for _, m := range s.messages {
		if m.InThread(userID, partnerID) {
			copied := *m
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messageOlder(messages[i], messages[j]) })
	return messages, nil
}

func (s *MemoryStore) Send(ctx context.Context, senderID, recipientID uuid.UUID, body string) (*models.Message, error) {
	if senderID == recipientID {
		return nil, utils.NewValidationError("sender and recipient must differ")
	}

	s.mu.Lock()
	msg := &models.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		Kind:        models.KindUserMessage,
		Read:        false,
		CreatedAt:   s.now(),
	}
	s.messages[msg.ID] = msg
	hook := s.insertHook
	copied := *msg
	s.mu.Unlock()

	if hook != nil {
		hook(copied)
	}
	return &copied, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, recipientID, senderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.RecipientID == recipientID && m.SenderID == senderID && !m.Read {
			m.Read = true
		}
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[messageID]; !exists {
		return utils.NewNotFoundError("message not found")
	}
	delete(s.messages, messageID)
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.messages[messageID]
	if !exists {
		return nil, utils.NewNotFoundError("message not found")
	}
	copied := *m
	return &copied, nil
}

// --- User Directory Methods ---

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return nil, utils.NewNotFoundError("user not found")
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []*models.User{}
	for _, id := range ids {
		if u, exists := s.users[id]; exists {
			copied := *u
			users = append(users, &copied)
		}
	}
	return users, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roleSet := make(map[models.Role]bool, len(filter.Roles))
	for _, r := range filter.Roles {
		roleSet[r] = true
	}
	needle := strings.ToLower(filter.Search)

	users := []*models.User{}
	for _, u := range s.users {
		if len(roleSet) > 0 && !roleSet[u.Role] {
			continue
		}
		if filter.Exclude != uuid.Nil && u.ID == filter.Exclude {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(u.FullName), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		copied := *u
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}
