package messaging

import (
	"context"
	"testing"
	"time"

	"crewdesk/internal/database"
	"crewdesk/internal/models"
	"crewdesk/internal/realtime"
	"crewdesk/internal/utils"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type sessionFixture struct {
	system  *protoactor.ActorSystem
	store   *database.MemoryStore
	broker  *realtime.Broker
	self    *models.User
	partner *models.User
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	store := database.NewMemoryStore()
	broker := realtime.NewBroker()
	store.SetInsertHook(broker.Publish)

	self := &models.User{ID: uuid.New(), FullName: "Self", Email: "self@example.com", Role: models.RoleStaff}
	partner := &models.User{ID: uuid.New(), FullName: "Partner", Email: "partner@example.com", Role: models.RoleClient}
	store.PutUser(self)
	store.PutUser(partner)

	return &sessionFixture{
		system:  protoactor.NewActorSystem(),
		store:   store,
		broker:  broker,
		self:    self,
		partner: partner,
	}
}

func (f *sessionFixture) spawn(role models.Role) *protoactor.PID {
	return SpawnSession(f.system, SessionConfig{
		Store:     f.store,
		Broker:    f.broker,
		SelfID:    f.self.ID,
		SelfRole:  role,
		PartnerID: f.partner.ID,
	})
}

func (f *sessionFixture) request(t *testing.T, pid *protoactor.PID, msg interface{}) interface{} {
	t.Helper()
	future := f.system.Root.RequestFuture(pid, msg, 5*time.Second)
	result, err := future.Result()
	if err != nil {
		t.Fatalf("Request %T failed: %v", msg, err)
	}
	return result
}

func (f *sessionFixture) snapshot(t *testing.T, pid *protoactor.PID) *ThreadSnapshot {
	t.Helper()
	result := f.request(t, pid, &GetSnapshot{})
	snap, ok := result.(*ThreadSnapshot)
	if !ok {
		t.Fatalf("Expected *ThreadSnapshot, got %T", result)
	}
	return snap
}

func TestSessionOpenLoadsHistoryAndMarksRead(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.store.Send(ctx, f.partner.ID, f.self.ID, "hello")
	assert.NoError(t, err)
	_, err = f.store.Send(ctx, f.partner.ID, f.self.ID, "are you there?")
	assert.NoError(t, err)

	pid := f.spawn(models.RoleStaff)
	result := f.request(t, pid, &OpenThread{})

	snap, ok := result.(*ThreadSnapshot)
	assert.True(t, ok)
	assert.Equal(t, StatusReady, snap.Status)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, "hello", snap.Messages[0].Body)
	assert.Equal(t, "are you there?", snap.Messages[1].Body)

	// Opening the thread clears the partner's unread messages.
	inbox, err := f.store.ListThread(ctx, f.self.ID, f.partner.ID)
	assert.NoError(t, err)
	for _, m := range inbox {
		assert.True(t, m.Read)
	}
}

func TestSessionSendArrivesThroughSubscription(t *testing.T) {
	f := newSessionFixture(t)

	pid := f.spawn(models.RoleStaff)
	f.request(t, pid, &OpenThread{})

	result := f.request(t, pid, &SendInput{Body: "  shipping update  "})
	sent, ok := result.(*models.Message)
	assert.True(t, ok)
	assert.Equal(t, "shipping update", sent.Body)
	assert.Equal(t, f.self.ID, sent.SenderID)
	assert.Equal(t, f.partner.ID, sent.RecipientID)

	// The stored row flows back via the broker and lands exactly once.
	assert.Eventually(t, func() bool {
		snap := f.snapshot(t, pid)
		return len(snap.Messages) == 1 && snap.Messages[0].ID == sent.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionLiveInsertFromPartnerAppends(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pid := f.spawn(models.RoleStaff)
	f.request(t, pid, &OpenThread{})

	incoming, err := f.store.Send(ctx, f.partner.ID, f.self.ID, "just checking in")
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		snap := f.snapshot(t, pid)
		return len(snap.Messages) == 1 && snap.Messages[0].ID == incoming.ID
	}, 2*time.Second, 10*time.Millisecond)
}

// staleThreadStore runs a hook after taking its history snapshot but
// before returning it, modeling an insert that lands mid-load.
type staleThreadStore struct {
	*database.MemoryStore
	onLoad func()
}

func (s *staleThreadStore) ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]*models.Message, error) {
	thread, err := s.MemoryStore.ListThread(ctx, userID, partnerID)
	if hook := s.onLoad; hook != nil {
		s.onLoad = nil
		hook()
	}
	return thread, err
}

func TestSessionInsertDuringHistoryLoadIsNotLost(t *testing.T) {
	f := newSessionFixture(t)

	store := &staleThreadStore{MemoryStore: f.store}
	var racedID uuid.UUID
	store.onLoad = func() {
		sent, err := f.store.Send(context.Background(), f.partner.ID, f.self.ID, "raced the load")
		assert.NoError(t, err)
		racedID = sent.ID
	}

	pid := SpawnSession(f.system, SessionConfig{
		Store:     store,
		Broker:    f.broker,
		SelfID:    f.self.ID,
		SelfRole:  models.RoleStaff,
		PartnerID: f.partner.ID,
	})

	result := f.request(t, pid, &OpenThread{})
	snap, ok := result.(*ThreadSnapshot)
	assert.True(t, ok)
	assert.Equal(t, StatusReady, snap.Status)

	// The insert was outside the load's snapshot, so it must arrive
	// through the subscription opened before the query ran.
	assert.Eventually(t, func() bool {
		s := f.snapshot(t, pid)
		return len(s.Messages) == 1 && s.Messages[0].ID == racedID
	}, 2*time.Second, 10*time.Millisecond)
}

type failingThreadStore struct {
	*database.MemoryStore
}

func (s *failingThreadStore) ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]*models.Message, error) {
	return nil, utils.NewStoreError("history query failed", nil)
}

func TestSessionLoadFailureClosesSubscription(t *testing.T) {
	f := newSessionFixture(t)

	pid := SpawnSession(f.system, SessionConfig{
		Store:     &failingThreadStore{MemoryStore: f.store},
		Broker:    f.broker,
		SelfID:    f.self.ID,
		SelfRole:  models.RoleStaff,
		PartnerID: f.partner.ID,
	})

	result := f.request(t, pid, &OpenThread{})
	snap, ok := result.(*ThreadSnapshot)
	assert.True(t, ok)
	assert.Equal(t, StatusError, snap.Status)
	assert.NotEmpty(t, snap.Error)

	// An errored session must not keep a live feed open.
	assert.Equal(t, 0, f.broker.SubscriptionCount())
}

func TestSessionDeduplicatesRepeatedDeliveries(t *testing.T) {
	f := newSessionFixture(t)

	pid := f.spawn(models.RoleStaff)
	f.request(t, pid, &OpenThread{})

	msg := models.Message{
		ID:          uuid.New(),
		SenderID:    f.partner.ID,
		RecipientID: f.self.ID,
		Body:        "once only",
		Kind:        models.KindUserMessage,
		CreatedAt:   time.Now(),
	}
	// A flaky source may replay the same insert.
	f.broker.Publish(msg)
	f.broker.Publish(msg)
	f.broker.Publish(msg)

	assert.Eventually(t, func() bool {
		return len(f.snapshot(t, pid).Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.snapshot(t, pid).Messages, 1)
}

func TestSessionGuestSendRejectedLocally(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pid := f.spawn(models.RoleGuest)
	f.request(t, pid, &OpenThread{})

	result := f.request(t, pid, &SendInput{Body: "let me in"})
	appErr, ok := result.(*utils.AppError)
	assert.True(t, ok)
	assert.True(t, utils.IsErrorCode(appErr, utils.ErrValidation))

	// The rejection happened before the store was touched.
	thread, err := f.store.ListThread(ctx, f.self.ID, f.partner.ID)
	assert.NoError(t, err)
	assert.Empty(t, thread)
}

func TestSessionBlankBodyRejectedLocally(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pid := f.spawn(models.RoleStaff)
	f.request(t, pid, &OpenThread{})

	for _, body := range []string{"", "   ", "\n\t"} {
		result := f.request(t, pid, &SendInput{Body: body})
		appErr, ok := result.(*utils.AppError)
		assert.True(t, ok)
		assert.True(t, utils.IsErrorCode(appErr, utils.ErrValidation))
	}

	thread, err := f.store.ListThread(ctx, f.self.ID, f.partner.ID)
	assert.NoError(t, err)
	assert.Empty(t, thread)
}

func TestSessionCloseStopsLiveDelivery(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pid := f.spawn(models.RoleStaff)
	f.request(t, pid, &OpenThread{})
	assert.Equal(t, 1, f.broker.SubscriptionCount())

	result := f.request(t, pid, &CloseThread{})
	assert.Equal(t, true, result)
	assert.Equal(t, 0, f.broker.SubscriptionCount())

	// Inserts after close leave the session untouched.
	_, err := f.store.Send(ctx, f.partner.ID, f.self.ID, "too late")
	assert.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.snapshot(t, pid).Messages)
}

func TestSessionReopenReplacesSubscription(t *testing.T) {
	f := newSessionFixture(t)

	pid := f.spawn(models.RoleStaff)
	f.request(t, pid, &OpenThread{})
	f.request(t, pid, &OpenThread{})

	// Reopening must not stack a second live subscription.
	assert.Equal(t, 1, f.broker.SubscriptionCount())
}
