package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"crewdesk/internal/database"
	"crewdesk/internal/models"
	"crewdesk/internal/realtime"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type clientFixture struct {
	client *Client
	store  *database.MemoryStore
	broker *realtime.Broker
	self   *models.User
}

// The pumps need a live connection; session handling does not, so these
// tests drive openSession/closeSession directly and read frames from the
// send buffer.
func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()

	store := database.NewMemoryStore()
	broker := realtime.NewBroker()
	store.SetInsertHook(broker.Publish)

	self := &models.User{ID: uuid.New(), FullName: "Self", Email: "self@example.com", Role: models.RoleStaff}
	store.PutUser(self)

	return &clientFixture{
		client: &Client{
			UserID: self.ID,
			Role:   self.Role,
			Send:   make(chan []byte, 16),
			System: protoactor.NewActorSystem(),
			Store:  store,
			Broker: broker,
		},
		store:  store,
		broker: broker,
		self:   self,
	}
}

func (f *clientFixture) addPartner(name string) *models.User {
	partner := &models.User{ID: uuid.New(), FullName: name, Email: name + "@example.com", Role: models.RoleClient}
	f.store.PutUser(partner)
	return partner
}

func (f *clientFixture) nextFrame(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case payload := <-f.client.Send:
		frame := map[string]interface{}{}
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("Undecodable frame %q: %v", payload, err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a frame")
		return nil
	}
}

func TestClientSwitchClosesPriorSubscriptionSynchronously(t *testing.T) {
	f := newClientFixture(t)
	first := f.addPartner("First")
	second := f.addPartner("Second")

	f.client.openSession(first.ID)
	assert.Equal(t, 1, f.broker.SubscriptionCount())

	// Switching must never leave the previous thread's feed registered,
	// not even briefly: the old frame stream carries the new partner
	// otherwise.
	f.client.openSession(second.ID)
	assert.Equal(t, 1, f.broker.SubscriptionCount())

	f.client.closeSession()
	assert.Equal(t, 0, f.broker.SubscriptionCount())
}

func TestClientFramesCarryPartnerID(t *testing.T) {
	f := newClientFixture(t)
	partner := f.addPartner("Partner")

	f.client.openSession(partner.ID)

	frame := f.nextFrame(t)
	assert.Equal(t, "thread", frame["type"])
	assert.Equal(t, partner.ID.String(), frame["partnerId"])

	_, err := f.store.Send(context.Background(), partner.ID, f.self.ID, "incoming")
	assert.NoError(t, err)

	frame = f.nextFrame(t)
	assert.Equal(t, "message", frame["type"])
	assert.Equal(t, partner.ID.String(), frame["partnerId"])

	// The send ack and the live copy of the sent row race; both frames
	// must carry the partner id regardless of order.
	f.client.sendToSession("reply")
	types := []string{}
	for i := 0; i < 2; i++ {
		frame = f.nextFrame(t)
		assert.Equal(t, partner.ID.String(), frame["partnerId"])
		types = append(types, frame["type"].(string))
	}
	assert.ElementsMatch(t, []string{"sent", "message"}, types)
}
