package realtime

import (
	"testing"
	"time"

	"crewdesk/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func insertFor(sender, recipient uuid.UUID) models.Message {
	return models.Message{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		Body:        "hello",
		Kind:        models.KindUserMessage,
		CreatedAt:   time.Now(),
	}
}

func TestThreadSubscriptionMatchesBothDirections(t *testing.T) {
	broker := NewBroker()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	received := []models.Message{}
	sub := broker.SubscribeThread(alice, bob, func(m models.Message) {
		received = append(received, m)
	})
	defer sub.Close()

	broker.Publish(insertFor(alice, bob))
	broker.Publish(insertFor(bob, alice))
	// A different pair must not leak into this thread.
	broker.Publish(insertFor(alice, carol))
	broker.Publish(insertFor(carol, bob))

	assert.Len(t, received, 2)
}

func TestInboxSubscriptionSignalsAnyInvolvement(t *testing.T) {
	broker := NewBroker()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	signals := 0
	sub := broker.SubscribeInbox(alice, func() { signals++ })
	defer sub.Close()

	broker.Publish(insertFor(bob, alice))
	broker.Publish(insertFor(alice, carol))
	broker.Publish(insertFor(bob, carol))

	assert.Equal(t, 2, signals)
}

func TestCloseStopsDelivery(t *testing.T) {
	broker := NewBroker()
	alice := uuid.New()
	bob := uuid.New()

	received := 0
	sub := broker.SubscribeThread(alice, bob, func(models.Message) { received++ })

	broker.Publish(insertFor(alice, bob))
	sub.Close()
	broker.Publish(insertFor(alice, bob))

	assert.Equal(t, 1, received)
	assert.Equal(t, 0, broker.SubscriptionCount())
}

func TestCloseIsIdempotent(t *testing.T) {
	broker := NewBroker()
	alice := uuid.New()
	bob := uuid.New()

	first := broker.SubscribeThread(alice, bob, func(models.Message) {})
	second := broker.SubscribeInbox(alice, func() {})

	first.Close()
	first.Close()
	first.Close()

	// Closing one handle twice must not disturb the other.
	assert.Equal(t, 1, broker.SubscriptionCount())
	second.Close()
	assert.Equal(t, 0, broker.SubscriptionCount())
}

func TestNilSubscriptionCloseIsSafe(t *testing.T) {
	var sub *Subscription
	assert.NotPanics(t, func() { sub.Close() })
}

func TestSubscriptionMayCloseItselfDuringDelivery(t *testing.T) {
	broker := NewBroker()
	alice := uuid.New()
	bob := uuid.New()

	var sub *Subscription
	received := 0
	sub = broker.SubscribeThread(alice, bob, func(models.Message) {
		received++
		sub.Close()
	})

	broker.Publish(insertFor(alice, bob))
	broker.Publish(insertFor(alice, bob))

	assert.Equal(t, 1, received)
}
