// Package realtime fans message-insert events out to live subscriptions.
// Sources (Postgres LISTEN/NOTIFY, Mongo change streams, the in-memory
// store hook) push rows into the Broker; sessions and inbox views
// register filtered subscriptions and own the returned handles.
package realtime

import (
	"sync"

	"crewdesk/internal/models"

	"github.com/google/uuid"
)

// Broker dispatches inserted messages to matching subscriptions. Delivery
// is synchronous in source order, so per-connection FIFO is preserved.
// No delivery guarantee beyond that: consumers must tolerate duplicates
// and missed events (sessions dedup by id, list views re-derive).
type Broker struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription is the capability handle for one registered callback.
// Whoever opened it owns it; there is no global registry to leak into.
type Subscription struct {
	broker  *Broker
	once    sync.Once
	match   func(*models.Message) bool
	deliver func(models.Message)
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// SubscribeThread invokes fn for every insert within the unordered pair
// {userID, partnerID}. Used while a single conversation is open.
func (b *Broker) SubscribeThread(userID, partnerID uuid.UUID, fn func(models.Message)) *Subscription {
	sub := &Subscription{
		broker: b,
		match: func(m *models.Message) bool {
			return m.InThread(userID, partnerID)
		},
		deliver: fn,
	}
	b.add(sub)
	return sub
}

// SubscribeInbox invokes fn for every insert involving userID. The
// callback carries no payload: it only signals that the conversation
// list may have changed and should be rebuilt from the store.
func (b *Broker) SubscribeInbox(userID uuid.UUID, fn func()) *Subscription {
	sub := &Subscription{
		broker: b,
		match: func(m *models.Message) bool {
			return m.Involves(userID)
		},
		deliver: func(models.Message) { fn() },
	}
	b.add(sub)
	return sub
}

func (b *Broker) add(sub *Subscription) {
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
}

// Publish delivers an inserted message to every matching subscription.
// Callbacks run outside the broker lock so they may close subscriptions.
func (b *Broker) Publish(msg models.Message) {
	b.mu.RLock()
	matched := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		if sub.match(&msg) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.deliver(msg)
	}
}

// SubscriptionCount reports the number of live subscriptions.
func (b *Broker) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close deregisters the subscription. Safe to call more than once and on
// an already-closed handle.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
}
