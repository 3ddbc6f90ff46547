// Package events provides an in-process publish/subscribe bus used to
// push notification updates to connected clients.
//
// Each subscriber registers for a single recipient's events and receives
// them on a buffered channel. Delivery is best-effort: a subscriber whose
// buffer is full misses the event rather than blocking the publisher.
// Clients are expected to reconcile by refetching the feed.
package events

import (
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Kind identifies what changed for a recipient.
type Kind string

const (
	// KindActivity means a new activity was recorded for the recipient.
	KindActivity Kind = "activity"
	// KindRetraction means one or more activities were retracted.
	KindRetraction Kind = "retraction"
	// KindRead means the recipient's read state changed.
	KindRead Kind = "read"
)

// Event is a lightweight change signal. It carries no activity payload;
// subscribers refetch whatever view they need.
type Event struct {
	Kind      Kind
	Recipient primitive.ObjectID
}

// Subscription is a live registration on the bus. The zero value is not
// usable; obtain one from Bus.Subscribe.
type Subscription struct {
	ID        string
	Recipient primitive.ObjectID
	C         <-chan Event

	ch chan Event
}

// Bus fans events out to the subscribers registered for each recipient.
type Bus struct {
	mu   sync.RWMutex
	subs map[primitive.ObjectID]map[string]*Subscription
	log  *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[primitive.ObjectID]map[string]*Subscription),
		log:  logger,
	}
}

const subscriberBuffer = 8

// Subscribe registers for events addressed to recipient. The caller must
// call Unsubscribe with the returned subscription when done, or the
// registration leaks.
func (b *Bus) Subscribe(recipient primitive.ObjectID) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{
		ID:        uuid.NewString(),
		Recipient: recipient,
		C:         ch,
		ch:        ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.subs[recipient]
	if !ok {
		m = make(map[string]*Subscription)
		b.subs[recipient] = m
	}
	m[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. It is
// safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.subs[sub.Recipient]
	if !ok {
		return
	}
	if _, ok := m[sub.ID]; !ok {
		return
	}
	delete(m, sub.ID)
	if len(m) == 0 {
		delete(b.subs, sub.Recipient)
	}
	close(sub.ch)
}

// Publish delivers the event to every subscriber registered for its
// recipient. Subscribers with full buffers are skipped.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[ev.Recipient] {
		select {
		case sub.ch <- ev:
		default:
			if b.log != nil {
				b.log.Debug("event dropped, subscriber buffer full",
					zap.String("subscription_id", sub.ID),
					zap.String("recipient", ev.Recipient.Hex()),
					zap.String("kind", string(ev.Kind)))
			}
		}
	}
}

// SubscriberCount reports how many subscriptions exist for recipient.
func (b *Bus) SubscriberCount(recipient primitive.ObjectID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[recipient])
}
