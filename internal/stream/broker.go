// Package stream delivers typed turn events to per-session subscribers.
package stream

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// Subscription is one caller's view of a session's event stream.
type Subscription struct {
	ID        string
	SessionID string
	C         chan domain.StreamEvent
}

// Broker fans turn events out to the subscribers of each session.
// Publishing never blocks: a subscriber whose buffer is full is dropped,
// matching the transport's at-most-once delivery.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // session id -> sub id -> sub
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a new subscriber for a session.
func (b *Broker) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		C:         make(chan domain.StreamEvent, 256),
	}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[string]*Subscription)
	}
	b.subs[sessionID][sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sessionSubs := b.subs[sub.SessionID]
	if sessionSubs == nil {
		return
	}
	if _, ok := sessionSubs[sub.ID]; !ok {
		return
	}
	delete(sessionSubs, sub.ID)
	if len(sessionSubs) == 0 {
		delete(b.subs, sub.SessionID)
	}
	close(sub.C)
}

// Publish delivers an event to every subscriber of the session.
func (b *Broker) Publish(sessionID string, event domain.StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[sessionID] {
		select {
		case sub.C <- event:
		default:
			log.Printf("WARN: subscriber %s buffer full, dropping event", sub.ID)
		}
	}
}

// Event builds a stream event with a marshalled payload.
func Event(eventType domain.StreamEventType, turnID string, payload interface{}) domain.StreamEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal stream payload: %v", err)
	}
	return domain.StreamEvent{
		Type:    eventType,
		Ts:      time.Now().UnixMilli(),
		TurnID:  turnID,
		Payload: data,
	}
}
