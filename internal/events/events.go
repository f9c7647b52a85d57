package events

import (
	"context"
	"strings"
	"sync"
)

// Event kinds carried over the real-time channel.
const (
	TypeDispatchStarted = "dispatch_started"
	TypeWorkerProgress  = "worker_progress"
	TypeWorkerCompleted = "worker_completed"
	TypeCompositeReady  = "composite_ready"
	TypeItemCreated     = "item_created"
	TypeItemMutated     = "item_mutated"
	TypeError           = "error"
)

// Event is a point-in-time lifecycle notification. Events are ephemeral:
// the broker never queues or replays them, so a reconnecting client has to
// re-fetch current state instead.
type Event struct {
	Type       string         `json:"type"`
	ClientID   string         `json:"client_id,omitempty"`
	DispatchID string         `json:"dispatch_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Worker     string         `json:"worker,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

// Broker fans events out to live subscribers. Subscriptions are keyed by
// client ID; global subscribers additionally receive every event regardless
// of its client. Publishing never blocks: a subscriber that cannot keep up
// loses events (at-most-once delivery).
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	global      map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan Event]struct{}{},
		global:      map[chan Event]struct{}{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, clientID string) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subscribers[clientID] == nil {
		b.subscribers[clientID] = map[chan Event]struct{}{}
	}
	b.subscribers[clientID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Close while holding the lock: Publish sends under the read
		// lock, so it can never race a send against this close.
		b.mu.Lock()
		if b.subscribers[clientID] != nil {
			delete(b.subscribers[clientID], ch)
			if len(b.subscribers[clientID]) == 0 {
				delete(b.subscribers, clientID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// SubscribeGlobal delivers every published event, including broadcasts
// that carry no client ID.
func (b *Broker) SubscribeGlobal(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.global[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.global, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to subscribers watching its client and to all
// global subscribers. An event without a client ID is a pure broadcast.
func (b *Broker) Publish(event Event) {
	event.Type = NormalizeType(event.Type)

	// Sends stay under the read lock. They are non-blocking, and holding
	// the lock keeps them ordered before any unsubscribe close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.global {
		select {
		case ch <- event:
		default:
		}
	}
	if event.ClientID != "" {
		for ch := range b.subscribers[event.ClientID] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}
