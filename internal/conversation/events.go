package conversation

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names a change pushed to subscribers.
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventMessageUpdated  EventType = "message_updated"
	EventTypingStarted   EventType = "typing_started"
	EventTypingStopped   EventType = "typing_stopped"
	EventStateChanged    EventType = "state_changed"
)

// Event is one notification from a Manager.
type Event struct {
	Type      EventType        `json:"type"`
	Message   *RenderedMessage `json:"message,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	At        time.Time        `json:"at"`
}

const subscriberBuffer = 64

// broker fans events out to subscribers without blocking the publisher.
// A subscriber whose buffer is full misses the event.
type broker struct {
	mu     sync.Mutex
	subs   map[int64]chan Event
	nextID int64
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int64]chan Event)}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
