package repo

import (
	"sync"
	"time"
)

// EventType classifies a table change notification.
type EventType string

// Event types emitted after successful commits.
const (
	EventCreated  EventType = "created"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
	EventRestored EventType = "restored"
)

// Event is a change notification for one committed mutation. Events replace
// the polling-style table re-reads of earlier designs.
type Event struct {
	At    time.Time
	Table string
	ID    string
	Type  EventType
}

// Broker fans change events out to subscribers. Sends never block: a
// subscriber with a full buffer misses the event and is expected to
// re-query on its next read.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// Subscribe to all tables with the empty string.
const AllTables = ""

// NewBroker creates an event broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan Event)}
}

// Subscribe registers interest in one table's events (or every table with
// AllTables). The returned cancel func removes the subscription and closes
// the channel.
func (b *Broker) Subscribe(table string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[table] = append(b.subs[table], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[table]
		for i, have := range chans {
			if have == ch {
				b.subs[table] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.Table] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.subs[AllTables] {
		select {
		case ch <- event:
		default:
		}
	}
}
