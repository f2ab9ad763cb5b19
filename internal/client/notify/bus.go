// Package notify is the client's in-process event bus. The store, the sync
// engine and the connectivity monitor publish to it; the CLI (or any other
// front end) subscribes without the publishers knowing who listens.
package notify

import (
	"sync"
	"time"
)

// EventType names what happened.
type EventType string

const (
	EntryPersisted      EventType = "entry_persisted"
	SyncCompleted       EventType = "sync_completed"
	ConnectivityChanged EventType = "connectivity_changed"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType
	ClientID string
	Count    int
	Online   bool
	At       time.Time
}

// Publisher is implemented by anything events can be sent to.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe returns a channel receiving future events and a function that
// unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
