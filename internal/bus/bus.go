// Package bus is the in-process mutation feed. Store mutators publish after
// commit; the outbound relay and the event-stream endpoint subscribe. It
// stands in for the realtime store's subscribe primitive, which this service
// treats as a given.
package bus

import "sync"

// Kind labels what was written.
type Kind string

const (
	KindMessageCreated Kind = "message_created"
	KindUpdateCreated  Kind = "update_created"
	KindThreadChanged  Kind = "thread_changed"
)

// Event references the written record by id; subscribers re-read the store,
// so a dropped event is recovered by the next catch-up pass.
type Event struct {
	Kind           Kind   `json:"kind"`
	OrganizationID string `json:"organization_id,omitempty"`
	ThreadID       uint   `json:"thread_id,omitempty"`
	MessageID      uint   `json:"message_id,omitempty"`
	UpdateID       uint   `json:"update_id,omitempty"`
}

const subscriberBuffer = 64

// Bus fans events out to subscribers. Publish never blocks: a subscriber that
// falls behind loses events and relies on catch-up.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
