package services

import (
	"sync"

	"github.com/google/uuid"
)

// Event is a one-shot UI signal. Events are delivered to subscribers
// present at emit time and never replayed.
type Event interface {
	isEvent()
}

// ShowError asks the surface layer to display a transient error message.
type ShowError struct {
	Message string
}

func (ShowError) isEvent() {}

// EventHub fans events out to subscribers. Delivery is best-effort: a
// subscriber that is not draining its channel loses events rather than
// blocking the emitter.
type EventHub struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]chan Event)}
}

// Subscribe registers a listener. The cancel func must be called when
// the listener goes away.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, 8)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers to current subscribers without blocking.
func (h *EventHub) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
