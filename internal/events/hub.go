package events

import (
	"sync"
	"time"
)

const (
	CheckStarted     = "check_started"
	CheckCompleted   = "check_completed"
	EndpointsChanged = "endpoints_changed"
	PolicyChanged    = "policy_changed"
	StateImported    = "state_imported"
)

// Event is pushed to subscribers. Only the fields relevant to Type are set.
type Event struct {
	Type      string    `json:"type"`
	At        time.Time `json:"at"`
	Probed    int       `json:"probed,omitempty"`
	Applied   int       `json:"applied,omitempty"`
	Discarded int       `json:"discarded,omitempty"`
	Reachable int       `json:"reachable,omitempty"`
	Endpoints int       `json:"endpoints,omitempty"`
}

// Hub fans events out to subscribers without ever blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered event channel and a cancel func that
// unregisters and closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber with room in its buffer; slow
// subscribers miss the event.
func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
