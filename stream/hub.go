package stream

import (
	"sync"

	"github.com/Anuvesh07/Planicorn/domain"
)

const sessionBuffer = 10

// Hub groups live sessions by owning account and fans mutation events out to
// them. Delivery is best-effort: a session whose buffer is full misses the
// event and recovers through its next full refetch.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe registers a new session for the account and returns its event
// channel. The caller must Unsubscribe when the session ends.
func (h *Hub) Subscribe(ownerID string) chan domain.Event {
	ch := make(chan domain.Event, sessionBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[ownerID] == nil {
		h.sessions[ownerID] = make(map[chan domain.Event]struct{})
	}
	h.sessions[ownerID][ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(ownerID string, ch chan domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.sessions[ownerID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.sessions, ownerID)
		}
	}
}

// Publish delivers the event to every session of the account without
// blocking. Events are addressed to the account group only, never globally.
func (h *Hub) Publish(ownerID string, ev domain.Event) {
	h.mu.Lock()
	subs := h.sessions[ownerID]
	chans := make([]chan domain.Event, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SessionCount reports how many sessions the account currently has.
func (h *Hub) SessionCount(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[ownerID])
}
