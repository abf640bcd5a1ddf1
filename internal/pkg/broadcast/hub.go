package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
)

// DefaultQueueSize bounds a single subscriber queue
const DefaultQueueSize = 64

// Hub fans out events to all current subscribers.
// Delivery is best effort: a slow subscriber loses its oldest
// queued events, it never blocks the publisher.
type Hub struct {
	lock      sync.Mutex
	clients   map[chan []byte]struct{}
	queueSize int
}

// NewHub creates a hub with the given per subscriber queue size
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{clients: map[chan []byte]struct{}{}, queueSize: queueSize}
}

// Subscribe registers a new subscriber.
// The returned cancel func must be called to release it.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, h.queueSize)
	h.lock.Lock()
	h.clients[ch] = struct{}{}
	count := len(h.clients)
	h.lock.Unlock()
	goapp.Log.Debug().Int("clients", count).Msg("subscribed")
	once := sync.Once{}
	return ch, func() {
		once.Do(func() {
			h.lock.Lock()
			delete(h.clients, ch)
			h.lock.Unlock()
		})
	}
}

// Broadcast delivers msg to every subscriber, dropping the oldest
// queued message of any subscriber whose queue is full
func (h *Hub) Broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// BroadcastJSON marshals v and delivers it to every subscriber
func (h *Hub) BroadcastJSON(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		goapp.Log.Error().Err(err).Msg("can't marshal event")
		return
	}
	h.Broadcast(msg)
}

// Count returns the current subscriber count
func (h *Hub) Count() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}
