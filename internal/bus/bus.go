package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe fabric with prefix filtering. The
// store gateway publishes row-change events on it and every live
// subscription in the session is a consumer. Publish never blocks: a
// subscriber that cannot keep up loses events rather than stalling writers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// A zero Timestamp is filled in with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber buffer full; drop instead of blocking.
			}
		}
	}
}

// Subscribe registers interest in events whose Kind starts with prefix.
// bufSize bounds the delivery channel. The returned cancel function removes
// the subscription; it is safe to call more than once.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
