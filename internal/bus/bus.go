// Package bus fans engine events out to in-process watchers.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus delivers events to every subscription whose prefix matches the kind.
// Delivery never blocks the publisher: a subscription with a full buffer
// misses the event and counts it.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription is one watcher's view of the bus.
type Subscription struct {
	bus     *Bus
	prefix  string
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Emit publishes a new event of the given kind. Safe to call on a nil Bus.
func (b *Bus) Emit(kind string, payload any) {
	if b == nil {
		return
	}
	b.Publish(NewEvent(kind, payload))
}

// Publish hands evt to every matching subscription. An empty prefix
// matches everything.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a watcher for kinds starting with prefix. The
// returned channel is closed by Close.
func (b *Bus) Subscribe(prefix string, buffer int) (<-chan Event, *Subscription) {
	sub := &Subscription{bus: b, prefix: prefix, ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub.ch, sub
}

// Subscribers reports how many subscriptions are attached.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many events missed this subscription because its
// buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
