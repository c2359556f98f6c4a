package broker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/catapult-sh/catapult/pkg/domain/model"
)

// subscriberBuffer is the per-subscriber channel capacity. A launch emits
// a handful of events, so a slow consumer only loses events once it falls
// this far behind.
const subscriberBuffer = 32

// Broker fans out status events to subscribers keyed by job ID. Delivery
// is at-most-once and best-effort: publishing never blocks, events with no
// live subscriber are dropped, and a full subscriber channel drops the
// event for that subscriber only. Safe for concurrent publish from
// multiple simultaneous launches.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan model.StatusMessageEvent
	once sync.Once
}

// New creates an empty broker. One broker instance serves the whole
// process and is passed explicitly to whatever publishes or consumes.
func New() *Broker {
	return &Broker{
		subs: make(map[uuid.UUID]map[*subscriber]struct{}),
	}
}

// Send publishes an event to every subscriber of its job ID. Non-blocking
// and safe to call with no subscribers attached.
func (b *Broker) Send(ev model.StatusMessageEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for sub := range b.subs[ev.ID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener for one job's events. The returned cancel
// function detaches the listener and closes the channel; calling it more
// than once is safe.
func (b *Broker) Subscribe(id uuid.UUID) (<-chan model.StatusMessageEvent, func()) {
	sub := &subscriber{ch: make(chan model.StatusMessageEvent, subscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if _, ok := b.subs[id]; !ok {
		b.subs[id] = make(map[*subscriber]struct{})
	}
	b.subs[id][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[id]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, id)
			}
		}
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Close detaches all subscribers and closes their channels. Send becomes
// a no-op afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.close()
		}
	}
	b.subs = make(map[uuid.UUID]map[*subscriber]struct{})
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}
