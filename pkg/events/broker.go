// pkg/events/broker.go

package events

import (
	"sync"

	"go.uber.org/zap"
)

// Package events implements SSE fan-out. Each logical channel (disks, jobs)
// gets its own Broker; each subscriber gets its own bounded queue so a stalled
// browser can never block producers or other subscribers.

const subscriberBuffer = 64

// Broker multiplexes events from one producer domain to N subscribers.
// The snapshot function is invoked under the broker lock at subscribe time,
// so every subscriber sees a full snapshot strictly before any delta
// published after its registration.
type Broker[T any] struct {
	mu       sync.Mutex
	nextID   int
	subs     map[int]chan T
	snapshot func() []T
	log      *zap.Logger
	dropped  func() // optional metrics hook, called per dropped event
}

// NewBroker creates a broker whose subscribers are primed with the events
// returned by snapshot.
func NewBroker[T any](log *zap.Logger, snapshot func() []T) *Broker[T] {
	return &Broker[T]{
		subs:     make(map[int]chan T),
		snapshot: snapshot,
		log:      log,
	}
}

// OnDrop registers a hook invoked whenever a subscriber's oldest event is
// evicted to make room. Used for the dropped-events metric.
func (b *Broker[T]) OnDrop(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = fn
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. The channel is primed with the current snapshot and closed
// on cancel. Cancel is idempotent.
func (b *Broker[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	// Capacity leaves room for deltas even when the snapshot is large.
	initial := b.snapshot()
	capacity := subscriberBuffer
	if len(initial) >= capacity {
		capacity = len(initial) + subscriberBuffer
	}
	ch := make(chan T, capacity)
	for _, e := range initial {
		ch <- e
	}
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking. When a
// subscriber's queue is full its oldest event is dropped in favor of the new
// one; every event carries full object state, so later events supersede
// earlier ones and the subscriber's view reconverges.
func (b *Broker[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
				if b.dropped != nil {
					b.dropped()
				}
			default:
			}
			select {
			case ch <- event:
			default:
				// Still full: another publisher won the race. Skip.
				b.log.Warn("Dropping event for saturated subscriber", zap.Int("subscriber", id))
			}
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
