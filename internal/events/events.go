// Package events implements the event channel (component C8): an
// ordered, lossy, one-way stream of EVICTED/PRESSURE/POLICY/REFRESH_HINT
// notifications (§4.8). Producers never block on a slow consumer; once
// the bounded buffer fills, further events are dropped and counted, with
// a single DROPPED_COUNT event surfacing the gap the next time the
// buffer has room.
package events

import (
	"sync"
	"time"
)

// Kind enumerates the event frame kinds from §6.
type Kind int

const (
	KindEvicted Kind = iota + 1
	KindPressure
	KindPolicy
	KindRefreshHint
	KindDroppedCount
)

// Event is one notification on the channel. Only the fields relevant to
// Kind are populated; the rest are zero.
type Event struct {
	Kind      Kind
	Tenant    string
	Key       []byte
	Reason    string // eviction reason, policy name, etc., kind-dependent
	Level     int    // PRESSURE watermark level
	Dropped   uint64 // DROPPED_COUNT payload
	Timestamp time.Time
}

// Bus is a single-producer-many-consumer, bounded, lossy fanout of
// Events. Each subscriber gets its own buffered channel so one slow
// reader cannot starve the others; a reader that falls behind only loses
// events destined for itself.
type Bus struct {
	capacity int
	mu       sync.Mutex
	subs     []*subscriber
	dropped  map[*subscriber]uint64
}

type subscriber struct {
	ch chan Event
}

// New constructs a Bus whose per-subscriber buffer holds capacity
// events before it starts dropping.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{capacity: capacity, dropped: make(map[*subscriber]uint64)}
}

// Subscribe registers a new consumer and returns a read-only channel of
// events destined for it. Callers must keep draining the channel;
// Unsubscribe releases it.
func (b *Bus) Subscribe() <-chan Event {
	s := &subscriber{ch: make(chan Event, b.capacity)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s.ch
}

// Unsubscribe removes a previously subscribed channel and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.ch == ch {
			close(s.ch)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			delete(b.dropped, s)
			return
		}
	}
}

// Publish fans e out to every subscriber without blocking: a subscriber
// whose buffer is full has e dropped and its drop counter bumped. The
// next event that subscriber successfully receives carries a preceding
// DROPPED_COUNT event so consumers can detect the gap.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if d := b.dropped[s]; d > 0 {
			select {
			case s.ch <- Event{Kind: KindDroppedCount, Dropped: d, Timestamp: e.Timestamp}:
				b.dropped[s] = 0
			default:
				b.dropped[s] = d + 1
				continue
			}
		}
		select {
		case s.ch <- e:
		default:
			b.dropped[s]++
		}
	}
}
