// Package eventbus is the in-process pub/sub used to push proxy-*, mock-*,
// database-*, outgoing-*, and per-record events to whatever UI transport
// attaches. Before any transport attaches to a channel, events queue up to
// a bounded cap; the queue drains once, in order, on first attach. After
// that, publish is always non-blocking: a full subscriber buffer evicts its
// oldest entry and bumps that channel's drop counter rather than stalling
// the producer.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Event is the serializable payload carried on every channel. ID is the
// idempotency key (a RequestRecord id or Mock id) a consumer uses to
// de-duplicate redelivery under the at-least-once contract.
type Event struct {
	Channel   string
	ID        string
	Payload   any
	Timestamp time.Time
}

type subscriber struct {
	ch       chan Event
	id       uint64
	dropped  atomic.Uint64
	isActive atomic.Bool
}

type channelState struct {
	mu           sync.Mutex
	subscribers  *xsync.Map[uint64, *subscriber]
	earlyBuffer  []Event
	everAttached bool
	dropped      atomic.Uint64
}

// Bus is the process-wide event bus. The zero value is not usable; use New.
type Bus struct {
	channels      *xsync.Map[string, *channelState]
	bufferSize    int
	earlyBufferCap int
	subSeq        atomic.Uint64
}

// New creates a Bus. bufferSize is the per-subscriber channel buffer;
// earlyBufferCap is the cap on events queued per channel before any
// transport attaches.
func New(bufferSize, earlyBufferCap int) *Bus {
	return &Bus{
		channels:       xsync.NewMap[string, *channelState](),
		bufferSize:     bufferSize,
		earlyBufferCap: earlyBufferCap,
	}
}

func (b *Bus) stateFor(channel string) *channelState {
	cs, _ := b.channels.LoadOrCompute(channel, func() (*channelState, bool) {
		return &channelState{subscribers: xsync.NewMap[uint64, *subscriber]()}, false
	})
	return cs
}

// Publish delivers event on the named channel. Before any subscriber has
// ever attached to this channel, the event is queued into the early
// buffer (oldest evicted on overflow). Once a subscriber has attached, the
// event is fanned out non-blockingly to every active subscriber.
func (b *Bus) Publish(channel string, id string, payload any) {
	cs := b.stateFor(channel)
	ev := Event{Channel: channel, ID: id, Payload: payload, Timestamp: time.Now()}

	cs.mu.Lock()
	if !cs.everAttached {
		cs.earlyBuffer = append(cs.earlyBuffer, ev)
		if len(cs.earlyBuffer) > b.earlyBufferCap {
			cs.earlyBuffer = cs.earlyBuffer[1:]
			cs.dropped.Add(1)
		}
		cs.mu.Unlock()
		return
	}
	cs.mu.Unlock()

	delivered := false
	cs.subscribers.Range(func(_ uint64, sub *subscriber) bool {
		if !sub.isActive.Load() {
			return true
		}
		select {
		case sub.ch <- ev:
			delivered = true
		default:
			sub.dropped.Add(1)
			cs.dropped.Add(1)
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
				delivered = true
			default:
			}
		}
		return true
	})
	if !delivered {
		cs.dropped.Add(1)
	}
}

// Subscription is returned by Subscribe; call Unsubscribe when the
// transport detaches.
type Subscription struct {
	Events <-chan Event
	id     uint64
	bus    *Bus
	cs     *channelState
}

// Unsubscribe detaches this subscription from its channel.
func (s *Subscription) Unsubscribe() {
	if sub, ok := s.cs.subscribers.Load(s.id); ok {
		sub.isActive.Store(false)
	}
	s.cs.subscribers.Delete(s.id)
}

// Subscribe attaches a new transport to channel. On the first ever
// Subscribe call for this channel, any early-buffered events are drained
// in order onto the returned channel before the caller's loop begins
// consuming new publishes; the early buffer is then discarded for good.
func (b *Bus) Subscribe(channel string) *Subscription {
	cs := b.stateFor(channel)
	id := b.subSeq.Add(1)
	ch := make(chan Event, b.bufferSize)
	sub := &subscriber{id: id, ch: ch}
	sub.isActive.Store(true)

	cs.mu.Lock()
	var drain []Event
	if !cs.everAttached {
		drain = cs.earlyBuffer
		cs.earlyBuffer = nil
		cs.everAttached = true
	}
	cs.mu.Unlock()

	cs.subscribers.Store(id, sub)

	for _, ev := range drain {
		select {
		case ch <- ev:
		default:
			// early buffer outgrew the subscriber's own buffer; drop silently,
			// this is the same overflow contract as steady-state publish.
		}
	}

	return &Subscription{Events: ch, id: id, bus: b, cs: cs}
}

// DroppedCount returns the events-dropped counter for channel (§4.10: "emits
// one events-dropped counter bump per channel" on overflow).
func (b *Bus) DroppedCount(channel string) uint64 {
	cs := b.stateFor(channel)
	return cs.dropped.Load()
}
