package route

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind names a transfer progress event.
type EventKind string

const (
	EventTransferInitiated EventKind = "transfer-initiated"
	EventApprovalSent      EventKind = "approval-sent"
	EventMessageSigned     EventKind = "message-signed"
	EventTransferSent      EventKind = "transfer-sent"
	EventTransferConfirmed EventKind = "transfer-confirmed"
	EventHopRedeemed       EventKind = "hop-redeemed"
	EventHopConfirmed      EventKind = "hop-confirmed"
	EventTransferRedeemed  EventKind = "transfer-redeemed"
	EventError             EventKind = "error"
	// EventStepCompleted follows every other event and carries its kind in
	// Step.
	EventStepCompleted EventKind = "step-completed"
)

// Event is one progress notification of an execution.
type Event struct {
	Kind    EventKind `json:"kind"`
	RouteID string    `json:"route_id"`
	Time    time.Time `json:"time"`
	// Step is the kind of the event a step-completed event follows.
	Step   EventKind `json:"step,omitempty"`
	TxHash string    `json:"tx_hash,omitempty"`
	// Data is the attestation, receive, intent or error the event is about.
	Data any `json:"data,omitempty"`
}

// ErrorDetails is the Data of an error event.
type ErrorDetails struct {
	Phase  Phase  `json:"type"`
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error"`
}

// DefaultBusBuffer is the channel capacity of each subscription.
const DefaultBusBuffer = 64

// Bus fans progress events out to subscribers. Publishing never blocks: an
// event for a subscriber whose buffer is full is dropped and counted.
type Bus struct {
	buffer  int
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBusBuffer
	}
	return &Bus{buffer: buffer, subs: make(map[*Subscription]struct{})}
}

// Subscription receives events on C until it is closed.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	kinds map[EventKind]bool
	bus   *Bus
	once  sync.Once
}

func (s *Subscription) wants(k EventKind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Close detaches s and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
	})
}

// Subscribe returns a subscription to the given kinds, or to every event
// when none are given. Subscribing to a closed bus yields a closed channel.
func (b *Bus) Subscribe(kinds ...EventKind) *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	if len(kinds) > 0 {
		s.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers e to every interested subscriber without waiting.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped is how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}
