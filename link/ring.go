// Package link implements the bounded single-producer/single-consumer ring
// that materialises a wired streamrt link, per spec.md §4.1. It is
// parameterised over the frame type with a Go generic type parameter
// instead of runtime type dispatch, since the ring's whole point
// is to avoid allocation and type assertions on the hot path.
package link

import "sync"

// WakeupEvent is sent from a producer to the consumer-side worker after a
// successful push. Idempotent: the receiver only needs to know "something
// changed", never how many pushes happened.
type WakeupEvent int

const (
	// DataAvailable signals a push landed in the ring.
	DataAvailable WakeupEvent = iota
	// TimerTick signals a scheduled tick unrelated to any single push.
	TimerTick
	// Shutdown signals the worker should stop consuming wakeups.
	Shutdown
)

// WakeupSender is the non-blocking, best-effort half of the wakeup signal.
// Send tolerates a full channel: the consumer will see data when it next
// polls regardless.
type WakeupSender chan<- WakeupEvent

// Send delivers evt without blocking. A full channel is treated as "the
// consumer already knows", matching spec.md: "Wakeup send is non-blocking
// and tolerates a full channel".
func (s WakeupSender) Send(evt WakeupEvent) {
	if s == nil {
		return
	}
	select {
	case s <- evt:
	default:
	}
}

// ring is the shared storage backing one Producer/Consumer pair. Capacity
// slots are pre-allocated; head/tail advance modulo capacity. A single
// mutex guards the slot bookkeeping; contention is negligible since each
// ring has exactly one producer and one consumer goroutine.
type ring[T any] struct {
	mu       sync.Mutex
	slots    []T
	occupied []bool
	head     int // next slot to pop
	tail     int // next slot to push
	count    int
	wakeup   WakeupSender
}

// New creates a bounded SPSC ring of the given capacity and returns its
// producer and consumer halves. capacity must be >= 1.
func New[T any](capacity int) (*Producer[T], *Consumer[T]) {
	if capacity < 1 {
		capacity = 1
	}
	r := &ring[T]{
		slots:    make([]T, capacity),
		occupied: make([]bool, capacity),
	}
	return &Producer[T]{r: r}, &Consumer[T]{r: r}
}

// Producer is the write half of a link channel, owned by the source
// processor's output port.
type Producer[T any] struct {
	r *ring[T]
}

// SetWakeup installs the sender the producer notifies after each
// successful push. Called by the executor while wiring
// (Processor.SetOutputWakeup).
func (p *Producer[T]) SetWakeup(w WakeupSender) {
	p.r.mu.Lock()
	p.r.wakeup = w
	p.r.mu.Unlock()
}

// TryPush attempts a non-blocking push. On success it returns (true, zero).
// On a full ring it returns (false, frame) so the caller regains ownership.
func (p *Producer[T]) TryPush(frame T) (bool, T) {
	r := p.r
	r.mu.Lock()
	if r.count == len(r.slots) {
		r.mu.Unlock()
		return false, frame
	}
	r.slots[r.tail] = frame
	r.occupied[r.tail] = true
	r.tail = (r.tail + 1) % len(r.slots)
	r.count++
	wakeup := r.wakeup
	r.mu.Unlock()

	wakeup.Send(DataAvailable)
	var zero T
	return true, zero
}

// PushOverwrite drops the oldest unread frame (if the ring is full) to make
// room, then pushes frame. Used by latest-wins ports such as display sinks.
func (p *Producer[T]) PushOverwrite(frame T) {
	r := p.r
	r.mu.Lock()
	if r.count == len(r.slots) {
		var zero T
		r.slots[r.head] = zero
		r.occupied[r.head] = false
		r.head = (r.head + 1) % len(r.slots)
		r.count--
	}
	r.slots[r.tail] = frame
	r.occupied[r.tail] = true
	r.tail = (r.tail + 1) % len(r.slots)
	r.count++
	wakeup := r.wakeup
	r.mu.Unlock()

	wakeup.Send(DataAvailable)
}

// Consumer is the read half of a link channel, owned by the destination
// processor's input port.
type Consumer[T any] struct {
	r *ring[T]
}

// TryPop removes and returns the oldest frame, or (zero, false) if the ring
// is empty. Never blocks.
func (c *Consumer[T]) TryPop() (T, bool) {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		var zero T
		return zero, false
	}
	frame := r.slots[r.head]
	var zero T
	r.slots[r.head] = zero
	r.occupied[r.head] = false
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return frame, true
}

// Peek returns the oldest frame without consuming it, for processors that
// inspect before committing to a pop.
func (c *Consumer[T]) Peek() (T, bool) {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.slots[r.head], true
}

// DrainToLatest consumes and discards every frame but the newest, returning
// it. Used by skip-to-latest read-mode consumers. Returns (zero, false) if
// the ring was empty.
func (c *Consumer[T]) DrainToLatest() (T, bool) {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		var zero T
		return zero, false
	}
	latestIdx := (r.head + r.count - 1) % len(r.slots)
	latest := r.slots[latestIdx]
	for i := 0; i < len(r.slots); i++ {
		var zero T
		r.slots[i] = zero
		r.occupied[i] = false
	}
	r.head = 0
	r.tail = 0
	r.count = 0
	return latest, true
}

// Len reports the current number of unread frames. Intended for
// diagnostics/tests, not for hot-path flow control.
func (c *Consumer[T]) Len() int {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// DrainAll discards every unread frame and returns how many were dropped.
// Used by pause_drains_rings, where the caller only needs the count, not the frames themselves, so it can stay
// non-generic and be called through a common interface.
func (c *Consumer[T]) DrainAll() int {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := r.count
	for i := 0; i < len(r.slots); i++ {
		var zero T
		r.slots[i] = zero
		r.occupied[i] = false
	}
	r.head, r.tail, r.count = 0, 0, 0
	return dropped
}
