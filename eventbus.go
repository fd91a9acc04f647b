package streamrt

import (
	"sync"

	ee "github.com/jiyeyuran/go-eventemitter"
)

// Event kinds emitted on the event bus, per spec.md §4.7.
const (
	EventWillConnect       = "WillConnect"
	EventConnected         = "Connected"
	EventWillDisconnect    = "WillDisconnect"
	EventDisconnected      = "Disconnected"
	EventConnectionCreated = "ConnectionCreated"
	EventConnectionRemoved = "ConnectionRemoved"
	EventRuntimeShutdown   = "RuntimeShutdown"
)

// RuntimeGlobalTopic is the fixed topic name for runtime-scoped events.
const RuntimeGlobalTopic = "runtime:global"

// ProcessorTopic returns the topic name for a processor's lifecycle events.
func ProcessorTopic(id ProcessorId) string { return "processor:" + string(id) }

// LinkTopic returns the topic name for a link's lifecycle events.
func LinkTopic(id LinkId) string { return "link:" + string(id) }

// EventBus is a topic-addressed pub/sub used internally by the executor
// and runtime facade to notify subscribers around topology mutation.
// Delivery is best-effort and synchronous to the publisher, the same way
// a long-lived component carries its own IEventEmitter for external
// listeners: here every topic gets its own emitter instance, keyed lazily
// on first use.
type EventBus struct {
	mu       sync.Mutex
	emitters map[string]ee.IEventEmitter
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{emitters: make(map[string]ee.IEventEmitter)}
}

// emitterFor returns the emitter for topic, creating it on first use.
// Guarded by b.mu since one goroutine per processor (plus the control
// thread) can reach the same topic concurrently.
func (b *EventBus) emitterFor(topic string) ee.IEventEmitter {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.emitters[topic]; ok {
		return e
	}
	e := ee.NewEventEmitter()
	b.emitters[topic] = e
	return e
}

// On subscribes handler to kind events on topic. Returns an unsubscribe
// function.
func (b *EventBus) On(topic, kind string, handler func(args ...interface{})) func() {
	e := b.emitterFor(topic)
	e.On(kind, handler)
	return func() { e.Off(kind, handler) }
}

// Publish delivers args to every handler subscribed to kind on topic. A
// panicking handler is recovered and swallowed, mirroring SafeEmit on the
// emitters: one bad listener must never take down a mutation in
// progress.
func (b *EventBus) Publish(topic, kind string, args ...interface{}) {
	b.mu.Lock()
	e, ok := b.emitters[topic]
	b.mu.Unlock()
	if !ok {
		return
	}
	e.SafeEmit(kind, args...)
}

// PublishGlobal is a convenience for Publish(RuntimeGlobalTopic, kind, args...).
func (b *EventBus) PublishGlobal(kind string, args ...interface{}) {
	b.Publish(RuntimeGlobalTopic, kind, args...)
}
