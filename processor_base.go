package streamrt

import (
	"sync"

	"github.com/streamrt/streamrt/link"
)

// BaseProcessor implements the wiring/bookkeeping half of Processor
// (SetOutputWakeup, Wire*, Unwire*) so that concrete processor classes only
// need to implement Descriptor/Setup/Process/Teardown, the same way the
// teacher's transportParams/newTransport pair factors shared Transport
// bookkeeping out of PipeTransport/PlainTransport/WebRtcTransport.
type BaseProcessor struct {
	mu        sync.Mutex
	ports     []Port
	consumers map[string]interface{} // port name -> *link.Consumer[T]
	producers map[string]interface{} // port name -> *link.Producer[T]
	wakeups   map[string]WakeupSender
}

// NewBaseProcessor builds a BaseProcessor for the given static port
// declarations.
func NewBaseProcessor(ports []Port) *BaseProcessor {
	return &BaseProcessor{
		ports:     ports,
		consumers: make(map[string]interface{}),
		producers: make(map[string]interface{}),
		wakeups:   make(map[string]WakeupSender),
	}
}

func (b *BaseProcessor) findPort(name string, dir Direction) (Port, bool) {
	for _, p := range b.ports {
		if p.Name == name && p.Direction == dir {
			return p, true
		}
	}
	return Port{}, false
}

// SetOutputWakeup implements Processor.SetOutputWakeup.
func (b *BaseProcessor) SetOutputWakeup(port string, sender WakeupSender) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.findPort(port, DirectionOutput); !ok {
		return false
	}
	b.wakeups[port] = sender
	if producer, ok := b.producers[port]; ok {
		applyWakeup(producer, sender)
	}
	return true
}

// WireInputConsumer implements Processor.WireInputConsumer. It verifies the
// port exists, is an input, and that consumer's Kind-specific generic type
// matches the port's declared Kind before installing it.
func (b *BaseProcessor) WireInputConsumer(port string, consumer interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.findPort(port, DirectionInput)
	if !ok || !kindMatches(p.Kind, consumer) {
		return false
	}
	b.consumers[port] = consumer
	return true
}

// WireOutputProducer implements Processor.WireOutputProducer. Fan-out is
// forbidden (spec.md §9: the initial core restricts output ports to one
// outgoing link), so a port that already carries a producer refuses a
// second wire rather than silently overwriting it and orphaning the first
// link's ring.
func (b *BaseProcessor) WireOutputProducer(port string, producer interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.findPort(port, DirectionOutput)
	if !ok || !kindMatches(p.Kind, producer) {
		return false
	}
	if _, occupied := b.producers[port]; occupied {
		return false
	}
	b.producers[port] = producer
	if w, ok := b.wakeups[port]; ok {
		applyWakeup(producer, w)
	}
	return true
}

// UnwireInputConsumer implements Processor.UnwireInputConsumer. The link id
// is accepted for interface symmetry with fan-in aware processors; the
// base implementation (fan-in = 1, per spec.md §9) simply clears the slot.
func (b *BaseProcessor) UnwireInputConsumer(port string, _ LinkId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.consumers, port)
	return nil
}

// UnwireOutputProducer implements Processor.UnwireOutputProducer.
func (b *BaseProcessor) UnwireOutputProducer(port string, _ LinkId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.producers, port)
	delete(b.wakeups, port)
	return nil
}

// Consumer returns the currently wired consumer for port, or nil.
func (b *BaseProcessor) Consumer(port string) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumers[port]
}

// Producer returns the currently wired producer for port, or nil.
func (b *BaseProcessor) Producer(port string) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.producers[port]
}

func kindMatches(kind Kind, half interface{}) bool {
	switch kind {
	case KindVideo:
		switch half.(type) {
		case *link.Producer[VideoFrame], *link.Consumer[VideoFrame]:
			return true
		}
	case KindAudio:
		switch half.(type) {
		case *link.Producer[AudioFrame], *link.Consumer[AudioFrame]:
			return true
		}
	case KindData:
		switch half.(type) {
		case *link.Producer[DataFrame], *link.Consumer[DataFrame]:
			return true
		}
	}
	return false
}

func applyWakeup(producer interface{}, sender WakeupSender) {
	switch p := producer.(type) {
	case *link.Producer[VideoFrame]:
		p.SetWakeup(sender)
	case *link.Producer[AudioFrame]:
		p.SetWakeup(sender)
	case *link.Producer[DataFrame]:
		p.SetWakeup(sender)
	}
}
