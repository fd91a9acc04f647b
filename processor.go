package streamrt

import "github.com/streamrt/streamrt/link"

// WakeupSender is the producer-side handle a processor uses to notify a
// downstream worker after a push. Re-exported from link so processor
// implementations never need to import the link package directly just to
// satisfy SetOutputWakeup.
type WakeupSender = link.WakeupSender

// WakeupEvent names the reason a worker was woken.
type WakeupEvent = link.WakeupEvent

const (
	DataAvailable = link.DataAvailable
	TimerTick     = link.TimerTick
	Shutdown      = link.Shutdown
)

// Descriptor is the static, class-level metadata a Processor exposes
// alongside its instance methods: its declared ports and scheduling mode,
// plus whether a ProcessError from this class should be treated as fatal.
type Descriptor struct {
	Ports            []Port
	Scheduling       SchedulingConfig
	FatalOnProcessError bool
}

// Processor is the capability set every dataflow node implements. It is
// intentionally a flat interface rather than a base class: concrete
// variants (camera source, compositor, WebRTC egress, ...) carry whatever
// class-specific state they need and are boxed behind this interface in
// the execution graph, mirroring a polymorphic Router/Transport
// hierarchy behind interfaces like ITransport.
type Processor interface {
	// Descriptor returns this processor's static ports and scheduling
	// mode. Must be stable for the processor's lifetime.
	Descriptor() Descriptor

	// Setup is called once by the executor on the goroutine applying the
	// delta, before the processor's links are wired and before its worker
	// goroutine starts; it does not run on the worker goroutine. A non-nil
	// error is wrapped in SetupError, the processor is recorded as Stopped,
	// and no worker goroutine is started for it.
	Setup(ctx *ProcessorContext) error

	// Process is called once per tick, with tick semantics depending on
	// scheduling mode (see spec.md §4.5). A non-nil error is wrapped in
	// ProcessError; whether it stops the worker depends on
	// Descriptor().FatalOnProcessError.
	Process() error

	// Teardown is called once on the worker goroutine before it exits.
	// Must release every external resource the processor holds. Errors
	// are logged, never propagated.
	Teardown() error

	// SetOutputWakeup tells the named output port where to send wakeups
	// after a push. Called by the executor while wiring.
	SetOutputWakeup(port string, sender WakeupSender) bool

	// WireInputConsumer installs a consumer half into the named input
	// port's slot. The concrete type behind consumer is
	// *link.Consumer[VideoFrame|AudioFrame|DataFrame] depending on the
	// port's Kind. Returns false on a type mismatch, surfaced by the
	// executor as a WiringError.
	WireInputConsumer(port string, consumer interface{}) bool

	// WireOutputProducer installs a producer half into the named output
	// port's slot. See WireInputConsumer for the type-erasure contract.
	WireOutputProducer(port string, producer interface{}) bool

	// UnwireInputConsumer / UnwireOutputProducer remove a previously wired
	// half, identified by the link id that installed it, so a processor
	// with fan-in/out bookkeeping can tell which plug to drop.
	UnwireInputConsumer(port string, link LinkId) error
	UnwireOutputProducer(port string, link LinkId) error
}
