package streamrt

import "time"

// SchedulingMode selects the worker loop discipline driving a processor.
type SchedulingMode string

const (
	// SchedulingLoop drives Process() continuously with a short yield
	// between calls. Use for sources polling external state.
	SchedulingLoop SchedulingMode = "loop"
	// SchedulingPush drives Process() once per wakeup received on the
	// worker's select. The default for transforms and sinks.
	SchedulingPush SchedulingMode = "push"
	// SchedulingPull drives Process() once at startup; the processor is
	// expected to drive itself via external callbacks thereafter.
	SchedulingPull SchedulingMode = "pull"
)

// RealTimeHints are advisory scheduling hints a processor may request from
// the executor. They are platform-dependent and never required for
// correctness.
type RealTimeHints struct {
	// TargetPeriod is the desired inter-tick period for Loop-mode
	// processors with a fixed cadence (e.g. a 48kHz audio source).
	TargetPeriod time.Duration
	// ComputeBudget is the expected upper bound of a single Process() call;
	// exceeding it is logged at warn level but never enforced.
	ComputeBudget time.Duration
	// RequestRealTimePriority marks this processor's worker as wanting
	// OS-level real-time scheduling. The executor does not read this field
	// and applies no OS-level scheduling to any worker, whatever
	// RuntimeOptions.RealTimePriorityHints is set to.
	RequestRealTimePriority bool
}

// SchedulingConfig is the Scheduling field of a processor's Descriptor.
type SchedulingConfig struct {
	Mode  SchedulingMode
	Hints RealTimeHints
}
