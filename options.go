package streamrt

import (
	"time"

	"github.com/jinzhu/copier"
)

// RuntimeOptions are the recognised runtime-level configuration options
// from spec.md §6, set via functional RuntimeOption values at construction,
// in the shape of a NewWorker(options ...Option) constructor.
type RuntimeOptions struct {
	// PauseDrainsRings: if true, pause() also drains in-flight frames from
	// every wired ring. Default false.
	PauseDrainsRings bool
	// DisconnectDrainTimeout bounds how long disconnect() waits for
	// in-flight frames to clear before removing a link. Default 500ms.
	DisconnectDrainTimeout time.Duration
	// DefaultLinkCapacity overrides Kind.DefaultCapacity() per kind when
	// set to a positive value.
	DefaultLinkCapacity map[Kind]int
	// RealTimePriorityHints is the operator's opt-in for OS-level real-time
	// scheduling of workers that request it via RealTimeHints. The executor
	// stores the value but applies no OS-level scheduling to any worker,
	// whether it is set or not. Default false.
	RealTimePriorityHints bool
}

// DefaultRuntimeOptions returns the documented defaults.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		PauseDrainsRings:       false,
		DisconnectDrainTimeout: 500 * time.Millisecond,
		DefaultLinkCapacity:    map[Kind]int{},
		RealTimePriorityHints:  false,
	}
}

// LinkCapacity resolves the ring capacity for kind, honouring an operator
// override before falling back to Kind.DefaultCapacity().
func (o RuntimeOptions) LinkCapacity(kind Kind) int {
	if c, ok := o.DefaultLinkCapacity[kind]; ok && c > 0 {
		return c
	}
	return kind.DefaultCapacity()
}

// Clone returns a defensive copy of o, the way copier.Copy clones a
// capabilities struct before handing it to a transport rather than sharing
// the caller's instance. The capacity override map is copied by hand since
// copier assigns map fields by reference for identical field types.
func (o RuntimeOptions) Clone() RuntimeOptions {
	var dup RuntimeOptions
	copier.Copy(&dup, &o)
	dup.DefaultLinkCapacity = make(map[Kind]int, len(o.DefaultLinkCapacity))
	for k, v := range o.DefaultLinkCapacity {
		dup.DefaultLinkCapacity[k] = v
	}
	return dup
}

// RuntimeOption mutates a RuntimeOptions being built up, mirroring the
// functional-options WorkerOption pattern.
type RuntimeOption func(*RuntimeOptions)

// WithPauseDrainsRings enables draining in-flight frames on pause.
func WithPauseDrainsRings(v bool) RuntimeOption {
	return func(o *RuntimeOptions) { o.PauseDrainsRings = v }
}

// WithDisconnectDrainTimeout overrides the default disconnect drain window.
func WithDisconnectDrainTimeout(d time.Duration) RuntimeOption {
	return func(o *RuntimeOptions) { o.DisconnectDrainTimeout = d }
}

// WithDefaultLinkCapacity overrides the default ring capacity for kind.
func WithDefaultLinkCapacity(kind Kind, capacity int) RuntimeOption {
	return func(o *RuntimeOptions) {
		if o.DefaultLinkCapacity == nil {
			o.DefaultLinkCapacity = map[Kind]int{}
		}
		o.DefaultLinkCapacity[kind] = capacity
	}
}

// WithRealTimePriorityHints sets RuntimeOptions.RealTimePriorityHints. The
// executor applies no OS-level scheduling whether it is set or not.
func WithRealTimePriorityHints(v bool) RuntimeOption {
	return func(o *RuntimeOptions) { o.RealTimePriorityHints = v }
}
