package streamrt

import (
	goruntime "runtime"
	"time"
)

// GPUDevice is the narrow capability interface the runtime consumes for the
// GPU/pixel-buffer substrate. Concrete implementations (Metal, Vulkan,
// D3D11, ...) live outside this module; streamrt only ever holds the
// interface.
type GPUDevice interface {
	CreateTextureCache() (interface{}, error)
	CreatePixelBufferPool() (interface{}, error)
	CreateCommandQueue() (interface{}, error)
}

// TimeSource is a monotonic clock with nanosecond resolution. The default
// implementation wraps time.Now(); tests may substitute a fake.
type TimeSource interface {
	NowNanos() int64
}

type wallClock struct{ epoch time.Time }

func (w wallClock) NowNanos() int64 { return time.Since(w.epoch).Nanoseconds() }

// NewWallClock returns the default monotonic TimeSource.
func NewWallClock() TimeSource { return wallClock{epoch: time.Now()} }

// RuntimeThreadDispatcher runs a thunk on the single dedicated OS thread
// reserved for platform callbacks that must run on a specific thread (e.g.
// Apple main-thread affinity), blocking the caller until it completes.
type RuntimeThreadDispatcher interface {
	RunBlocking(thunk func() (interface{}, error)) (interface{}, error)
}

// runtimeThreadDispatcher pins a single goroutine to an OS thread with
// runtime.LockOSThread and serializes thunks onto it through a channel.
// There is no ecosystem package for OS thread affinity; the stdlib
// runtime.LockOSThread call is the only mechanism Go exposes for this, so
// it is used directly here.
type runtimeThreadDispatcher struct {
	requests chan dispatchRequest
}

type dispatchRequest struct {
	thunk  func() (interface{}, error)
	result chan dispatchResult
}

type dispatchResult struct {
	value interface{}
	err   error
}

// NewRuntimeThreadDispatcher starts the dedicated runtime thread and
// returns a dispatcher bound to it.
func NewRuntimeThreadDispatcher() RuntimeThreadDispatcher {
	d := &runtimeThreadDispatcher{requests: make(chan dispatchRequest)}
	go d.run()
	return d
}

func (d *runtimeThreadDispatcher) run() {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	for req := range d.requests {
		v, err := req.thunk()
		req.result <- dispatchResult{value: v, err: err}
	}
}

func (d *runtimeThreadDispatcher) RunBlocking(thunk func() (interface{}, error)) (interface{}, error) {
	req := dispatchRequest{thunk: thunk, result: make(chan dispatchResult, 1)}
	d.requests <- req
	res := <-req.result
	return res.value, res.err
}

// RuntimeContext bundles the shared, internally thread-safe platform
// capabilities handed to every processor's Setup hook. Its lifetime is tied
// to the runtime: never nil once Executor.Compile has succeeded.
type RuntimeContext struct {
	RuntimeId    string
	GPU          GPUDevice
	Time         TimeSource
	dispatcher   RuntimeThreadDispatcher
}

// NewRuntimeContext builds a RuntimeContext. gpu may be nil in tests that
// never exercise video processors.
func NewRuntimeContext(runtimeId string, gpu GPUDevice) *RuntimeContext {
	return &RuntimeContext{
		RuntimeId:  runtimeId,
		GPU:        gpu,
		Time:       NewWallClock(),
		dispatcher: NewRuntimeThreadDispatcher(),
	}
}

// RunOnRuntimeThreadBlocking executes thunk on the dedicated runtime thread
// and blocks the caller until it completes.
func (c *RuntimeContext) RunOnRuntimeThreadBlocking(thunk func() (interface{}, error)) (interface{}, error) {
	return c.dispatcher.RunBlocking(thunk)
}

// ProcessorContext is the per-processor view of the RuntimeContext, adding
// the processor's own id for diagnostics, matching spec.md §6's
// "runtime_id, processor_id — for diagnostics and multi-runtime scenarios".
type ProcessorContext struct {
	*RuntimeContext
	ProcessorId ProcessorId
}
