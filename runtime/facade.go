// Package runtime implements the Runtime facade: the single mutation entry
// point spec.md describes in §4.6, wrapping a Graph and an Executor behind
// one serialising mutex, the way a worker process sits as the single entry
// point in front of its own control channel.
package runtime

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	st "github.com/streamrt/streamrt"
	"github.com/streamrt/streamrt/exec"
	"github.com/streamrt/streamrt/logging"
)

// Status is the public snapshot returned by Runtime.Status.
type Status struct {
	State           st.RuntimeState
	ProcessorCount  int
	LinkCount       int
	ProcessorStates map[st.ProcessorId]exec.ProcessorState
}

// Runtime is the facade described in spec.md §4.6. It owns the graph, the
// executor, the event bus, and the runtime-level id/state bookkeeping; it
// is the only thing callers mutate topology through.
type Runtime struct {
	mu sync.Mutex

	id       string
	graph    *st.Graph
	executor *exec.Executor
	bus      *st.EventBus
	factory  *st.FactoryRegistry
	options  st.RuntimeOptions
	gpu      st.GPUDevice
	log      logging.Logger

	state st.RuntimeState
}

// New builds a Runtime in state Stopped, with an empty graph and a fresh
// factory registry the caller populates before calling Start.
func New(id string, gpu st.GPUDevice, opts ...st.RuntimeOption) *Runtime {
	options := st.DefaultRuntimeOptions()
	for _, opt := range opts {
		opt(&options)
	}
	bus := st.NewEventBus()
	factory := st.NewFactoryRegistry()
	return &Runtime{
		id:       id,
		graph:    st.NewGraph(),
		executor: exec.NewExecutor(factory, bus, options),
		bus:      bus,
		factory:  factory,
		options:  options,
		gpu:      gpu,
		log:      logging.New("Runtime"),
		state:    st.RuntimeStopped,
	}
}

// RegisterFactory adds a processor class the facade's add_processor can
// materialize. Must be called before the class is referenced.
func (r *Runtime) RegisterFactory(factory st.ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory.Register(factory)
}

// EventBus exposes the runtime's event bus for subscribers, per spec.md §4.7.
func (r *Runtime) EventBus() *st.EventBus { return r.bus }

func (r *Runtime) checkMutable() error {
	if r.state.IsTransient() {
		return &st.TransientStateError{State: r.state}
	}
	return nil
}

// AddProcessor declares a new node under class, generating a fresh
// ProcessorId. Reconciles immediately if the runtime is live.
func (r *Runtime) AddProcessor(class string, config interface{}) (st.ProcessorId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return "", err
	}

	factory, err := r.factory.Lookup(class)
	if err != nil {
		return "", err
	}
	desc := factory.Descriptor()
	id := r.nextProcessorId()

	if err := r.graph.AddProcessor(id, class, config, inputPorts(desc.Ports), outputPorts(desc.Ports)); err != nil {
		return "", err
	}
	if err := r.reconcileIfLive(); err != nil {
		return "", err
	}
	return id, nil
}

// RemoveProcessor removes a declared node and its incident links.
// Reconciles immediately if the runtime is live.
func (r *Runtime) RemoveProcessor(id st.ProcessorId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	if err := r.graph.RemoveProcessor(id); err != nil {
		return err
	}
	return r.reconcileIfLive()
}

// Connect declares a link from source to target. Reconciles immediately if
// the runtime is live.
func (r *Runtime) Connect(source, target st.Address) (st.LinkId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return "", err
	}
	id, err := r.graph.AddLink(source, target)
	if err != nil {
		return "", err
	}
	if err := r.reconcileIfLive(); err != nil {
		return "", err
	}
	return id, nil
}

// ConnectByID is Connect addressed by processor id and port name pairs,
// the shape most callers actually have in hand.
func (r *Runtime) ConnectByID(sourceId st.ProcessorId, sourcePort string, targetId st.ProcessorId, targetPort string) (st.LinkId, error) {
	return r.Connect(
		st.Address{ProcessorId: sourceId, PortName: sourcePort},
		st.Address{ProcessorId: targetId, PortName: targetPort},
	)
}

// Disconnect removes a declared link. Reconciles immediately if the
// runtime is live.
func (r *Runtime) Disconnect(id st.LinkId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	if err := r.graph.RemoveLink(id); err != nil {
		return err
	}
	return r.reconcileIfLive()
}

// reconcileIfLive requests a sync_to_graph only when the executor is
// actually running or paused; a Stopped runtime just accumulates graph
// state for the next Start.
func (r *Runtime) reconcileIfLive() error {
	if r.state != st.RuntimeRunning && r.state != st.RuntimePaused {
		return nil
	}
	return r.executor.SyncToGraph()
}

// Start compiles the graph (if not already compiled against its current
// checksum) and transitions the executor to Running.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.state = st.RuntimeStarting
	if err := r.executor.Compile(r.graph, r.id, r.gpu); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	if err := r.executor.Start(); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	r.state = st.RuntimeRunning
	return nil
}

// Stop tears the executor down to Idle and transitions to Stopped.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st.RuntimeStopping
	if err := r.executor.Stop(); err != nil {
		return err
	}
	r.state = st.RuntimeStopped
	return nil
}

// Pause sets the executor's global tick gate.
func (r *Runtime) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.executor.Pause(); err != nil {
		return err
	}
	r.state = st.RuntimePaused
	return nil
}

// Resume clears the executor's global tick gate.
func (r *Runtime) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.executor.Resume(); err != nil {
		return err
	}
	r.state = st.RuntimeRunning
	return nil
}

// Restart stops the executor, recompiles the same declared graph and
// starts it again: every processor gets a fresh instance, but the declared
// graph itself is untouched. Restart holds the runtime's mutex for its
// whole duration, so a mutation issued concurrently waits until the restart
// has finished and does not fail with TransientStateError.
func (r *Runtime) Restart() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st.RuntimeRestarting
	if err := r.executor.Stop(); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	if err := r.executor.Compile(r.graph, r.id, r.gpu); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	if err := r.executor.Start(); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	r.state = st.RuntimeRunning
	return nil
}

// PurgeRebuild discards the execution graph's compile metadata in addition
// to stopping every processor, forcing Compile to treat the graph as
// unseen even if its checksum happens to match, useful after a factory
// class registration change that a checksum comparison alone can't detect.
func (r *Runtime) PurgeRebuild() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st.RuntimePurgeRebuild
	if err := r.executor.Stop(); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	r.executor = exec.NewExecutor(r.factory, r.bus, r.options)
	if err := r.executor.Compile(r.graph, r.id, r.gpu); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	if err := r.executor.Start(); err != nil {
		r.state = st.RuntimeStopped
		return err
	}
	r.state = st.RuntimeRunning
	return nil
}

// Status returns a snapshot of runtime and per-processor state. Safe to
// call concurrently with mutation; it takes the same mutex as the mutating
// operations rather than a separate read lock, so it waits for any
// mutation in progress to finish.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.executor.Status()
	return Status{
		State:           r.state,
		ProcessorCount:  snap.ProcessorCount,
		LinkCount:       snap.LinkCount,
		ProcessorStates: snap.ProcessorStates,
	}
}

// Run blocks the calling goroutine until SIGINT, SIGTERM, or a
// RuntimeShutdown event (published by Shutdown) is observed on the
// runtime-global event bus topic, then stops the executor. Calling Stop
// directly publishes no event and does not unblock Run. Grounded on the control thread blocking inside the original
// model's run() on a shutdown-event receiver subscribed to runtime:global.
func (r *Runtime) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdownCh := make(chan struct{}, 1)
	unsubscribe := r.bus.On(st.RuntimeGlobalTopic, st.EventRuntimeShutdown, func(args ...interface{}) {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	select {
	case sig := <-sigCh:
		r.log.Info("received signal %s, shutting down", sig)
	case <-shutdownCh:
		r.log.Info("received runtime shutdown event")
	}

	return r.Stop()
}

// Shutdown publishes RuntimeShutdown on the global topic, unblocking any
// goroutine parked inside Run.
func (r *Runtime) Shutdown() {
	r.bus.PublishGlobal(st.EventRuntimeShutdown)
}

func (r *Runtime) nextProcessorId() st.ProcessorId {
	return st.NewProcessorId()
}

func inputPorts(ports []st.Port) []st.Port {
	out := make([]st.Port, 0, len(ports))
	for _, p := range ports {
		if p.Direction == st.DirectionInput {
			out = append(out, p)
		}
	}
	return out
}

func outputPorts(ports []st.Port) []st.Port {
	out := make([]st.Port, 0, len(ports))
	for _, p := range ports {
		if p.Direction == st.DirectionOutput {
			out = append(out, p)
		}
	}
	return out
}
