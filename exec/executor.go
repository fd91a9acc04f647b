package exec

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamrt/streamrt/link"
	"github.com/streamrt/streamrt/logging"

	st "github.com/streamrt/streamrt"
)

// processorShutdownJoinTimeout bounds how long shutdownProcessorLocked waits for
// a worker goroutine to exit before logging a warning and leaking it. The
// original model this is grounded on blocks indefinitely on thread::join;
// a bounded wait is substituted here so a misbehaving processor cannot
// hang every future stop()/remove_processor() call.
const processorShutdownJoinTimeout = 5 * time.Second

// pullModeIdlePoll is how often a Pull-mode worker wakes to re-check its
// shutdown channel while otherwise driving itself via external callbacks.
const pullModeIdlePoll = 100 * time.Millisecond

// loopModeYield is the short sleep a Loop-mode worker takes between ticks.
const loopModeYield = 10 * time.Microsecond

// State is the executor's own state machine, distinct from both
// ProcessorState (per-instance) and st.RuntimeState (facade-level).
type State int

const (
	Idle State = iota
	Compiled
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Compiled:
		return "compiled"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// RuntimeStatus is a point-in-time snapshot for the facade's status() op.
type RuntimeStatus struct {
	Running         bool
	Paused          bool
	ProcessorCount  int
	LinkCount       int
	ProcessorStates map[st.ProcessorId]ProcessorState
}

// Executor reconciles a declarative st.Graph into a live ExecutionGraph of
// worker goroutines, one per processor, scaled from a single subprocess's
// lifecycle to many goroutines under one mutator.
type Executor struct {
	mu sync.Mutex

	state     State
	graph     *st.Graph
	execGraph *ExecutionGraph

	factories *st.FactoryRegistry
	bus       *st.EventBus
	options   st.RuntimeOptions
	log       logging.Logger

	runtimeCtx *st.RuntimeContext
	paused     atomic.Bool
}

// NewExecutor builds an Executor in state Idle.
func NewExecutor(factories *st.FactoryRegistry, bus *st.EventBus, options st.RuntimeOptions) *Executor {
	return &Executor{
		state:     Idle,
		factories: factories,
		bus:       bus,
		options:   options.Clone(),
		log:       logging.New("Executor"),
	}
}

// State returns the executor's current state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Compile validates graph, captures its checksum, and allocates an empty
// execution graph plus the shared runtime context. Idempotent if the
// graph's checksum is unchanged since the last successful compile.
func (e *Executor) Compile(graph *st.Graph, runtimeId string, gpu st.GPUDevice) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := graph.Validate(); err != nil {
		return err
	}
	checksum := graph.Checksum()

	if e.execGraph != nil && e.execGraph.meta.Compiled && e.execGraph.meta.ChecksumAtCompile == checksum {
		return nil
	}

	e.graph = graph
	e.execGraph = newExecutionGraph()
	e.execGraph.meta = CompilationMetadata{ChecksumAtCompile: checksum, Compiled: true}
	e.runtimeCtx = st.NewRuntimeContext(runtimeId, gpu)
	e.state = Compiled
	return nil
}

// Start runs an initial sync_to_graph, sends a one-shot wakeup to every
// Pull-mode processor, and transitions to Running.
func (e *Executor) Start() error {
	e.mu.Lock()
	if e.state != Compiled {
		e.mu.Unlock()
		return st.NewRuntimeError("start requires state compiled, got %s", e.state)
	}
	e.mu.Unlock()

	if err := e.SyncToGraph(); err != nil {
		return err
	}

	e.mu.Lock()
	for _, id := range e.execGraph.processorIds() {
		rp, ok := e.execGraph.getProcessor(id)
		if !ok || rp.State() != ProcessorRunning {
			continue
		}
		if rp.Instance.Descriptor().Scheduling.Mode == st.SchedulingPull {
			select {
			case rp.wakeup <- link.DataAvailable:
			default:
			}
		}
	}
	e.state = Running
	e.mu.Unlock()
	return nil
}

// SyncToGraph computes the current delta between declared and running
// state and applies it. Safe to call while Running (hot reconfigure).
func (e *Executor) SyncToGraph() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil || e.execGraph == nil {
		return st.NewRuntimeError("executor not compiled")
	}
	delta := e.computeGraphDeltaLocked()
	return e.applyDeltaLocked(delta)
}

func (e *Executor) computeGraphDeltaLocked() Delta {
	procAdd, procRemove := diffProcessorIds(e.graph.ProcessorIds(), e.execGraph.processorIds())
	linkAdd, linkRemove := diffLinkIds(e.graph.LinkIds(), e.execGraph.linkIds())
	return Delta{
		ProcessorsToAdd:    procAdd,
		ProcessorsToRemove: procRemove,
		LinksToAdd:         linkAdd,
		LinksToRemove:      linkRemove,
	}
}

// applyDeltaLocked applies delta in the mandated order: unwire removed
// links, shut down removed processors, spawn added processors, wire added
// links. Caller must hold e.mu.
func (e *Executor) applyDeltaLocked(delta Delta) error {
	for _, id := range delta.LinksToRemove {
		if err := e.unwireLinkLocked(id); err != nil {
			e.log.Warn("error unwiring link %s: %v", id, err)
		}
	}

	for _, id := range delta.ProcessorsToRemove {
		if err := e.shutdownProcessorLocked(id); err != nil {
			e.log.Warn("error shutting down processor %s: %v", id, err)
		}
		e.execGraph.removeProcessor(id)
	}

	for _, id := range delta.ProcessorsToAdd {
		if err := e.spawnProcessorLocked(id); err != nil {
			return err
		}
	}

	wiredThisBatch := make([]st.LinkId, 0, len(delta.LinksToAdd))
	for _, id := range delta.LinksToAdd {
		if err := e.wireLinkLocked(id); err != nil {
			for _, undoId := range wiredThisBatch {
				_ = e.unwireLinkLocked(undoId)
			}
			return err
		}
		wiredThisBatch = append(wiredThisBatch, id)
	}

	return nil
}

func (e *Executor) spawnProcessorLocked(id st.ProcessorId) error {
	node, ok := e.graph.Node(id)
	if !ok {
		return st.NewRuntimeError("processor %q missing from graph", id)
	}
	factory, err := e.factories.Lookup(node.ClassName)
	if err != nil {
		return err
	}
	instance, err := factory.Create(node)
	if err != nil {
		return err
	}

	rp := newRunningProcessor(id, instance)
	ctx := &st.ProcessorContext{RuntimeContext: e.runtimeCtx, ProcessorId: id}

	if err := instance.Setup(ctx); err != nil {
		rp.setState(ProcessorStopped)
		e.execGraph.insertProcessor(rp)
		e.bus.Publish(st.ProcessorTopic(id), "SetupFailed", &st.SetupError{ProcessorId: id, Reason: err.Error()})
		e.log.Warn("setup failed for processor %s: %v", id, err)
		return nil
	}

	rp.setState(ProcessorRunning)
	e.execGraph.insertProcessor(rp)

	desc := instance.Descriptor()
	go e.runWorker(rp, desc)
	return nil
}

func (e *Executor) shutdownProcessorLocked(id st.ProcessorId) error {
	rp, ok := e.execGraph.getProcessor(id)
	if !ok {
		return st.NewRuntimeError("processor %q not found", id)
	}
	state := rp.State()
	if state == ProcessorStopped || state == ProcessorStopping {
		return nil
	}
	rp.setState(ProcessorStopping)
	close(rp.shutdown)

	select {
	case <-rp.done:
	case <-time.After(processorShutdownJoinTimeout):
		e.log.Warn("processor %s worker did not exit within %s, leaking it", id, processorShutdownJoinTimeout)
	}
	return nil
}

func (e *Executor) wireLinkLocked(id st.LinkId) error {
	declared, ok := e.graph.LinkByID(id)
	if !ok {
		return st.NewRuntimeError("link %q missing from graph", id)
	}
	sourceNode, ok := e.graph.Node(declared.Source.ProcessorId)
	if !ok {
		return st.NewRuntimeError("link %q source processor missing", id)
	}
	sourcePort, ok := sourceNode.OutputPort(declared.Source.PortName)
	if !ok {
		return st.NewWiringError("link %q source port %s missing", id, declared.Source)
	}
	sourceRP, ok := e.execGraph.getProcessor(declared.Source.ProcessorId)
	if !ok {
		return st.NewWiringError("link %q source processor not running", id)
	}
	targetRP, ok := e.execGraph.getProcessor(declared.Target.ProcessorId)
	if !ok {
		return st.NewWiringError("link %q target processor not running", id)
	}
	if sourceRP.State() == ProcessorStopped || targetRP.State() == ProcessorStopped {
		// One endpoint's setup() already failed (see spawnProcessorLocked):
		// per the setup-failure contract the processor stays in the
		// execution graph as Stopped but its incident links never wire.
		// Non-fatal to the batch.
		e.log.Warn("skipping wire of link %s: an endpoint is already stopped", id)
		return nil
	}

	e.bus.Publish(st.ProcessorTopic(declared.Source.ProcessorId), st.EventWillConnect, declared.Id)
	e.bus.Publish(st.ProcessorTopic(declared.Target.ProcessorId), st.EventWillConnect, declared.Id)

	capacity := e.options.LinkCapacity(sourcePort.Kind)
	producer, consumer := makeRingHalves(sourcePort.Kind, capacity)

	if !sourceRP.Instance.WireOutputProducer(declared.Source.PortName, producer) {
		return st.NewWiringError("processor %s refused output producer on port %s", declared.Source.ProcessorId, declared.Source.PortName)
	}
	if !targetRP.Instance.WireInputConsumer(declared.Target.PortName, consumer) {
		sourceRP.Instance.UnwireOutputProducer(declared.Source.PortName, id)
		return st.NewWiringError("processor %s refused input consumer on port %s", declared.Target.ProcessorId, declared.Target.PortName)
	}
	sourceRP.Instance.SetOutputWakeup(declared.Source.PortName, link.WakeupSender(targetRP.wakeup))

	e.execGraph.insertLink(&WiredLink{
		Id:       id,
		Kind:     sourcePort.Kind,
		Capacity: capacity,
		Source:   declared.Source,
		Target:   declared.Target,
		Producer: producer,
		Consumer: consumer,
	})

	e.bus.Publish(st.ProcessorTopic(declared.Source.ProcessorId), st.EventConnected, declared.Id)
	e.bus.Publish(st.ProcessorTopic(declared.Target.ProcessorId), st.EventConnected, declared.Id)
	e.bus.PublishGlobal(st.EventConnectionCreated, declared.Id)
	return nil
}

func (e *Executor) unwireLinkLocked(id st.LinkId) error {
	wl, ok := e.execGraph.getLink(id)
	if !ok {
		return nil
	}

	e.bus.Publish(st.ProcessorTopic(wl.Source.ProcessorId), st.EventWillDisconnect, id)
	e.bus.Publish(st.ProcessorTopic(wl.Target.ProcessorId), st.EventWillDisconnect, id)

	if sourceRP, ok := e.execGraph.getProcessor(wl.Source.ProcessorId); ok {
		sourceRP.Instance.UnwireOutputProducer(wl.Source.PortName, id)
	}

	// The consumer stays plugged during the drain window so the target can
	// still pop in-flight frames.
	deadline := time.Now().Add(e.options.DisconnectDrainTimeout)
	for time.Now().Before(deadline) && ringLen(wl.Consumer) > 0 {
		time.Sleep(5 * time.Millisecond)
	}

	if targetRP, ok := e.execGraph.getProcessor(wl.Target.ProcessorId); ok {
		targetRP.Instance.UnwireInputConsumer(wl.Target.PortName, id)
	}

	e.execGraph.removeLink(id)
	e.bus.Publish(st.ProcessorTopic(wl.Source.ProcessorId), st.EventDisconnected, id)
	e.bus.Publish(st.ProcessorTopic(wl.Target.ProcessorId), st.EventDisconnected, id)
	e.bus.PublishGlobal(st.EventConnectionRemoved, id)
	return nil
}

// Pause sets the gate every worker reads at the top of its tick. If
// options.PauseDrainsRings is set, every wired ring is also drained.
func (e *Executor) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return st.NewRuntimeError("pause requires state running, got %s", e.state)
	}
	e.paused.Store(true)
	e.state = Paused
	if e.options.PauseDrainsRings {
		for _, id := range e.execGraph.linkIds() {
			if wl, ok := e.execGraph.getLink(id); ok {
				drainAll(wl.Consumer)
			}
		}
	}
	return nil
}

// Resume clears the pause gate and transitions back to Running.
func (e *Executor) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Paused {
		return st.NewRuntimeError("resume requires state paused, got %s", e.state)
	}
	e.paused.Store(false)
	e.state = Running
	return nil
}

// Stop unwires every link, shuts down every processor, and transitions to
// Idle. The execution graph is discarded; a subsequent Compile starts
// fresh.
func (e *Executor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.execGraph == nil {
		e.state = Idle
		return nil
	}
	for _, id := range e.execGraph.linkIds() {
		_ = e.unwireLinkLocked(id)
	}
	for _, id := range e.execGraph.processorIds() {
		_ = e.shutdownProcessorLocked(id)
	}
	e.execGraph = newExecutionGraph()
	e.paused.Store(false)
	e.state = Idle
	return nil
}

// Status returns a snapshot suitable for the facade's status() op.
func (e *Executor) Status() RuntimeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.execGraph == nil {
		return RuntimeStatus{}
	}
	return RuntimeStatus{
		Running:         e.state == Running,
		Paused:          e.state == Paused,
		ProcessorCount:  e.execGraph.ProcessorCount(),
		LinkCount:       e.execGraph.LinkCount(),
		ProcessorStates: e.execGraph.ProcessorStates(),
	}
}

// runWorker is the goroutine body for one processor: it dispatches to the
// scheduling-mode-specific loop, then always tears down before exiting.
func (e *Executor) runWorker(rp *RunningProcessor, desc st.Descriptor) {
	defer close(rp.done)

	switch desc.Scheduling.Mode {
	case st.SchedulingLoop:
		e.runLoopMode(rp, desc)
	case st.SchedulingPush:
		e.runPushMode(rp, desc)
	case st.SchedulingPull:
		e.runPullMode(rp, desc)
	default:
		e.log.Warn("processor %s has unknown scheduling mode %q", rp.NodeId, desc.Scheduling.Mode)
	}

	if err := rp.Instance.Teardown(); err != nil {
		e.log.Warn("teardown error for processor %s: %v", rp.NodeId, err)
	}
	rp.setState(ProcessorStopped)
}

func (e *Executor) runLoopMode(rp *RunningProcessor, desc st.Descriptor) {
	for {
		select {
		case <-rp.shutdown:
			return
		default:
		}
		if !e.paused.Load() {
			if e.tick(rp, desc) {
				return
			}
		}
		time.Sleep(loopModeYield)
	}
}

func (e *Executor) runPushMode(rp *RunningProcessor, desc st.Descriptor) {
	for {
		select {
		case <-rp.shutdown:
			return
		case evt := <-rp.wakeup:
			if evt == link.Shutdown {
				return
			}
			if !e.paused.Load() {
				if e.tick(rp, desc) {
					return
				}
			}
		}
	}
}

func (e *Executor) runPullMode(rp *RunningProcessor, desc st.Descriptor) {
	if !e.paused.Load() {
		if e.tick(rp, desc) {
			return
		}
	}

	for {
		select {
		case <-rp.shutdown:
			return
		case evt := <-rp.wakeup:
			if evt == link.Shutdown {
				return
			}
		case <-time.After(pullModeIdlePoll):
		}
	}
}

// tick runs one Process() call, recovering a panic into a ProcessError,
// and reports whether the worker should stop.
func (e *Executor) tick(rp *RunningProcessor, desc st.Descriptor) (stop bool) {
	started := time.Now()
	err, panicked := e.safeProcess(rp)
	if budget := desc.Scheduling.Hints.ComputeBudget; budget > 0 {
		if elapsed := time.Since(started); elapsed > budget {
			e.log.Warn("processor %s process() took %s, over its compute budget of %s", rp.NodeId, elapsed, budget)
		}
	}
	if err == nil {
		return false
	}

	processErr := &st.ProcessError{ProcessorId: rp.NodeId, Reason: err.Error(), Fatal: panicked || desc.FatalOnProcessError}
	e.bus.Publish(st.ProcessorTopic(rp.NodeId), "ProcessError", processErr)
	e.log.Warn("process error for %s: %v", rp.NodeId, err)
	return processErr.Fatal
}

func (e *Executor) safeProcess(rp *RunningProcessor) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			panicked = true
		}
	}()
	return rp.Instance.Process(), false
}

func makeRingHalves(kind st.Kind, capacity int) (producer, consumer interface{}) {
	switch kind {
	case st.KindVideo:
		p, c := link.New[st.VideoFrame](capacity)
		return p, c
	case st.KindAudio:
		p, c := link.New[st.AudioFrame](capacity)
		return p, c
	default:
		p, c := link.New[st.DataFrame](capacity)
		return p, c
	}
}

func ringLen(half interface{}) int {
	if h, ok := half.(interface{ Len() int }); ok {
		return h.Len()
	}
	return 0
}

func drainAll(half interface{}) int {
	if h, ok := half.(interface{ DrainAll() int }); ok {
		return h.DrainAll()
	}
	return 0
}
