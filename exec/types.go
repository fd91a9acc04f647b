// Package exec holds the execution graph (VDOM), the delta reconciler, and
// the per-processor worker loops that turn a streamrt.Graph into running
// goroutines. It separates declarative state (graph.go) from live
// instances, scaled up from one subprocess to one goroutine per processor.
package exec

import (
	"sync"

	st "github.com/streamrt/streamrt"
	"github.com/streamrt/streamrt/link"
)

// ProcessorState is the per-instance lifecycle state tracked by the
// execution graph, distinct from st.RuntimeState which tracks the facade.
type ProcessorState int

const (
	ProcessorPending ProcessorState = iota
	ProcessorRunning
	ProcessorStopping
	ProcessorStopped
)

func (s ProcessorState) String() string {
	switch s {
	case ProcessorPending:
		return "pending"
	case ProcessorRunning:
		return "running"
	case ProcessorStopping:
		return "stopping"
	case ProcessorStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RunningProcessor is the VDOM overlay for one processor node: the live
// instance plus the goroutine lifetime handles around it.
type RunningProcessor struct {
	NodeId   st.ProcessorId
	Instance st.Processor

	mu    sync.Mutex
	state ProcessorState

	shutdown chan struct{}
	wakeup   chan link.WakeupEvent
	done     chan struct{}
}

func newRunningProcessor(id st.ProcessorId, instance st.Processor) *RunningProcessor {
	return &RunningProcessor{
		NodeId:   id,
		Instance: instance,
		state:    ProcessorPending,
		shutdown: make(chan struct{}),
		wakeup:   make(chan link.WakeupEvent, 8),
		done:     make(chan struct{}),
	}
}

// State returns the processor's current lifecycle state.
func (r *RunningProcessor) State() ProcessorState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RunningProcessor) setState(s ProcessorState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// WiredLink is the VDOM overlay for one declared link: the ring's metadata
// plus enough to unwire it later. The producer/consumer halves themselves
// live inside the endpoint processors' port slots, per spec; this struct
// only remembers which ones they were so Unwire* can be called symmetrically.
type WiredLink struct {
	Id       st.LinkId
	Kind     st.Kind
	Capacity int
	Source   st.Address
	Target   st.Address

	// Producer and Consumer are the *link.Producer[T]/*link.Consumer[T]
	// halves installed into the endpoint processors, kept here too so the
	// executor can inspect ring occupancy (best-effort drain on disconnect)
	// without needing the processor's cooperation.
	Producer interface{}
	Consumer interface{}
}

// CompilationMetadata records the state of the last successful compile, so
// Compile can be a cheap no-op when the graph hasn't actually changed.
type CompilationMetadata struct {
	ChecksumAtCompile uint64
	Compiled          bool
}

// ExecutionGraph is the live VDOM: running processor and wired link
// overlays keyed by the same ids the Graph uses, plus compile metadata.
type ExecutionGraph struct {
	mu         sync.RWMutex
	processors map[st.ProcessorId]*RunningProcessor
	links      map[st.LinkId]*WiredLink
	meta       CompilationMetadata
}

func newExecutionGraph() *ExecutionGraph {
	return &ExecutionGraph{
		processors: make(map[st.ProcessorId]*RunningProcessor),
		links:      make(map[st.LinkId]*WiredLink),
	}
}

func (g *ExecutionGraph) processorIds() []st.ProcessorId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]st.ProcessorId, 0, len(g.processors))
	for id := range g.processors {
		ids = append(ids, id)
	}
	return ids
}

func (g *ExecutionGraph) linkIds() []st.LinkId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]st.LinkId, 0, len(g.links))
	for id := range g.links {
		ids = append(ids, id)
	}
	return ids
}

func (g *ExecutionGraph) getProcessor(id st.ProcessorId) (*RunningProcessor, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.processors[id]
	return p, ok
}

func (g *ExecutionGraph) getLink(id st.LinkId) (*WiredLink, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.links[id]
	return l, ok
}

func (g *ExecutionGraph) insertProcessor(rp *RunningProcessor) {
	g.mu.Lock()
	g.processors[rp.NodeId] = rp
	g.mu.Unlock()
}

func (g *ExecutionGraph) removeProcessor(id st.ProcessorId) {
	g.mu.Lock()
	delete(g.processors, id)
	g.mu.Unlock()
}

func (g *ExecutionGraph) insertLink(wl *WiredLink) {
	g.mu.Lock()
	g.links[wl.Id] = wl
	g.mu.Unlock()
}

func (g *ExecutionGraph) removeLink(id st.LinkId) {
	g.mu.Lock()
	delete(g.links, id)
	g.mu.Unlock()
}

// ProcessorCount and LinkCount back RuntimeStatus (see facade).
func (g *ExecutionGraph) ProcessorCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.processors)
}

func (g *ExecutionGraph) LinkCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.links)
}

// ProcessorStates returns a snapshot of every running processor's state,
// keyed by id, for RuntimeStatus.
func (g *ExecutionGraph) ProcessorStates() map[st.ProcessorId]ProcessorState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[st.ProcessorId]ProcessorState, len(g.processors))
	for id, rp := range g.processors {
		out[id] = rp.State()
	}
	return out
}
