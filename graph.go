package streamrt

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// ProcessorNode is one declared node of the Graph: an id, the factory class
// that materializes it, an opaque config blob, and the port declarations
// that add_link validates against. Config is never interpreted by the
// graph or the executor; only the factory understands it.
type ProcessorNode struct {
	Id          ProcessorId
	ClassName   string
	Config      interface{}
	InputPorts  []Port
	OutputPorts []Port
}

// OutputPort looks up one of this node's declared output ports by name.
func (n *ProcessorNode) OutputPort(name string) (Port, bool) {
	return n.port(name, DirectionOutput)
}

// InputPort looks up one of this node's declared input ports by name.
func (n *ProcessorNode) InputPort(name string) (Port, bool) {
	return n.port(name, DirectionInput)
}

func (n *ProcessorNode) port(name string, dir Direction) (Port, bool) {
	list := n.InputPorts
	if dir == DirectionOutput {
		list = n.OutputPorts
	}
	for _, p := range list {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Link is a declared connection between one output port and one input
// port, keyed by its own LinkId so it can be removed independently of
// either endpoint processor.
type Link struct {
	Id     LinkId
	Source Address
	Target Address
}

// Graph is the declarative desired topology (the DOM): the set of nodes and
// links the runtime wants materialised. It never starts or stops anything
// itself; the executor reconciles the execution graph to match it.
type Graph struct {
	mu    sync.RWMutex
	nodes map[ProcessorId]*ProcessorNode
	links map[LinkId]*Link
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[ProcessorId]*ProcessorNode),
		links: make(map[LinkId]*Link),
	}
}

// AddProcessor registers a new node. Fails with ConfigurationError wrapping
// DuplicateId if id is already present.
func (g *Graph) AddProcessor(id ProcessorId, class string, config interface{}, inputPorts, outputPorts []Port) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; exists {
		return NewConfigurationError("duplicate processor id %q", id)
	}
	g.nodes[id] = &ProcessorNode{
		Id:          id,
		ClassName:   class,
		Config:      config,
		InputPorts:  inputPorts,
		OutputPorts: outputPorts,
	}
	return nil
}

// RemoveProcessor removes a node and every link incident to it. Fails with
// ConfigurationError wrapping NotFound if id is unknown.
func (g *Graph) RemoveProcessor(id ProcessorId) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; !exists {
		return NewConfigurationError("processor %q not found", id)
	}
	delete(g.nodes, id)
	for linkId, link := range g.links {
		if link.Source.ProcessorId == id || link.Target.ProcessorId == id {
			delete(g.links, linkId)
		}
	}
	return nil
}

// AddLink declares a link from source to target, assigning it a fresh
// LinkId. Fails with ConfigurationError wrapping PortMismatch,
// TypeIncompatible, DuplicateLink or WouldCreateCycle.
func (g *Graph) AddLink(source, target Address) (LinkId, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sourceNode, ok := g.nodes[source.ProcessorId]
	if !ok {
		return "", NewConfigurationError("port mismatch: unknown source processor %q", source.ProcessorId)
	}
	targetNode, ok := g.nodes[target.ProcessorId]
	if !ok {
		return "", NewConfigurationError("port mismatch: unknown target processor %q", target.ProcessorId)
	}
	sourcePort, ok := sourceNode.port(source.PortName, DirectionOutput)
	if !ok {
		return "", NewConfigurationError("port mismatch: %s has no output port %q", source.ProcessorId, source.PortName)
	}
	targetPort, ok := targetNode.port(target.PortName, DirectionInput)
	if !ok {
		return "", NewConfigurationError("port mismatch: %s has no input port %q", target.ProcessorId, target.PortName)
	}
	if sourcePort.Kind != targetPort.Kind {
		return "", NewConfigurationError("type incompatible: %s is %s, %s is %s", source, sourcePort.Kind, target, targetPort.Kind)
	}
	if !sourcePort.Schema.CompatibleWith(targetPort.Schema) {
		return "", NewConfigurationError("type incompatible: schemas of %s and %s disagree", source, target)
	}
	for _, link := range g.links {
		if link.Target == target {
			return "", NewConfigurationError("duplicate link: %s already has an incoming link", target)
		}
		if link.Source == source {
			return "", NewConfigurationError("duplicate link: %s already has an outgoing link (fan-out is forbidden)", source)
		}
	}
	if g.wouldCreateCycleLocked(source.ProcessorId, target.ProcessorId) {
		return "", NewConfigurationError("would create cycle: %s -> %s", source.ProcessorId, target.ProcessorId)
	}

	id := newLinkId()
	g.links[id] = &Link{Id: id, Source: source, Target: target}
	return id, nil
}

// RemoveLink removes a declared link. Fails with ConfigurationError
// wrapping NotFound if id is unknown.
func (g *Graph) RemoveLink(id LinkId) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.links[id]; !exists {
		return NewConfigurationError("link %q not found", id)
	}
	delete(g.links, id)
	return nil
}

// wouldCreateCycleLocked reports whether adding an edge from -> to would
// close a cycle in the current link set, via depth-first search from to
// back to from. Caller must hold g.mu.
func (g *Graph) wouldCreateCycleLocked(from, to ProcessorId) bool {
	if from == to {
		return true
	}
	visited := make(map[ProcessorId]bool)
	var visit func(ProcessorId) bool
	visit = func(current ProcessorId) bool {
		if current == from {
			return true
		}
		if visited[current] {
			return false
		}
		visited[current] = true
		for _, link := range g.links {
			if link.Source.ProcessorId == current {
				if visit(link.Target.ProcessorId) {
					return true
				}
			}
		}
		return false
	}
	return visit(to)
}

// Node returns the node with the given id, if present.
func (g *Graph) Node(id ProcessorId) (*ProcessorNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// LinkByID returns the link with the given id, if present.
func (g *Graph) LinkByID(id LinkId) (*Link, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.links[id]
	return l, ok
}

// ProcessorIds returns every declared processor id, in no particular order.
func (g *Graph) ProcessorIds() []ProcessorId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]ProcessorId, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// LinkIds returns every declared link id, in no particular order.
func (g *Graph) LinkIds() []LinkId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]LinkId, 0, len(g.links))
	for id := range g.links {
		ids = append(ids, id)
	}
	return ids
}

// Validate re-runs every graph invariant and returns the first violation,
// or nil if the graph is consistent. AddLink/AddProcessor already enforce
// these at mutation time; Validate exists for the executor to re-check a
// graph it did not itself just mutate (see compile()).
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fanIn := make(map[Address]int)
	fanOut := make(map[Address]int)
	for _, link := range g.links {
		sourceNode, ok := g.nodes[link.Source.ProcessorId]
		if !ok {
			return NewConfigurationError("port mismatch: link %q source processor %q missing", link.Id, link.Source.ProcessorId)
		}
		targetNode, ok := g.nodes[link.Target.ProcessorId]
		if !ok {
			return NewConfigurationError("port mismatch: link %q target processor %q missing", link.Id, link.Target.ProcessorId)
		}
		sourcePort, ok := sourceNode.port(link.Source.PortName, DirectionOutput)
		if !ok {
			return NewConfigurationError("port mismatch: link %q source port %s missing", link.Id, link.Source)
		}
		targetPort, ok := targetNode.port(link.Target.PortName, DirectionInput)
		if !ok {
			return NewConfigurationError("port mismatch: link %q target port %s missing", link.Id, link.Target)
		}
		if sourcePort.Kind != targetPort.Kind || !sourcePort.Schema.CompatibleWith(targetPort.Schema) {
			return NewConfigurationError("type incompatible: link %q", link.Id)
		}
		fanIn[link.Target]++
		if fanIn[link.Target] > 1 {
			return NewConfigurationError("duplicate link: %s has more than one incoming link", link.Target)
		}
		fanOut[link.Source]++
		if fanOut[link.Source] > 1 {
			return NewConfigurationError("duplicate link: %s already has an outgoing link (fan-out is forbidden)", link.Source)
		}
	}

	for id := range g.nodes {
		visited := make(map[ProcessorId]bool)
		var visit func(ProcessorId) bool
		visit = func(current ProcessorId) bool {
			if visited[current] {
				return current == id
			}
			visited[current] = true
			for _, link := range g.links {
				if link.Source.ProcessorId == current {
					if link.Target.ProcessorId == id {
						return true
					}
					if visit(link.Target.ProcessorId) {
						return true
					}
				}
			}
			return false
		}
		for _, link := range g.links {
			if link.Source.ProcessorId == id && visit(link.Target.ProcessorId) {
				return NewConfigurationError("would create cycle: through processor %q", id)
			}
		}
	}
	return nil
}

// Checksum computes a content-addressed hash over the graph's canonical
// serialisation (nodes and links sorted by id), so the executor can decide
// whether a recompile is actually necessary without a deep-equal walk.
// There is no third-party hashing library in use elsewhere in this stack,
// so the stdlib sha256 is used directly rather than introducing a
// single-purpose dependency for it (see DESIGN.md).
func (g *Graph) Checksum() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodeIds := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		nodeIds = append(nodeIds, string(id))
	}
	sort.Strings(nodeIds)

	linkIds := make([]string, 0, len(g.links))
	for id := range g.links {
		linkIds = append(linkIds, string(id))
	}
	sort.Strings(linkIds)

	h := sha256.New()
	for _, id := range nodeIds {
		n := g.nodes[ProcessorId(id)]
		fmt.Fprintf(h, "node:%s:%s:%d:%d\n", n.Id, n.ClassName, len(n.InputPorts), len(n.OutputPorts))
		for _, p := range n.InputPorts {
			fmt.Fprintf(h, "  in:%s:%s:%+v\n", p.Name, p.Kind, p.Schema)
		}
		for _, p := range n.OutputPorts {
			fmt.Fprintf(h, "  out:%s:%s:%+v\n", p.Name, p.Kind, p.Schema)
		}
	}
	for _, id := range linkIds {
		l := g.links[LinkId(id)]
		fmt.Fprintf(h, "link:%s:%s:%s\n", l.Id, l.Source, l.Target)
	}

	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
