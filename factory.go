package streamrt

import "sync"

// ProcessorFactory materialises a declared ProcessorNode into a concrete
// Processor instance. The executor calls Create while reconciling
// (SyncToGraph, including the one Start runs); Compile does not call it.
// The graph never touches a factory directly, since config is
// opaque to everything but the factory that registered the class.
type ProcessorFactory interface {
	// ClassName is the string add_processor callers pass as class.
	ClassName() string
	// Descriptor returns the static ports/scheduling for this class,
	// without requiring an instance, used by Graph.AddProcessor callers
	// to populate a ProcessorNode's InputPorts/OutputPorts before any
	// Processor exists.
	Descriptor() Descriptor
	// Create builds a fresh Processor instance from the node's config
	// blob. Returns FactoryError wrapping InvalidConfig or
	// MissingCapability on failure.
	Create(node *ProcessorNode) (Processor, error)
}

// FactoryRegistry looks up a ProcessorFactory by class name, the way the
// runtime facade resolves add_processor's class argument before it can
// populate port metadata on the graph node.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]ProcessorFactory
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]ProcessorFactory)}
}

// Register adds a factory, keyed by its own ClassName. A later Register
// call with the same class name overwrites the earlier one. Guarded by its
// own mutex since Runtime.RegisterFactory (under Runtime.mu) and
// Executor.spawnProcessorLocked's Lookup (under Executor.mu) run on
// separate locks and can race on the same registry otherwise, for instance
// a RegisterFactory call racing a PurgeRebuild's in-flight reconcile.
func (r *FactoryRegistry) Register(factory ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.ClassName()] = factory
}

// Lookup returns the factory for class, or FactoryError wrapping
// UnknownClass.
func (r *FactoryRegistry) Lookup(class string) (ProcessorFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[class]
	if !ok {
		return nil, &FactoryError{Kind: FactoryErrorUnknownClass, Reason: "unknown processor class " + class}
	}
	return factory, nil
}
