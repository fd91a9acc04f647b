package streamrt

// RuntimeState is the facade-level lifecycle state, distinct from the
// per-processor Lifecycle state tracked by the execution graph. Mutations
// are rejected with TransientStateError while the runtime sits in
// Restarting or PurgeRebuild (see IsTransient).
type RuntimeState string

const (
	RuntimeStopped      RuntimeState = "stopped"
	RuntimeStarting     RuntimeState = "starting"
	RuntimeRunning      RuntimeState = "running"
	RuntimeStopping     RuntimeState = "stopping"
	RuntimePaused       RuntimeState = "paused"
	RuntimeRestarting   RuntimeState = "restarting"
	RuntimePurgeRebuild RuntimeState = "purge_rebuild"
)

// IsTransient reports whether mutating operations must be rejected while
// the runtime sits in this state. Per spec, only Restarting and
// PurgeRebuild reject mutation outright; Starting/Stopping still accept
// graph mutations (they are queued against the graph and reconciled once
// live, same as Stopped/Paused).
func (s RuntimeState) IsTransient() bool {
	switch s {
	case RuntimeRestarting, RuntimePurgeRebuild:
		return true
	default:
		return false
	}
}
