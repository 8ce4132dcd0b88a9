// Package connectivity tracks whether the remote backend is reachable and
// notifies subscribers of transitions. Reachability here is a heuristic, not
// a guarantee: a Reachable verdict can still coexist with individual request
// failures, which the sync engine handles per mutation.
package connectivity

// State is the current reachability verdict.
type State int

const (
	Unreachable State = iota
	Reachable
)

func (s State) String() string {
	if s == Reachable {
		return "reachable"
	}
	return "unreachable"
}

// Monitor exposes the current state and change notifications. Callbacks run
// on the monitor's goroutine and must not block.
type Monitor interface {
	State() State

	// OnChange registers cb for state transitions and returns a function
	// that unregisters it. The callback fires only on actual transitions,
	// not on repeated observations of the same state.
	OnChange(cb func(State)) (cancel func())
}
