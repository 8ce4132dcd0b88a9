package fieldsync

// EventKind classifies a user-facing notification.
type EventKind string

const (
	// EventQueued: a write was stored for later replay.
	EventQueued EventKind = "queued"
	// EventApplied: a write reached the backend directly.
	EventApplied EventKind = "applied"
	// EventFailed: a direct write failed; nothing was queued.
	EventFailed EventKind = "failed"
	// EventMutationDead: the syncer gave up on a queued mutation.
	EventMutationDead EventKind = "mutation_dead"
	// EventConflict: a record open for editing changed remotely.
	EventConflict EventKind = "conflict"
	// EventDurabilityDisabled: local storage could not be opened; writes
	// only succeed while the backend is reachable.
	EventDurabilityDisabled EventKind = "durability_disabled"
)

// Event is a notification for the UI layer: toasts, banners, pending-sync
// counters. Events are advisory; none of the queue's correctness depends on
// a notifier observing them.
type Event struct {
	Kind       EventKind
	Message    string
	MutationID string
	Collection string
	RecordID   string
	Err        error
}

// Notifier receives events on the goroutine that produced them and must not
// block.
type Notifier interface {
	Notify(Event)
}

// NopNotifier ignores all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}
