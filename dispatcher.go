package fieldsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldsync/fieldsync.go/pkg/connectivity"
	"github.com/fieldsync/fieldsync.go/pkg/logger"
	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/remote"
)

// OutcomeKind says what happened to a dispatched write.
type OutcomeKind int

const (
	// AppliedRemotely: the write reached the backend; Result holds its
	// response.
	AppliedRemotely OutcomeKind = iota
	// Queued: the backend was unreachable; the write is stored for replay
	// and MutationID identifies it.
	Queued
	// Failed: the write reached neither the backend nor the queue; Err
	// holds the cause.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case AppliedRemotely:
		return "applied"
	case Queued:
		return "queued"
	}
	return "failed"
}

// Outcome is the result of one Dispatch call.
type Outcome struct {
	Kind       OutcomeKind
	Result     map[string]any
	MutationID string
	Err        error
}

// Dispatcher is the single write path for application code. It consults the
// connectivity monitor (never probing the network itself) and either applies
// a write directly or queues it for later replay.
//
// A direct call that fails does not fall back to queueing: queueing is
// reserved for genuine offline conditions, otherwise a transient remote
// error would be masked as "queued" and replayed much later with stale
// intent.
type Dispatcher struct {
	queue    *Queue // nil means degraded: no offline durability
	remote   remote.Client
	monitor  connectivity.Monitor
	notifier Notifier
	logger   logger.Logger

	degradedWarning sync.Once
}

func NewDispatcher(q *Queue, rc remote.Client, mon connectivity.Monitor, lg logger.Logger) *Dispatcher {
	if lg == nil {
		lg = logger.Nop{}
	}
	return &Dispatcher{
		queue:    q,
		remote:   rc,
		monitor:  mon,
		notifier: NopNotifier{},
		logger:   lg,
	}
}

// WithNotifier sets the UI notifier for dispatch outcomes.
func (d *Dispatcher) WithNotifier(n Notifier) *Dispatcher {
	d.notifier = n
	return d
}

// Degraded reports whether the dispatcher runs without offline durability.
func (d *Dispatcher) Degraded() bool {
	return d.queue == nil
}

// Dispatch performs one write. Errors surface in the returned Outcome, not
// as panics or silent drops; every path also emits a notifier event.
func (d *Dispatcher) Dispatch(ctx context.Context, kind models.Kind, collection string, payload map[string]any, actorID string) Outcome {
	if !kind.Valid() {
		return d.failed(kind, collection, fmt.Errorf("%w: %q", ErrInvalidKind, kind))
	}

	if d.monitor.State() == connectivity.Reachable || d.Degraded() {
		d.warnIfDegradedOffline()
		return d.applyDirect(ctx, kind, collection, payload)
	}
	return d.enqueue(ctx, kind, collection, payload, actorID)
}

func (d *Dispatcher) applyDirect(ctx context.Context, kind models.Kind, collection string, payload map[string]any) Outcome {
	var (
		result map[string]any
		err    error
	)
	switch kind {
	case models.KindCreate:
		result, err = d.remote.Insert(ctx, collection, payload)
	case models.KindUpdate:
		result, err = d.remote.Patch(ctx, collection, payload)
	case models.KindDelete:
		err = d.remote.Remove(ctx, collection, payload)
	}
	if err != nil {
		return d.failed(kind, collection, err)
	}

	d.notifier.Notify(Event{Kind: EventApplied, Message: "saved", Collection: collection})
	return Outcome{Kind: AppliedRemotely, Result: result}
}

func (d *Dispatcher) enqueue(ctx context.Context, kind models.Kind, collection string, payload map[string]any, actorID string) Outcome {
	id, err := d.queue.Enqueue(ctx, kind, collection, payload, actorID)
	if err != nil {
		return d.failed(kind, collection, err)
	}

	d.logger.Info("write queued while offline", "id", id, "kind", kind, "collection", collection)
	d.notifier.Notify(Event{
		Kind:       EventQueued,
		Message:    "you are offline; the change will sync when the connection returns",
		MutationID: id,
		Collection: collection,
	})
	return Outcome{Kind: Queued, MutationID: id}
}

func (d *Dispatcher) failed(kind models.Kind, collection string, err error) Outcome {
	d.logger.Error("dispatch failed", "kind", kind, "collection", collection, "error", err)
	d.notifier.Notify(Event{Kind: EventFailed, Message: "the change could not be saved", Collection: collection, Err: err})
	return Outcome{Kind: Failed, Err: err}
}

// warnIfDegradedOffline surfaces, once, that writes made while unreachable
// will be lost because the local store never opened.
func (d *Dispatcher) warnIfDegradedOffline() {
	if !d.Degraded() || d.monitor.State() == connectivity.Reachable {
		return
	}
	d.degradedWarning.Do(func() {
		d.logger.Warn("offline durability unavailable, attempting direct call while unreachable")
		d.notifier.Notify(Event{
			Kind:    EventDurabilityDisabled,
			Message: "offline storage is unavailable; changes made while offline cannot be kept",
		})
	})
}
