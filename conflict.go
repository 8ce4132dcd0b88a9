package fieldsync

import (
	"context"
	"sync"

	"github.com/fieldsync/fieldsync.go/pkg/logger"
	"github.com/fieldsync/fieldsync.go/pkg/models"
)

// Watch tracks one record open for editing. It captures the version marker
// the editor last saw and compares it against versions observed on the live
// feed. The transition is one-way: once a conflict is flagged it stays
// flagged until the editor reloads or abandons the edit and the watch is
// discarded. Resolution is the user's explicit choice; nothing is merged
// automatically.
type Watch struct {
	mu sync.Mutex

	collection string
	recordID   string
	lastSeen   models.Version
	editing    bool
	conflicted bool

	onConflict func(collection, recordID string, lastSeen, observed models.Version)
}

// Observe feeds one observed version for the watched record. A version
// newer than the last seen one while editing flags a conflict and fires the
// callback exactly once. Versions at or below the last seen marker are
// ignored; newer versions observed while not editing only advance the
// marker.
func (w *Watch) Observe(v models.Version) {
	w.mu.Lock()

	if w.conflicted || !v.After(w.lastSeen) {
		w.mu.Unlock()
		return
	}

	if !w.editing {
		w.lastSeen = v
		w.mu.Unlock()
		return
	}

	w.conflicted = true
	lastSeen := w.lastSeen
	cb := w.onConflict
	w.mu.Unlock()

	if cb != nil {
		cb(w.collection, w.recordID, lastSeen, v)
	}
}

// SetEditing toggles whether local edits are in progress, e.g. paused while
// a save is in flight.
func (w *Watch) SetEditing(editing bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.editing = editing
}

// Conflicted reports whether a concurrent remote change was detected.
func (w *Watch) Conflicted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conflicted
}

// Detector manages watches for all records currently open for editing and
// routes live record updates to them.
type Detector struct {
	mu      sync.Mutex
	watches map[string]*Watch

	notifier Notifier
	logger   logger.Logger
}

func NewDetector(lg logger.Logger) *Detector {
	if lg == nil {
		lg = logger.Nop{}
	}
	return &Detector{
		watches:  make(map[string]*Watch),
		notifier: NopNotifier{},
		logger:   lg,
	}
}

// WithNotifier sets the UI notifier for conflict events.
func (d *Detector) WithNotifier(n Notifier) *Detector {
	d.notifier = n
	return d
}

// Begin starts watching a record when editing starts. lastSeen is the
// version marker of the record as currently displayed. Beginning a watch
// for an already-watched record replaces the previous watch.
func (d *Detector) Begin(collection, recordID string, lastSeen models.Version) *Watch {
	w := &Watch{
		collection: collection,
		recordID:   recordID,
		lastSeen:   lastSeen,
		editing:    true,
		onConflict: d.conflictDetected,
	}

	d.mu.Lock()
	d.watches[watchKey(collection, recordID)] = w
	d.mu.Unlock()

	d.logger.Debug("watching record for conflicts", "collection", collection, "record_id", recordID, "last_seen", lastSeen)
	return w
}

// End discards the watch when editing finishes: save, cancel or navigate
// away.
func (d *Detector) End(collection, recordID string) {
	d.mu.Lock()
	delete(d.watches, watchKey(collection, recordID))
	d.mu.Unlock()
}

// Observe routes one live update to the matching watch, if any.
func (d *Detector) Observe(u models.RecordUpdate) {
	d.mu.Lock()
	w := d.watches[watchKey(u.Collection, u.RecordID)]
	d.mu.Unlock()

	if w != nil {
		w.Observe(u.Version)
	}
}

// Run consumes updates until the channel closes or ctx is done. It is
// typically fed from a live.Feed.
func (d *Detector) Run(ctx context.Context, updates <-chan models.RecordUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			d.Observe(u)
		}
	}
}

func (d *Detector) conflictDetected(collection, recordID string, lastSeen, observed models.Version) {
	d.logger.Warn("concurrent edit detected",
		"collection", collection, "record_id", recordID,
		"last_seen", lastSeen, "observed", observed)
	d.notifier.Notify(Event{
		Kind:       EventConflict,
		Message:    "this record was changed by someone else while you were editing",
		Collection: collection,
		RecordID:   recordID,
	})
}

func watchKey(collection, recordID string) string {
	return collection + "\x00" + recordID
}
