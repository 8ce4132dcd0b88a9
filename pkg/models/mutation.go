package models

import (
	"fmt"
	"time"
)

// Kind identifies the remote operation a queued mutation replays.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Valid reports whether k is one of the three supported mutation kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Mutation is a record of a write the caller wants applied to the remote
// backend. The payload is opaque to the queue: it is persisted and replayed
// verbatim, never inspected or validated.
//
// EnqueuedAt is the sole ordering key. Mutations are replayed in ascending
// EnqueuedAt order, across collections, because later writes may depend on
// earlier ones against the same logical record.
type Mutation struct {
	// ID is a ULID assigned at enqueue time. ULIDs sort by creation time,
	// so ID is also a stable tiebreaker for equal EnqueuedAt stamps.
	ID string `cbor:"id" json:"id"`

	// EnqueuedAt is the device-clock time the mutation was queued.
	EnqueuedAt time.Time `cbor:"enqueued_at" json:"enqueuedAt"`

	Kind       Kind           `cbor:"kind" json:"kind"`
	Collection string         `cbor:"collection" json:"collection"`
	Payload    map[string]any `cbor:"payload" json:"payload"`

	// ActorID optionally identifies the user who issued the write.
	// It is carried for audit and attribution only.
	ActorID string `cbor:"actor_id,omitempty" json:"actorId,omitempty"`

	// AttemptCount is the number of replay attempts made so far.
	// It only ever increases.
	AttemptCount int `cbor:"attempt_count" json:"attemptCount"`

	// NextAttemptAt gates the next replay attempt after a retryable
	// failure. The zero value means the mutation may be replayed now.
	NextAttemptAt time.Time `cbor:"next_attempt_at,omitempty" json:"nextAttemptAt,omitempty"`

	// Dead marks a mutation the syncer has given up on, either because the
	// remote rejected it outright or because it exhausted its attempt
	// budget. Dead mutations stay in the store for manual resolution but
	// are excluded from replay.
	Dead bool `cbor:"dead,omitempty" json:"dead,omitempty"`

	// LastError holds the text of the most recent replay failure.
	LastError string `cbor:"last_error,omitempty" json:"lastError,omitempty"`
}

func (m *Mutation) String() string {
	return fmt.Sprintf("%s %s/%s attempts=%d", m.Kind, m.Collection, m.ID, m.AttemptCount)
}

// RecordID returns the id embedded in the payload, if any. Update and
// delete mutations address their target record this way.
func (m *Mutation) RecordID() (string, bool) {
	v, ok := m.Payload["id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
