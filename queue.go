package fieldsync

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fieldsync/fieldsync.go/pkg/logger"
	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/store"
)

// ErrInvalidKind is returned by Enqueue for a kind other than create,
// update or delete.
var ErrInvalidKind = fmt.Errorf("invalid mutation kind")

// Queue is the ordered mutation queue over a durable store. It owns id and
// timestamp assignment so that ordering semantics live in one place instead
// of being duplicated in the syncer. No business logic lives here.
//
// Queue is safe to use concurrently with an in-progress drain; the store's
// transactional guarantees cover interleaved operations.
type Queue struct {
	store  store.Store
	logger logger.Logger

	// Injection points for tests. ULIDs sort by creation time, so ids
	// agree with EnqueuedAt ordering and break ties between equal stamps.
	now   func() time.Time
	newID func() string
}

func NewQueue(s store.Store, lg logger.Logger) *Queue {
	if lg == nil {
		lg = logger.Nop{}
	}
	return &Queue{
		store:  s,
		logger: lg,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
}

// Enqueue persists a mutation and returns its assigned id. The mutation is
// durable before Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, kind models.Kind, collection string, payload map[string]any, actorID string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if collection == "" {
		return "", fmt.Errorf("collection must not be empty")
	}

	m := &models.Mutation{
		ID:         q.newID(),
		EnqueuedAt: q.now(),
		Kind:       kind,
		Collection: collection,
		Payload:    payload,
		ActorID:    actorID,
	}
	if err := q.store.Put(ctx, m); err != nil {
		return "", fmt.Errorf("enqueue %s %s: %w", kind, collection, err)
	}

	q.logger.Debug("mutation queued", "id", m.ID, "kind", kind, "collection", collection)
	return m.ID, nil
}

// ListPending returns the live mutations awaiting replay, in enqueue order.
// Dead mutations are excluded; see ListDead.
func (q *Queue) ListPending(ctx context.Context) ([]*models.Mutation, error) {
	all, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]*models.Mutation, 0, len(all))
	for _, m := range all {
		if !m.Dead {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// ListDead returns mutations the syncer has given up on, for manual
// resolution.
func (q *Queue) ListDead(ctx context.Context) ([]*models.Mutation, error) {
	all, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var dead []*models.Mutation
	for _, m := range all {
		if m.Dead {
			dead = append(dead, m)
		}
	}
	return dead, nil
}

// Update persists replay bookkeeping for an already-queued mutation:
// attempt counts, backoff stamps, the dead marker. Identity and ordering
// fields must not change.
func (q *Queue) Update(ctx context.Context, m *models.Mutation) error {
	if err := q.store.Put(ctx, m); err != nil {
		return fmt.Errorf("update %s: %w", m.ID, err)
	}
	return nil
}

// Remove deletes one mutation, queued or dead.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.Delete(ctx, id)
}

// Clear drops every mutation, queued and dead. This is an administrative
// action; queued writes are lost.
func (q *Queue) Clear(ctx context.Context) error {
	q.logger.Warn("clearing mutation queue")
	return q.store.Clear(ctx)
}
