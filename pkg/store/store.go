// Package store defines the durable mutation store contract: device-local,
// transactional persistence for pending mutations so they survive process
// restarts. Implementations live in the bolt and memory subpackages.
package store

import (
	"context"
	"errors"

	"github.com/fieldsync/fieldsync.go/pkg/models"
)

var (
	// ErrUnavailable is returned when the underlying device storage cannot
	// be opened (quota exhausted, permissions denied, unsupported). Callers
	// must treat this as "offline durability unavailable" and degrade to
	// direct remote calls rather than silently dropping writes.
	ErrUnavailable = errors.New("mutation store unavailable")

	// ErrNotFound is returned by Get and Delete for an unknown mutation id.
	ErrNotFound = errors.New("mutation not found")
)

// Store persists pending mutations. Put and Delete are atomic with respect
// to process crashes: a crash mid-call never leaves a partially written
// record. List returns a fully consistent snapshot ordered by EnqueuedAt,
// with ties broken by ID.
type Store interface {
	Put(ctx context.Context, m *models.Mutation) error
	Get(ctx context.Context, id string) (*models.Mutation, error)
	List(ctx context.Context) ([]*models.Mutation, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}
