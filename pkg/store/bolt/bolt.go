// Package bolt implements the durable mutation store on top of bbolt, an
// embedded transactional key-value database. Each Put, Delete and Clear runs
// in a single write transaction, so a crash mid-operation never leaves a
// partially written record, and List runs in one read transaction, so the
// returned snapshot is consistent.
//
// Layout: the mutations bucket holds CBOR-encoded records keyed by id; the
// by_enqueued bucket is the ordering index (big-endian enqueue nanos + id);
// the by_collection bucket is a lookup index used for inspection only.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bbolt "go.etcd.io/bbolt"

	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/store"
)

var (
	bucketMutations  = []byte("mutations")
	bucketByEnqueued = []byte("by_enqueued")
	bucketByColl     = []byte("by_collection")
)

// encMode preserves time.Time at nanosecond precision. The default encoding
// truncates to seconds, and orderKey is derived from EnqueuedAt: a re-put of
// a fetched record would then compute a different ordering key than the one
// written at enqueue, duplicating the index entry.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Store is a bbolt-backed mutation store. It holds an exclusive lock on the
// underlying file, so a second process opening the same path fails fast
// instead of racing drains against this one.
type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the store file at path. Any open failure, including
// a held file lock, is reported as store.ErrUnavailable.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMutations, bucketByEnqueued, bucketByColl} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, m *models.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encMode.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation %s: %w", m.ID, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMutations).Put([]byte(m.ID), raw); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByEnqueued).Put(orderKey(m), []byte(m.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketByColl).Put(collKey(m.Collection, m.ID), []byte(m.ID))
	})
}

func (s *Store) Get(ctx context.Context, id string) (*models.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m *models.Mutation
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketMutations).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		m = new(models.Mutation)
		return cbor.Unmarshal(raw, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List returns all stored mutations in enqueue order by walking the
// ordering index inside one read transaction.
func (s *Store) List(ctx context.Context) ([]*models.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*models.Mutation
	err := s.db.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket(bucketMutations)
		return tx.Bucket(bucketByEnqueued).ForEach(func(_, id []byte) error {
			raw := records.Get(id)
			if raw == nil {
				// Index entry without a record means a partially deleted
				// pair, which the single-transaction writes rule out.
				return fmt.Errorf("dangling index entry for %s", id)
			}
			m := new(models.Mutation)
			if err := cbor.Unmarshal(raw, m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListCollection returns the stored mutations targeting one collection, in
// enqueue order. This exists for inspection and debugging; the drain path
// never filters by collection.
func (s *Store) ListCollection(ctx context.Context, collection string) ([]*models.Mutation, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Mutation
	for _, m := range all {
		if m.Collection == collection {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(bucketMutations)
		raw := records.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		m := new(models.Mutation)
		if err := cbor.Unmarshal(raw, m); err != nil {
			return err
		}
		if err := records.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByEnqueued).Delete(orderKey(m)); err != nil {
			return err
		}
		return tx.Bucket(bucketByColl).Delete(collKey(m.Collection, m.ID))
	})
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMutations, bucketByEnqueued, bucketByColl} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// orderKey builds the ordering index key: 8 bytes of big-endian enqueue
// nanos followed by the id, so byte order equals (EnqueuedAt, ID) order.
func orderKey(m *models.Mutation) []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.EnqueuedAt.UnixNano()))
	return append(key, m.ID...)
}

func collKey(collection, id string) []byte {
	var b bytes.Buffer
	b.WriteString(collection)
	b.WriteByte(0)
	b.WriteString(id)
	return b.Bytes()
}
