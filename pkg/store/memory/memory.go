// Package memory implements the mutation store contract in process memory.
// It backs tests and callers who want queueing semantics without durability;
// nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/store"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]*models.Mutation
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[string]*models.Mutation)}
}

func (s *Store) Put(ctx context.Context, m *models.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ID] = clone(m)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return clone(m), nil
}

func (s *Store) List(ctx context.Context) ([]*models.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Mutation, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, clone(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.Mutation)
	return nil
}

func (s *Store) Close() error { return nil }

// clone isolates stored records from caller aliasing, matching the durable
// store's encode-on-write behavior: mutating a payload after Put, or a
// record returned by Get or List, must not alter the stored copy.
func clone(m *models.Mutation) *models.Mutation {
	cp := *m
	cp.Payload = clonePayload(m.Payload)
	return &cp
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
