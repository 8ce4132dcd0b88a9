package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/store"
	"github.com/fieldsync/fieldsync.go/pkg/store/bolt"
)

func openTestStore(t *testing.T) (*bolt.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := bolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func testMutation(id string, at time.Time, collection string) *models.Mutation {
	return &models.Mutation{
		ID:         id,
		EnqueuedAt: at,
		Kind:       models.KindCreate,
		Collection: collection,
		Payload:    map[string]any{"id": "r-" + id, "name": "x"},
	}
}

func TestOpenBadPath(t *testing.T) {
	_, err := bolt.Open(filepath.Join(t.TempDir(), "missing", "nested", "queue.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestPutGetDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	m := testMutation("a", time.Now(), "widgets")
	require.NoError(t, s.Put(ctx, m))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Collection, got.Collection)
	assert.Equal(t, "r-a", got.Payload["id"])
	// The enqueue stamp must survive the round trip exactly; the ordering
	// index key is derived from it.
	assert.Equal(t, m.EnqueuedAt.UnixNano(), got.EnqueuedAt.UnixNano())

	require.NoError(t, s.Delete(ctx, "a"))

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), store.ErrNotFound)
}

func TestListOrderedByEnqueuedAt(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	// Insert out of order on purpose.
	require.NoError(t, s.Put(ctx, testMutation("c", base.Add(2*time.Second), "widgets")))
	require.NoError(t, s.Put(ctx, testMutation("a", base, "widgets")))
	require.NoError(t, s.Put(ctx, testMutation("b", base.Add(time.Second), "donations")))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestListTieBrokenByID(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Now()

	require.NoError(t, s.Put(ctx, testMutation("b", at, "widgets")))
	require.NoError(t, s.Put(ctx, testMutation("a", at, "widgets")))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestUpdateInPlaceKeepsOrder(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Put(ctx, testMutation("a", base, "widgets")))
	require.NoError(t, s.Put(ctx, testMutation("b", base.Add(time.Second), "widgets")))

	// Re-put "a" with an incremented attempt count, as the syncer does.
	m, err := s.Get(ctx, "a")
	require.NoError(t, err)
	m.AttemptCount++
	m.LastError = "remote status 503"
	require.NoError(t, s.Put(ctx, m))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 1, list[0].AttemptCount)
	assert.Equal(t, "remote status 503", list[0].LastError)
}

func TestDeleteAfterReput(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Put(ctx, testMutation("a", base, "widgets")))
	require.NoError(t, s.Put(ctx, testMutation("b", base.Add(time.Second), "widgets")))

	// A fetched record that is re-put and then deleted must leave no trace
	// in the ordering index, or every later List fails.
	m, err := s.Get(ctx, "a")
	require.NoError(t, err)
	m.AttemptCount++
	require.NoError(t, s.Put(ctx, m))
	require.NoError(t, s.Delete(ctx, "a"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestListCollection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Put(ctx, testMutation("a", base, "widgets")))
	require.NoError(t, s.Put(ctx, testMutation("b", base.Add(time.Second), "donations")))
	require.NoError(t, s.Put(ctx, testMutation("c", base.Add(2*time.Second), "widgets")))

	widgets, err := s.ListCollection(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, widgets, 2)
	assert.Equal(t, "a", widgets[0].ID)
	assert.Equal(t, "c", widgets[1].ID)
}

func TestClear(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testMutation("a", time.Now(), "widgets")))
	require.NoError(t, s.Clear(ctx))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// The store stays usable after a clear.
	require.NoError(t, s.Put(ctx, testMutation("b", time.Now(), "widgets")))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	s, err := bolt.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), testMutation("a", time.Now(), "widgets")))
	require.NoError(t, s.Close())

	// Simulates a process restart: reopen the same file.
	s2, err := bolt.Open(path)
	require.NoError(t, err)
	defer s2.Close()

	list, err := s2.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}

func TestCancelledContext(t *testing.T) {
	s, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Put(ctx, testMutation("a", time.Now(), "widgets")))
	_, err := s.List(ctx)
	assert.Error(t, err)
}
