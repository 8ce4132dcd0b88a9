package fieldsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync.go/internal/fakeremote"
	"github.com/fieldsync/fieldsync.go/pkg/connectivity"
	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/remote"
)

func newTestDispatcher(t *testing.T, initial connectivity.State) (*Dispatcher, *Queue, *fakeremote.Client, *connectivity.Manual, *recordingNotifier) {
	t.Helper()
	q := testQueue(t)
	rc := fakeremote.New()
	mon := connectivity.NewManual(initial)
	notifier := &recordingNotifier{}
	d := NewDispatcher(q, rc, mon, nil).WithNotifier(notifier)
	return d, q, rc, mon, notifier
}

func TestDispatchOnlineAppliesDirectly(t *testing.T) {
	d, q, rc, _, notifier := newTestDispatcher(t, connectivity.Reachable)
	ctx := context.Background()

	outcome := d.Dispatch(ctx, models.KindCreate, "widgets", map[string]any{"id": "w1", "name": "A"}, "user-1")

	require.Equal(t, AppliedRemotely, outcome.Kind)
	assert.Equal(t, "w1", outcome.Result["id"])
	assert.Len(t, rc.Calls(), 1)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, []EventKind{EventApplied}, notifier.kinds())
}

func TestDispatchOfflineQueuesWithoutNetworkCall(t *testing.T) {
	d, q, rc, _, notifier := newTestDispatcher(t, connectivity.Unreachable)
	ctx := context.Background()

	outcome := d.Dispatch(ctx, models.KindUpdate, "widgets", map[string]any{"id": "w1", "name": "B"}, "user-1")

	require.Equal(t, Queued, outcome.Kind)
	assert.NotEmpty(t, outcome.MutationID)
	assert.Empty(t, rc.Calls())

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, outcome.MutationID, pending[0].ID)
	assert.Equal(t, "user-1", pending[0].ActorID)

	assert.Equal(t, []EventKind{EventQueued}, notifier.kinds())
}

func TestDispatchOnlineFailureDoesNotQueue(t *testing.T) {
	d, q, rc, _, notifier := newTestDispatcher(t, connectivity.Reachable)
	ctx := context.Background()

	rc.FailNext(1, &remote.StatusError{Code: 500})

	outcome := d.Dispatch(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")

	// A transient remote error while online must surface as a failure, not
	// be masked as "queued" and replayed much later with stale intent.
	require.Equal(t, Failed, outcome.Kind)
	require.Error(t, outcome.Err)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, []EventKind{EventFailed}, notifier.kinds())
}

func TestDispatchInvalidKindFails(t *testing.T) {
	d, _, rc, _, _ := newTestDispatcher(t, connectivity.Reachable)

	outcome := d.Dispatch(context.Background(), models.Kind("merge"), "widgets", nil, "")
	require.Equal(t, Failed, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrInvalidKind)
	assert.Empty(t, rc.Calls())
}

func TestDispatchDelete(t *testing.T) {
	d, _, rc, _, _ := newTestDispatcher(t, connectivity.Reachable)
	ctx := context.Background()

	_, err := rc.Insert(ctx, "widgets", map[string]any{"id": "w1"})
	require.NoError(t, err)

	outcome := d.Dispatch(ctx, models.KindDelete, "widgets", map[string]any{"id": "w1"}, "")
	require.Equal(t, AppliedRemotely, outcome.Kind)

	_, ok := rc.Document("widgets", "w1")
	assert.False(t, ok)
}

func TestDegradedDispatcherCallsDirectlyWhileOffline(t *testing.T) {
	rc := fakeremote.New()
	mon := connectivity.NewManual(connectivity.Unreachable)
	notifier := &recordingNotifier{}
	d := NewDispatcher(nil, rc, mon, nil).WithNotifier(notifier)
	ctx := context.Background()

	assert.True(t, d.Degraded())

	// Without a store there is nothing to queue into; the direct call is
	// the only option, and the caller gets the honest failure or success.
	outcome := d.Dispatch(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")
	require.Equal(t, AppliedRemotely, outcome.Kind)

	// The durability warning fires once, not on every write.
	d.Dispatch(ctx, models.KindCreate, "widgets", map[string]any{"name": "B"}, "")
	assert.Equal(t, 1, notifier.count(EventDurabilityDisabled))
}
