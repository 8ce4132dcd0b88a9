package fieldsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync.go/internal/fakeremote"
	"github.com/fieldsync/fieldsync.go/pkg/connectivity"
	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/remote"
)

func newTestSyncer(t *testing.T) (*Syncer, *Queue, *fakeremote.Client, *connectivity.Manual) {
	t.Helper()
	q := testQueue(t)
	rc := fakeremote.New()
	mon := connectivity.NewManual(connectivity.Reachable)
	s := NewSyncer(q, rc, mon, nil)
	return s, q, rc, mon
}

func TestDrainAppliesInEnqueueOrder(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	ctx := context.Background()

	// Enqueued while offline: create a widget, then rename it. The update
	// presupposes the create, so order matters.
	_, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"id": "w1", "name": "A"}, "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.KindUpdate, "widgets", map[string]any{"id": "w1", "name": "B"}, "")
	require.NoError(t, err)

	summary, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Applied)
	assert.Equal(t, 0, summary.Remaining)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	calls := rc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "insert", calls[0].Op)
	assert.Equal(t, "patch", calls[1].Op)

	doc, ok := rc.Document("widgets", "w1")
	require.True(t, ok)
	assert.Equal(t, "B", doc["name"])
}

func TestDrainPreservesOrderAcrossCollections(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.KindCreate, "beneficiaries", map[string]any{"id": "b1"}, "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.KindCreate, "donations", map[string]any{"id": "d1", "beneficiary": "b1"}, "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.KindUpdate, "beneficiaries", map[string]any{"id": "b1", "active": true}, "")
	require.NoError(t, err)

	_, err = s.Drain(ctx)
	require.NoError(t, err)

	calls := rc.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "beneficiaries", calls[0].Collection)
	assert.Equal(t, "donations", calls[1].Collection)
	assert.Equal(t, "beneficiaries", calls[2].Collection)
}

func TestDrainSendsIdempotencyKeyOnCreate(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")
	require.NoError(t, err)

	_, err = s.Drain(ctx)
	require.NoError(t, err)

	calls := rc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, id, calls[0].IdempotencyKey)
}

func TestRetryableFailureHaltsDrain(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, models.KindUpdate, "widgets", map[string]any{"id": "w1", "name": "B"}, "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.KindUpdate, "widgets", map[string]any{"id": "w1", "name": "C"}, "")
	require.NoError(t, err)

	rc.FailNext(1, context.DeadlineExceeded)

	summary, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Applied)
	assert.Equal(t, 1, summary.Retried)
	assert.Equal(t, 2, summary.Remaining)

	// The later update to the same record must not have been attempted.
	assert.Len(t, rc.Calls(), 1)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	assert.NotEmpty(t, pending[0].LastError)
	assert.False(t, pending[0].NextAttemptAt.IsZero())
}

func TestBackoffDefersDrain(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")
	require.NoError(t, err)

	// Simulate an earlier failed cycle: the head entry is backing off.
	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	m := pending[0]
	m.AttemptCount = 1
	m.NextAttemptAt = time.Now().Add(time.Hour)
	require.NoError(t, q.Update(ctx, m))

	summary, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Deferred)
	assert.Equal(t, 0, summary.Applied)
	assert.Equal(t, 1, summary.Remaining)
	assert.Empty(t, rc.Calls())
}

func TestTerminalFailureMarksDeadAndContinues(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	notifier := &recordingNotifier{}
	s.WithNotifier(notifier)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": ""}, "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": "B"}, "")
	require.NoError(t, err)

	rc.FailNext(1, &remote.StatusError{Code: 422, Body: "name required"})

	summary, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dead)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, 0, summary.Remaining)

	// Both were attempted: the rejection does not block the queue.
	assert.Len(t, rc.Calls(), 2)

	dead, err := q.ListDead(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id1, dead[0].ID)
	assert.Contains(t, dead[0].LastError, "name required")

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, 1, notifier.count(EventMutationDead))
}

func TestExhaustedAttemptBudgetMarksDead(t *testing.T) {
	s, q, rc, _ := newTestSyncer(t)
	s.WithMaxAttempts(1)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")
	require.NoError(t, err)

	rc.FailNext(1, context.DeadlineExceeded)

	summary, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dead)
	assert.Equal(t, 0, summary.Retried)

	dead, err := q.ListDead(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 1, dead[0].AttemptCount)
}

// blockingRemote parks the first Insert until released, to hold a drain
// open while a competing drain is triggered.
type blockingRemote struct {
	*fakeremote.Client
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRemote) Insert(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Client.Insert(ctx, collection, payload)
}

func TestDrainIsSingleFlight(t *testing.T) {
	q := testQueue(t)
	rc := &blockingRemote{Client: fakeremote.New(), entered: make(chan struct{}), release: make(chan struct{})}
	mon := connectivity.NewManual(connectivity.Reachable)
	s := NewSyncer(q, rc, mon, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")
	require.NoError(t, err)

	firstDone := make(chan models.DrainSummary, 1)
	go func() {
		summary, _ := s.Drain(ctx)
		firstDone <- summary
	}()

	<-rc.entered

	// The first drain is parked inside a replay; a second trigger must be
	// a no-op, not a second replay pass.
	second, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(rc.release)
	first := <-firstDone
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Applied)
}

func TestRunDrainsOnReconnect(t *testing.T) {
	s, q, rc, mon := newTestSyncer(t)
	// Short fallback tick so the test does not depend on Run having
	// subscribed before the transition below.
	s.WithDrainInterval(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon.Set(connectivity.Unreachable)
	_, err := q.Enqueue(ctx, models.KindCreate, "widgets", map[string]any{"name": "A"}, "")
	require.NoError(t, err)

	go s.Run(ctx)

	// Going back online must trigger a drain without any manual call.
	mon.Set(connectivity.Reachable)

	require.Eventually(t, func() bool {
		pending, err := q.ListPending(context.Background())
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, rc.Calls(), 1)
}

func TestRetryDelayGrows(t *testing.T) {
	s, _, _, _ := newTestSyncer(t)
	s.WithBackoff(time.Second, time.Minute)

	d1 := s.retryDelay(1)
	d5 := s.retryDelay(5)
	assert.Greater(t, d5, d1)
	assert.LessOrEqual(t, d5, 2*time.Minute)
}
