package fieldsync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fieldsync/fieldsync.go/pkg/connectivity"
	"github.com/fieldsync/fieldsync.go/pkg/logger"
	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/remote"
)

const (
	defaultCallTimeout    = 15 * time.Second
	defaultDrainInterval  = 5 * time.Minute
	defaultMaxAttempts    = 8
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// Syncer replays pending mutations against the remote backend, strictly in
// enqueue order, one at a time. A drain halts on the first retryable
// failure so that a failed write is never reordered behind a later one, and
// marks dead any mutation the backend definitively rejected or that
// exhausted its attempt budget.
type Syncer struct {
	queue    *Queue
	remote   remote.Client
	monitor  connectivity.Monitor
	logger   logger.Logger
	notifier Notifier

	callTimeout    time.Duration
	drainInterval  time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// draining is the single-flight guard: checked-and-set before the
	// first suspension point of a drain, cleared when the drain finishes.
	draining atomic.Bool

	now func() time.Time
}

func NewSyncer(q *Queue, rc remote.Client, mon connectivity.Monitor, lg logger.Logger) *Syncer {
	if lg == nil {
		lg = logger.Nop{}
	}
	return &Syncer{
		queue:          q,
		remote:         rc,
		monitor:        mon,
		logger:         lg,
		notifier:       NopNotifier{},
		callTimeout:    defaultCallTimeout,
		drainInterval:  defaultDrainInterval,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		now:            time.Now,
	}
}

// WithNotifier sets the UI notifier for dead-mutation events.
func (s *Syncer) WithNotifier(n Notifier) *Syncer {
	s.notifier = n
	return s
}

// WithCallTimeout bounds each individual replay call.
func (s *Syncer) WithCallTimeout(d time.Duration) *Syncer {
	s.callTimeout = d
	return s
}

// WithDrainInterval sets the periodic fallback drain interval used by Run.
func (s *Syncer) WithDrainInterval(d time.Duration) *Syncer {
	s.drainInterval = d
	return s
}

// WithMaxAttempts bounds replay attempts per mutation; the mutation is
// marked dead when the budget is exhausted.
func (s *Syncer) WithMaxAttempts(n int) *Syncer {
	s.maxAttempts = n
	return s
}

// WithBackoff sets the initial and maximum retry delay.
func (s *Syncer) WithBackoff(initial, max time.Duration) *Syncer {
	s.initialBackoff = initial
	s.maxBackoff = max
	return s
}

// Drain runs one replay pass over the pending queue. If a drain is already
// in progress the call is a no-op and the returned summary has Skipped set.
//
// The pending list is read fresh at drain start, so mutations enqueued
// while a previous cycle was running are picked up here.
func (s *Syncer) Drain(ctx context.Context) (models.DrainSummary, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return models.DrainSummary{Skipped: true}, nil
	}
	defer s.draining.Store(false)

	var summary models.DrainSummary

	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return summary, fmt.Errorf("list pending: %w", err)
	}

	halted := false
	for _, m := range pending {
		if halted {
			break
		}

		// The head of the queue gates everything behind it: skipping it
		// would reorder the replay.
		if m.NextAttemptAt.After(s.now()) {
			summary.Deferred = true
			break
		}

		switch err := s.replay(ctx, m); {
		case err == nil:
			if delErr := s.queue.Remove(ctx, m.ID); delErr != nil {
				return summary, fmt.Errorf("remove applied mutation %s: %w", m.ID, delErr)
			}
			summary.Applied++

		case remote.IsTerminal(err):
			m.AttemptCount++
			s.markDead(ctx, m, err)
			summary.Dead++

		default:
			m.AttemptCount++
			m.LastError = err.Error()
			if m.AttemptCount >= s.maxAttempts {
				s.markDead(ctx, m, err)
				summary.Dead++
				continue
			}
			m.NextAttemptAt = s.now().Add(s.retryDelay(m.AttemptCount))
			if putErr := s.queue.Update(ctx, m); putErr != nil {
				return summary, fmt.Errorf("record failed attempt for %s: %w", m.ID, putErr)
			}
			s.logger.Info("replay failed, drain halted",
				"id", m.ID, "collection", m.Collection,
				"attempts", m.AttemptCount, "next_attempt_at", m.NextAttemptAt, "error", err)
			summary.Retried++
			halted = true
		}

		if err := ctx.Err(); err != nil {
			break
		}
	}

	remaining, err := s.queue.ListPending(ctx)
	if err != nil {
		return summary, fmt.Errorf("list remaining: %w", err)
	}
	summary.Remaining = len(remaining)

	s.logger.Info("drain finished",
		"applied", summary.Applied, "retried", summary.Retried,
		"dead", summary.Dead, "remaining", summary.Remaining, "deferred", summary.Deferred)
	return summary, nil
}

// Run drains whenever connectivity transitions to reachable and on a
// periodic fallback tick, until ctx is done. It is the background companion
// to explicit Drain calls, which remain safe to make concurrently thanks to
// the single-flight guard.
func (s *Syncer) Run(ctx context.Context) {
	kick := make(chan struct{}, 1)
	cancel := s.monitor.OnChange(func(state connectivity.State) {
		if state != connectivity.Reachable {
			return
		}
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer cancel()

	ticker := time.NewTicker(s.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
		case <-ticker.C:
			if s.monitor.State() != connectivity.Reachable {
				continue
			}
		}

		if _, err := s.Drain(ctx); err != nil {
			s.logger.Error("drain failed", "error", err)
		}
	}
}

// replay dispatches one mutation by kind, bounded by the per-call timeout.
func (s *Syncer) replay(ctx context.Context, m *models.Mutation) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	var err error
	switch m.Kind {
	case models.KindCreate:
		// The mutation id doubles as an idempotency key so a backend that
		// supports deduplication tolerates a duplicate replay after a
		// crash between remote success and local removal.
		_, err = s.remote.Insert(remote.WithIdempotencyKey(callCtx, m.ID), m.Collection, m.Payload)
	case models.KindUpdate:
		_, err = s.remote.Patch(callCtx, m.Collection, m.Payload)
	case models.KindDelete:
		err = s.remote.Remove(callCtx, m.Collection, m.Payload)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidKind, m.Kind)
	}
	return err
}

func (s *Syncer) markDead(ctx context.Context, m *models.Mutation, cause error) {
	m.Dead = true
	m.LastError = cause.Error()
	if err := s.queue.Update(ctx, m); err != nil {
		s.logger.Error("failed to mark mutation dead", "id", m.ID, "error", err)
		return
	}
	s.logger.Warn("mutation marked dead",
		"id", m.ID, "collection", m.Collection, "attempts", m.AttemptCount, "error", cause)
	s.notifier.Notify(Event{
		Kind:       EventMutationDead,
		Message:    "a queued change could not be synced and needs attention",
		MutationID: m.ID,
		Collection: m.Collection,
		Err:        cause,
	})
}

// retryDelay computes the backoff before the given attempt number, using
// exponential growth with jitter.
func (s *Syncer) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
