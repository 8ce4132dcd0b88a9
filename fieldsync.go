package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldsync/fieldsync.go/pkg/connectivity"
	"github.com/fieldsync/fieldsync.go/pkg/logger"
	slogadapter "github.com/fieldsync/fieldsync.go/pkg/logger/slog"
	"github.com/fieldsync/fieldsync.go/pkg/models"
	"github.com/fieldsync/fieldsync.go/pkg/remote"
	"github.com/fieldsync/fieldsync.go/pkg/store"
	"github.com/fieldsync/fieldsync.go/pkg/store/bolt"
)

// Config wires a Client. Remote and Monitor are required; everything else
// has a usable default.
type Config struct {
	// StorePath is the queue file location. Ignored when Store is set.
	StorePath string

	// Store overrides the bbolt store, e.g. with the in-memory one.
	Store store.Store

	Remote  remote.Client
	Monitor connectivity.Monitor

	// Logger defaults to JSON slog on stderr; Notifier defaults to no-op.
	Logger   logger.Logger
	Notifier Notifier

	// CallTimeout bounds each replay call; DrainInterval is the periodic
	// fallback drain; MaxAttempts is the per-mutation retry budget.
	CallTimeout   time.Duration
	DrainInterval time.Duration
	MaxAttempts   int
}

// Client bundles the queue, syncer, dispatcher and conflict detector behind
// one construction path. Hosts that need finer control can assemble the
// pieces directly.
type Client struct {
	queue      *Queue
	syncer     *Syncer
	dispatcher *Dispatcher
	detector   *Detector

	st     store.Store
	logger logger.Logger
}

// New builds a Client. When the durable store cannot be opened the client
// degrades instead of failing: writes work while reachable, offline writes
// fail loudly, and a durability warning is emitted.
func New(cfg Config) (*Client, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("config: Remote is required")
	}
	if cfg.Monitor == nil {
		return nil, fmt.Errorf("config: Monitor is required")
	}

	lg := cfg.Logger
	if lg == nil {
		lg = slogadapter.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}

	st := cfg.Store
	if st == nil && cfg.StorePath != "" {
		opened, err := bolt.Open(cfg.StorePath)
		switch {
		case err == nil:
			st = opened
		case errors.Is(err, store.ErrUnavailable):
			lg.Warn("durable store unavailable, offline durability disabled", "path", cfg.StorePath, "error", err)
			notifier.Notify(Event{
				Kind:    EventDurabilityDisabled,
				Message: "offline storage is unavailable; changes made while offline cannot be kept",
			})
		default:
			return nil, err
		}
	}

	c := &Client{
		st:       st,
		logger:   lg,
		detector: NewDetector(lg).WithNotifier(notifier),
	}

	var q *Queue
	if st != nil {
		q = NewQueue(st, lg)
		syncer := NewSyncer(q, cfg.Remote, cfg.Monitor, lg).WithNotifier(notifier)
		if cfg.CallTimeout > 0 {
			syncer.WithCallTimeout(cfg.CallTimeout)
		}
		if cfg.DrainInterval > 0 {
			syncer.WithDrainInterval(cfg.DrainInterval)
		}
		if cfg.MaxAttempts > 0 {
			syncer.WithMaxAttempts(cfg.MaxAttempts)
		}
		c.syncer = syncer
	}
	c.queue = q
	c.dispatcher = NewDispatcher(q, cfg.Remote, cfg.Monitor, lg).WithNotifier(notifier)

	return c, nil
}

// Dispatch performs one write through the offline-aware write path.
func (c *Client) Dispatch(ctx context.Context, kind models.Kind, collection string, payload map[string]any, actorID string) Outcome {
	return c.dispatcher.Dispatch(ctx, kind, collection, payload, actorID)
}

// Pending lists mutations waiting to sync, for "N changes pending"
// indicators. In degraded mode it is always empty.
func (c *Client) Pending(ctx context.Context) ([]*models.Mutation, error) {
	if c.queue == nil {
		return nil, nil
	}
	return c.queue.ListPending(ctx)
}

// Dead lists mutations needing manual resolution.
func (c *Client) Dead(ctx context.Context) ([]*models.Mutation, error) {
	if c.queue == nil {
		return nil, nil
	}
	return c.queue.ListDead(ctx)
}

// Drain runs one manual sync pass.
func (c *Client) Drain(ctx context.Context) (models.DrainSummary, error) {
	if c.syncer == nil {
		return models.DrainSummary{}, nil
	}
	return c.syncer.Drain(ctx)
}

// Run starts background syncing until ctx is done.
func (c *Client) Run(ctx context.Context) {
	if c.syncer == nil {
		<-ctx.Done()
		return
	}
	c.syncer.Run(ctx)
}

// Detector exposes conflict watching for the editing UI.
func (c *Client) Detector() *Detector {
	return c.detector
}

// Degraded reports whether the client runs without offline durability.
func (c *Client) Degraded() bool {
	return c.queue == nil
}

// Close releases the durable store.
func (c *Client) Close() error {
	if c.st == nil {
		return nil
	}
	return c.st.Close()
}
