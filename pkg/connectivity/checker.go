package connectivity

import (
	"context"
	"sync"
	"time"
)

const defaultCheckInterval = 15 * time.Second

// Probe reports whether the backend answered a reachability check.
type Probe func(ctx context.Context) error

// Checker derives reachability from a probe run on a check interval, e.g.
// the remote client's Ping. External platform signals can be fed in through
// SetState; the next probe will correct an optimistic signal if it was wrong.
type Checker struct {
	probe        Probe
	interval     time.Duration
	probeTimeout time.Duration

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	next    int
	started bool

	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

var _ Monitor = (*Checker)(nil)

// NewChecker builds a checker around probe. The checker starts Unreachable
// and flips after the first probe; call Start to begin probing.
func NewChecker(probe Probe, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		probe:        probe,
		interval:     interval,
		probeTimeout: interval,
		state:        Unreachable,
		subs:         make(map[int]func(State)),
		closeCh:      make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start runs the probe loop until Stop is called. The first probe runs
// immediately so callers get an accurate verdict without waiting a full
// interval.
func (c *Checker) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.loop()
}

// Stop terminates the probe loop and waits for it to exit. Stopping a
// checker that was never started is a no-op.
func (c *Checker) Stop() {
	c.once.Do(func() { close(c.closeCh) })
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.doneCh
	}
}

func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Checker) OnChange(cb func(State)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = cb
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// SetState feeds an externally observed transition, such as a platform
// online/offline signal, without waiting for the next probe.
func (c *Checker) SetState(s State) {
	c.publish(s)
}

func (c *Checker) loop() {
	defer close(c.doneCh)

	c.check()
	for {
		select {
		case <-c.closeCh:
			return
		case <-time.After(c.interval):
			c.check()
		}
	}
}

func (c *Checker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), c.probeTimeout)
	defer cancel()

	if err := c.probe(ctx); err != nil {
		c.publish(Unreachable)
	} else {
		c.publish(Reachable)
	}
}

func (c *Checker) publish(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cbs := make([]func(State), 0, len(c.subs))
	for _, cb := range c.subs {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(s)
	}
}
