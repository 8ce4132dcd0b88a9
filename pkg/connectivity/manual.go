package connectivity

import "sync"

// Manual is a monitor whose state is driven entirely by the caller. It is
// the deterministic double used in tests to simulate going offline and back
// online, and it also fits hosts that already receive platform connectivity
// signals and just need to relay them.
type Manual struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int
}

var _ Monitor = (*Manual)(nil)

func NewManual(initial State) *Manual {
	return &Manual{state: initial, subs: make(map[int]func(State))}
}

func (m *Manual) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manual) OnChange(cb func(State)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.subs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Set transitions the monitor and notifies subscribers. Setting the current
// state again is a no-op.
func (m *Manual) Set(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	cbs := make([]func(State), 0, len(m.subs))
	for _, cb := range m.subs {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(s)
	}
}
