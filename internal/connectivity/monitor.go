// Package connectivity tracks whether the backend is believed reachable.
// The state is advisory: callers still handle failures on every request.
package connectivity

import (
	"sort"
	"sync"
)

type Monitor struct {
	mu        sync.Mutex
	connected bool
	subs      map[int]func(bool)
	nextID    int
}

func NewMonitor(initial bool) *Monitor {
	return &Monitor{connected: initial, subs: map[int]func(bool){}}
}

func (m *Monitor) Current() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe registers onChange for transitions. The returned func removes it.
func (m *Monitor) Subscribe(onChange func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}

// Set updates the state and notifies subscribers only on a change.
func (m *Monitor) Set(connected bool) {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
