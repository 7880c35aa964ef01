// Package connectivity tracks whether the remote service is believed reachable.
package connectivity

import (
	"sync"
)

// Listener is called with the new state after each transition.
type Listener func(online bool)

// Monitor holds the binary ONLINE/OFFLINE state and notifies listeners on
// transitions only. Listeners run synchronously on the goroutine that caused
// the transition, in registration order, one transition at a time.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	nextID   int
	handlers []listenerEntry

	// notifyMu serializes delivery so two racing Set calls cannot reorder
	// or interleave callbacks.
	notifyMu sync.Mutex
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewMonitor creates a Monitor in the given initial state.
func NewMonitor(initialOnline bool) *Monitor {
	return &Monitor{online: initialOnline}
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the platform's latest signal. It reports whether the state
// changed; listeners are only notified when it did.
func (m *Monitor) Set(online bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	handlers := make([]Listener, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.fn
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(online)
	}
	return true
}

// OnChange registers fn and returns a function that unregisters it.
// A listener must not call Set on the same Monitor.
func (m *Monitor) OnChange(fn Listener) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, h := range m.handlers {
				if h.id == id {
					m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
					return
				}
			}
		})
	}
}
