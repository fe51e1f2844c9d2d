package socket

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tocata/tocata/internal/bus"
)

// State represents a connection lifecycle state.
type State string

const (
	Disconnected   State = "disconnected"
	Connecting     State = "connecting"
	Connected      State = "connected"
	Authenticating State = "authenticating"
	Ready          State = "ready"
	Error          State = "error"
)

// validTransitions defines allowed state transitions. Connecting covers the
// backoff wait between attempts; Ready falls back to Connecting when the
// transport drops. Explicit disconnect wins from any state.
var validTransitions = map[State][]State{
	Disconnected:   {Connecting},
	Connecting:     {Connected, Error, Disconnected},
	Connected:      {Authenticating, Error, Disconnected},
	Authenticating: {Ready, Error, Disconnected},
	Ready:          {Connecting, Error, Disconnected},
	Error:          {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Moving to the current state is
// a no-op; an invalid transition returns an error.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid connection transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "conn.state_changed",
			Timestamp: time.Now(),
			Payload: StateChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StateChange is the payload for conn.state_changed events.
type StateChange struct {
	From State
	To   State
}
