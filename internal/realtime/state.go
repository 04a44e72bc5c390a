package realtime

import (
	"fmt"
	"slices"
	"sync"

	"github.com/inkpad-notes/chatcore/internal/bus"
)

// State is the lifecycle stage of one conversation subscription.
type State string

const (
	Unsubscribed State = "UNSUBSCRIBED"
	Subscribing  State = "SUBSCRIBING"
	Subscribed   State = "SUBSCRIBED"
	Failed       State = "ERROR"
	Closed       State = "CLOSED"
)

// validTransitions defines allowed state transitions. Failed and Closed are
// terminal: there is no auto-reconnect, a fresh subscription gets a fresh
// machine.
var validTransitions = map[State][]State{
	Unsubscribed: {Subscribing},
	Subscribing:  {Subscribed, Failed, Closed},
	Subscribed:   {Failed, Closed},
	Failed:       {},
	Closed:       {},
}

// Machine tracks and enforces the state of one subscription.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Unsubscribed state. State changes are
// published on b when it is non-nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Unsubscribed, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error when the
// transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid subscription transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    "subscription.state_changed",
			Payload: StateChange{From: from, To: to},
		})
	}
	return nil
}

// StateChange is the payload for subscription state events.
type StateChange struct {
	From State
	To   State
}
