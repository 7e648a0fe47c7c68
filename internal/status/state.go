// Package status tracks the daemon lifecycle: booting, probing the backend,
// and serving with full or partial access.
package status

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/bus"
)

const (
	// Channel is the bus channel status changes are published on.
	Channel = "daemon"
	// ChangedLabel labels every status change event.
	ChangedLabel = "daemon.status_changed"
)

// State is a daemon runtime state.
type State string

const (
	Booting  State = "BOOTING"
	Probing  State = "PROBING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// next lists the states reachable from each state. Leaving READY or
// DEGRADED always goes through a new probe.
var next = map[State][]State{
	Booting:  {Probing, Error},
	Probing:  {Ready, Degraded, Error},
	Ready:    {Probing, Error},
	Degraded: {Probing, Error},
	Error:    {Booting},
}

// TransitionError reports a move the machine does not allow.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// StatusChange is the payload of a status change event.
type StatusChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Machine holds the current state and publishes every change.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine returns a machine in Booting. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, since: time.Now(), bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to state to, or fails with *TransitionError.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(next[from], to) {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.current, m.since = to, time.Now()
	m.mu.Unlock()

	m.publish(StatusChange{From: from, To: to})
	return nil
}

// Settle ends a probe: Ready when every backend resource is reachable,
// Degraded otherwise.
func (m *Machine) Settle(allAccessible bool) error {
	if allAccessible {
		return m.Transition(Ready)
	}
	return m.Transition(Degraded)
}

func (m *Machine) publish(change StatusChange) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return
	}
	m.bus.Publish(bus.Event{
		Channels:  []string{Channel},
		Labels:    []string{ChangedLabel},
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
