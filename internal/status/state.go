package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/pmsync/internal/bus"
)

// State is the lifecycle state of one push channel.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Live       State = "LIVE"
	Polling    State = "POLLING"
	Closed     State = "CLOSED"
)

// validTransitions defines allowed state transitions. Once a channel has
// fallen back to polling it stays there until closed.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Closed},
	Connecting: {Live, Polling, Closed},
	Live:       {Polling, Closed},
	Polling:    {Closed},
	Closed:     {Connecting},
}

// Machine tracks and enforces the state of a named push channel.
type Machine struct {
	mu      sync.RWMutex
	channel string
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Idle state. channel names the
// subscription ("conversation", "global") in emitted events.
func NewMachine(b *bus.Bus, channel string) *Machine {
	return &Machine{
		channel: channel,
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("%s channel: invalid transition from %s to %s", m.channel, m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindPushStatus, StatusChange{
		Channel: m.channel,
		From:    from,
		To:      to,
	})
	return nil
}

// StatusChange is the payload for push status events.
type StatusChange struct {
	Channel string `json:"channel"`
	From    State  `json:"from"`
	To      State  `json:"to"`
}
