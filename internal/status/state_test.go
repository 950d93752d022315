package status

import (
	"testing"

	"github.com/matheus3301/pmsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil, "conversation")
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Connecting},
		{Idle, Closed},
		{Connecting, Live},
		{Connecting, Polling},
		{Live, Polling},
		{Live, Closed},
		{Polling, Closed},
		{Closed, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil, "conversation")
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil, "global")
	if err := m.Transition(Live); err == nil {
		t.Error("Transition(IDLE -> LIVE) should fail")
	}
	if m.Current() != Idle {
		t.Errorf("state = %s, want IDLE (should not have changed)", m.Current())
	}
}

// TestPollingDoesNotReconnect verifies that a channel which fell back to
// polling keeps polling until it is closed and reopened.
func TestPollingDoesNotReconnect(t *testing.T) {
	m := NewMachine(nil, "conversation")
	walkTo(t, m, Polling)

	if err := m.Transition(Connecting); err == nil {
		t.Fatal("Transition(POLLING -> CONNECTING) should fail")
	}
	if err := m.Transition(Closed); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("CLOSED -> CONNECTING: %v", err)
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, sub := b.Subscribe("push.", 10)
	defer sub.Close()

	m := NewMachine(b, "global")
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindPushStatus {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindPushStatus)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.Channel != "global" || change.From != Idle || change.To != Connecting {
		t.Errorf("change = %+v, want global IDLE -> CONNECTING", change)
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:       {},
		Connecting: {Connecting},
		Live:       {Connecting, Live},
		Polling:    {Connecting, Polling},
		Closed:     {Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
