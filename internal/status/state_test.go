package status

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Probing},
		{Booting, Error},
		{Probing, Ready},
		{Probing, Degraded},
		{Ready, Probing},
		{Degraded, Probing},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
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
	m := NewMachine(nil)
	err := m.Transition(Ready)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("Transition(BOOTING -> READY) error = %v, want *TransitionError", err)
	}
	if te.From != Booting || te.To != Ready {
		t.Errorf("TransitionError = %s -> %s", te.From, te.To)
	}
	walkTo(t, m, Degraded)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(DEGRADED -> READY) should fail; a refresh must probe first")
	}
	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED (should not have changed)", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(10, Channel)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Probing); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if len(evt.Labels) != 1 || evt.Labels[0] != ChangedLabel {
		t.Errorf("event labels = %v, want [daemon.status_changed]", evt.Labels)
	}
	var change StatusChange
	if err := json.Unmarshal(evt.Payload, &change); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if change.From != Booting || change.To != Probing {
		t.Errorf("change = %v -> %v, want BOOTING -> PROBING", change.From, change.To)
	}
}

// TestRefreshCycle simulates a degraded daemon whose permissions are fixed
// and then re-probed: DEGRADED → PROBING → READY
func TestRefreshCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Probing)
	if err := m.Settle(false); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Degraded {
		t.Fatalf("state = %s, want DEGRADED", m.Current())
	}

	if err := m.Transition(Probing); err != nil {
		t.Fatal(err)
	}
	if err := m.Settle(true); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

func TestSinceAdvances(t *testing.T) {
	m := NewMachine(nil)
	booted := m.Since()
	time.Sleep(time.Millisecond)
	if err := m.Transition(Probing); err != nil {
		t.Fatal(err)
	}
	if !m.Since().After(booted) {
		t.Errorf("Since() = %v, want after %v", m.Since(), booted)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:  {},
		Probing:  {Probing},
		Ready:    {Probing, Ready},
		Degraded: {Probing, Degraded},
		Error:    {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
