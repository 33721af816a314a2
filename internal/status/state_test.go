package status

import (
	"testing"

	"github.com/matheus3301/freightdesk/internal/bus"
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
		{Booting, Migrating},
		{Booting, Error},
		{Migrating, Connecting},
		{Connecting, Ready},
		{Connecting, Reconnecting},
		{Ready, Reconnecting},
		{Ready, Degraded},
		{Reconnecting, Connecting},
		{Degraded, Ready},
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
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}
	if m.Current() != Booting {
		t.Errorf("state = %s, want BOOTING (should not have changed)", m.Current())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespaceDaemon, 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Connecting)
	for len(ch) > 0 {
		<-ch
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("Transition(CONNECTING -> CONNECTING) error = %v", err)
	}
	if len(ch) != 0 {
		t.Errorf("same-state transition published %d events, want 0", len(ch))
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespaceDaemon, 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Migrating); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Migrating {
		t.Errorf("change = %v -> %v, want BOOTING -> MIGRATING", change.From, change.To)
	}
}

// TestFeedReconnectCycle walks the path a change feed takes when its
// connection drops: READY → RECONNECTING → CONNECTING → READY.
func TestFeedReconnectCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)

	for _, s := range []State{Reconnecting, Connecting, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestFirstConnectFailure covers a feed that never reaches READY on its
// first attempt.
func TestFirstConnectFailure(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connecting)

	for _, s := range []State{Reconnecting, Connecting, Reconnecting, Connecting, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func TestMigratingCannotSkipToReady(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Migrating)
	if err := m.Transition(Ready); err == nil {
		t.Fatal("Transition(MIGRATING -> READY) should fail; must go through CONNECTING first")
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		Migrating:    {Migrating},
		Connecting:   {Migrating, Connecting},
		Ready:        {Migrating, Connecting, Ready},
		Reconnecting: {Migrating, Connecting, Reconnecting},
		Degraded:     {Migrating, Connecting, Ready, Degraded},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
