package handshake

import "testing"

// TestTransitions tests the transition table against every state pair
func TestTransitions(t *testing.T) {
	legal := map[[2]State]bool{
		{StateInitial, StateWaitingForHello}:      true,
		{StateWaitingForHello, StateConnected}:    true,
		{StateWaitingForHello, StateDisconnected}: true,
		{StateConnected, StateDisconnected}:       true,
	}
	states := []State{StateInitial, StateWaitingForHello, StateConnected, StateDisconnected}

	for _, from := range states {
		for _, to := range states {
			want := legal[[2]State{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: expected %t, got %t", from, to, want, got)
			}
		}
	}
}

// TestIllegalTransitionPanics tests that the machine refuses to skip states
func TestIllegalTransitionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for INITIAL -> CONNECTED")
		}
	}()
	f := &fsm{}
	f.transition(StateConnected)
}

// TestDisconnectedIsTerminal tests that nothing leaves DISCONNECTED
func TestDisconnectedIsTerminal(t *testing.T) {
	f := &fsm{}
	f.transition(StateWaitingForHello)
	f.transition(StateDisconnected)

	defer func() {
		if recover() == nil {
			t.Error("expected a panic when leaving DISCONNECTED")
		}
	}()
	f.transition(StateWaitingForHello)
}

// TestStateString tests the state names
func TestStateString(t *testing.T) {
	if StateWaitingForHello.String() != "WAITING_FOR_HELLO" {
		t.Errorf("unexpected name %s", StateWaitingForHello)
	}
	if State(99).String() != "UNKNOWN" {
		t.Errorf("unexpected name for invalid state %s", State(99))
	}
}
