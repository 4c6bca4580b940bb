package sequence

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/lib/window"
)

// TestTrackerCounters tests that every counter starts at 0 and advances independently
func TestTrackerCounters(t *testing.T) {
	tr := NewTracker(1024)

	for i := 0; i < 3; i++ {
		if got := tr.NextReliable(); got != serial.Number(i) {
			t.Errorf("NextReliable #%d: expected %d, got %d", i, i, got)
		}
	}
	if got := tr.NextUnreliable(); got != 0 {
		t.Errorf("NextUnreliable: expected 0, got %d", got)
	}
	if got := tr.NextAck(); got != 0 {
		t.Errorf("NextAck: expected 0, got %d", got)
	}
	if a, b := tr.NextMessageID(), tr.NextMessageID(); a != 0 || b != 1 {
		t.Errorf("NextMessageID: expected 0,1 got %d,%d", a, b)
	}
	if got := tr.NextFragmentID(); got != 0 {
		t.Errorf("NextFragmentID: expected 0, got %d", got)
	}
}

// TestTrackerReliableCounterWraps tests that the reliable counter wraps at 2^24
func TestTrackerReliableCounterWraps(t *testing.T) {
	tr := NewTracker(1024)
	tr.nextReliable = serial.Max

	if got := tr.NextReliable(); got != serial.Max {
		t.Errorf("expected %d, got %d", serial.Max, got)
	}
	if got := tr.NextReliable(); got != 0 {
		t.Errorf("expected wrap to 0, got %d", got)
	}
}

// TestTrackerUnreliablePredicates tests the unreliable predicate across tick resets
func TestTrackerUnreliablePredicates(t *testing.T) {
	tr := NewTracker(1024)

	if err := tr.ShouldConsiderUnreliable(0); err != nil {
		t.Fatalf("fresh tracker rejected 0: %v", err)
	}
	if err := tr.ReceiveUnreliable(5); err != nil {
		t.Fatalf("ReceiveUnreliable(5): %v", err)
	}
	// older sequences are still fine within the same tick
	if err := tr.ReceiveUnreliable(3); err != nil {
		t.Fatalf("ReceiveUnreliable(3): %v", err)
	}
	if err := tr.ReceiveUnreliable(3); !errors.Is(err, window.ErrDuplicate) {
		t.Errorf("expected duplicate, got %v", err)
	}

	tr.ResetTick()

	if err := tr.ShouldConsiderUnreliable(4); !errors.Is(err, window.ErrTooOld) {
		t.Errorf("expected too old after reset, got %v", err)
	}
	if err := tr.ShouldConsiderUnreliable(6); err != nil {
		t.Errorf("expected 6 to be considered, got %v", err)
	}
}

// TestTrackerStaleAcks tests that acks older than the last tick are rejected
func TestTrackerStaleAcks(t *testing.T) {
	tr := NewTracker(1024)

	if err := tr.ReceiveAck(2); err != nil {
		t.Fatalf("ReceiveAck(2): %v", err)
	}
	tr.ResetTick()
	if err := tr.ReceiveAck(1); !errors.Is(err, window.ErrTooOld) {
		t.Errorf("expected stale ack to be rejected, got %v", err)
	}
	if err := tr.ReceiveAck(3); err != nil {
		t.Errorf("ReceiveAck(3): %v", err)
	}
}

// TestTrackerReliablePredicate tests the reliable predicate against the window
func TestTrackerReliablePredicate(t *testing.T) {
	tr := NewTracker(16)

	if err := tr.ShouldConsiderReliable(0); err != nil {
		t.Errorf("expected 0 to be considered, got %v", err)
	}
	if err := tr.Reliable().Receive(0); err != nil {
		t.Fatal(err)
	}
	if err := tr.ShouldConsiderReliable(0); !errors.Is(err, window.ErrDuplicate) {
		t.Errorf("expected duplicate, got %v", err)
	}
	if err := tr.ShouldConsiderReliable(100); !errors.Is(err, window.ErrOutsideHorizon) {
		t.Errorf("expected outside horizon, got %v", err)
	}
}
