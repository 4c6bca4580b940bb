package window

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// TestUnreliableBaseline tests that packets behind the tick baseline are dropped
func TestUnreliableBaseline(t *testing.T) {
	w := NewUnreliable(serial.Max)

	// within one tick arrival order does not matter
	for _, s := range []serial.Number{4, 2, 7} {
		if err := w.Receive(s); err != nil {
			t.Fatalf("Receive(%d) failed: %v", s, err)
		}
	}
	if w.Current() != 7 {
		t.Errorf("expected current 7, got %d", w.Current())
	}

	w.Reset()

	if err := w.Receive(5); !errors.Is(err, ErrTooOld) {
		t.Errorf("expected ErrTooOld after reset, got %v", err)
	}
	if err := w.Receive(8); err != nil {
		t.Errorf("expected 8 to be accepted, got %v", err)
	}
}

// TestUnreliableDuplicateWithinTick tests that a packet is accepted at most once per tick
func TestUnreliableDuplicateWithinTick(t *testing.T) {
	w := NewUnreliable(serial.Max)
	if err := w.Receive(3); err != nil {
		t.Fatal(err)
	}
	if err := w.Receive(3); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if err := w.Receive(1); err != nil {
		t.Errorf("late but newer than baseline should pass, got %v", err)
	}
	if w.Current() != 3 {
		t.Errorf("a late packet must not move the current sequence back, got %d", w.Current())
	}
	w.Reset()
	if err := w.Receive(3); !errors.Is(err, ErrTooOld) {
		t.Errorf("expected ErrTooOld in the next tick, got %v", err)
	}
}
