package window

import "github.com/ValentinKolb/dNet/lib/serial"

// Unreliable is the receiver window for unreliable sequences
type Unreliable struct {
	current     serial.Number
	atTickStart serial.Number
	seen        map[serial.Number]struct{} // accepted during the current tick
}

// NewUnreliable creates an unreliable window whose baseline is initial.
// Only sequences after initial are accepted.
func NewUnreliable(initial serial.Number) *Unreliable {
	return &Unreliable{
		current:     initial,
		atTickStart: initial,
		seen:        make(map[serial.Number]struct{}),
	}
}

// ShouldConsider reports whether seq is newer than the baseline of the current
// tick and was not already accepted within this tick
func (w *Unreliable) ShouldConsider(seq serial.Number) error {
	if !serial.Less(w.atTickStart, seq) {
		return ErrTooOld
	}
	if _, ok := w.seen[seq]; ok {
		return ErrDuplicate
	}
	return nil
}

// Receive accepts seq and advances the current sequence if seq is not older
func (w *Unreliable) Receive(seq serial.Number) error {
	if err := w.ShouldConsider(seq); err != nil {
		return err
	}
	w.seen[seq] = struct{}{}
	w.current = serial.Max2(w.current, seq)
	return nil
}

// Reset snapshots the current sequence as the baseline for the next tick
func (w *Unreliable) Reset() {
	w.atTickStart = w.current
	clear(w.seen)
}

// Current returns the newest sequence received
func (w *Unreliable) Current() serial.Number {
	return w.current
}

// Baseline returns the sequence snapshotted at the start of the tick
func (w *Unreliable) Baseline() serial.Number {
	return w.atTickStart
}
