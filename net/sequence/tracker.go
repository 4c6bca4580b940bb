package sequence

import (
	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/lib/window"
)

// Tracker is the Sequence Number Tracker of one channel
type Tracker struct {
	nextReliable   serial.Number
	nextUnreliable serial.Number
	nextAck        serial.Number
	nextMessageID  uint32
	nextFragmentID uint32

	reliable   *window.Reliable
	unreliable *window.Unreliable
	acks       *window.Unreliable
}

// NewTracker creates a tracker for a fresh channel. Both peers start every
// counter at 0, so the receiver windows start just before 0.
func NewTracker(horizon uint32) *Tracker {
	return &Tracker{
		reliable:   window.NewReliable(serial.Max, horizon),
		unreliable: window.NewUnreliable(serial.Max),
		acks:       window.NewUnreliable(serial.Max),
	}
}

// --------------------------------------------------------------------------
// Send side counters
// --------------------------------------------------------------------------

// NextReliable returns the next reliable sequence and advances the counter
func (t *Tracker) NextReliable() serial.Number {
	s := t.nextReliable
	t.nextReliable = s.Next()
	return s
}

// NextUnreliable returns the next unreliable sequence and advances the counter
func (t *Tracker) NextUnreliable() serial.Number {
	s := t.nextUnreliable
	t.nextUnreliable = s.Next()
	return s
}

// NextAck returns the next ack sequence and advances the counter
func (t *Tracker) NextAck() serial.Number {
	s := t.nextAck
	t.nextAck = s.Next()
	return s
}

// NextMessageID returns the next message id and advances the counter
func (t *Tracker) NextMessageID() uint32 {
	id := t.nextMessageID
	t.nextMessageID++
	return id
}

// PeekMessageID returns the id NextMessageID will hand out without advancing
func (t *Tracker) PeekMessageID() uint32 {
	return t.nextMessageID
}

// NextFragmentID returns the next fragment id and advances the counter
func (t *Tracker) NextFragmentID() uint32 {
	id := t.nextFragmentID
	t.nextFragmentID++
	return id
}

// --------------------------------------------------------------------------
// Receive side
// --------------------------------------------------------------------------

// Reliable returns the reliable receiver window
func (t *Tracker) Reliable() *window.Reliable {
	return t.reliable
}

// Unreliable returns the unreliable receiver window
func (t *Tracker) Unreliable() *window.Unreliable {
	return t.unreliable
}

// ShouldConsiderReliable reports whether a reliable sequence is new and inside the horizon
func (t *Tracker) ShouldConsiderReliable(seq serial.Number) error {
	return t.reliable.Check(seq)
}

// ShouldConsiderUnreliable reports whether an unreliable sequence is newer than the tick baseline
func (t *Tracker) ShouldConsiderUnreliable(seq serial.Number) error {
	return t.unreliable.ShouldConsider(seq)
}

// ReceiveUnreliable records an unreliable sequence
func (t *Tracker) ReceiveUnreliable(seq serial.Number) error {
	return t.unreliable.Receive(seq)
}

// ReceiveAck records the sequence of an incoming ack. Stale acks are rejected.
func (t *Tracker) ReceiveAck(seq serial.Number) error {
	return t.acks.Receive(seq)
}

// ResetTick snapshots the unreliable baselines at the end of a tick
func (t *Tracker) ResetTick() {
	t.unreliable.Reset()
	t.acks.Reset()
}
