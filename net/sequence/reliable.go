package sequence

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dNet/lib/fragment"
	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/lib/window"
	"github.com/ValentinKolb/dNet/net/common"
)

var (
	// ErrDuplicate is RECEIVER_DUPLICATE: the sequence was already received
	ErrDuplicate = window.ErrDuplicate
	// ErrTooOld is RECEIVER_TOO_OLD: the sequence is at or behind the low-water mark
	ErrTooOld = window.ErrTooOld
	// ErrFragmentProblem is RECEIVER_FRAGMENT_PROBLEM: the fragment tracker rejected a piece.
	// The wrapped *fragment.Error carries the detail.
	ErrFragmentProblem = errors.New("fragment problem")
	// ErrNotReliable is returned for packets that do not occupy a reliable sequence
	ErrNotReliable = errors.New("packet is not reliable")
)

// DeliverFunc receives every message in sequence order
type DeliverFunc func(seq serial.Number, m common.Message)

// retiredFragment counts the pieces of a retired fragment that Poll still has
// to walk over. No piece can follow last.
type retiredFragment struct {
	left int
	last serial.Number
}

type entry struct {
	packet     *common.Packet // DataReliable
	fragmented bool
	fragmentID fragment.ID
}

// ReliableTracker is the Reliable Sequence Tracker of one channel
type ReliableTracker struct {
	connectionID uint32
	channel      uint8

	window    *window.Reliable
	fragments *fragment.Tracker
	sink      common.EventSink

	stored    map[serial.Number]entry
	delivered serial.Number // last sequence handed out or skipped

	// fragments that no longer need an assembly
	retired map[fragment.ID]retiredFragment

	// set by every reliable packet, also rejected ones, so the peer learns what arrived
	ackDue bool
}

// NewReliableTracker creates a tracker on top of a reliable window. The window
// must be fresh: its low-water mark becomes the delivery pointer.
func NewReliableTracker(connectionID uint32, channel uint8, w *window.Reliable, f *fragment.Tracker, sink common.EventSink) *ReliableTracker {
	return &ReliableTracker{
		connectionID: connectionID,
		channel:      channel,
		window:       w,
		fragments:    f,
		sink:         sink,
		stored:       make(map[serial.Number]entry),
		delivered:    w.LowWaterMark(),
		retired:      make(map[fragment.ID]retiredFragment),
	}
}

func (t *ReliableTracker) event(kind common.EventKind, p *common.Packet) common.Event {
	e := common.Event{
		Kind:         kind,
		ConnectionID: t.connectionID,
		Channel:      t.channel,
		Reliability:  common.Reliable,
	}
	if p != nil {
		e.Class = p.Type
		e.Sequence = p.Sequence
		e.FragmentID = p.FragmentID
	}
	return e
}

// --------------------------------------------------------------------------
// Receive
// --------------------------------------------------------------------------

// Receive validates a reliable packet against the window and stores it for
// delivery. A rejected packet is reported as an event and the error is
// returned, the sequence is left unmarked unless the rejection is final.
func (t *ReliableTracker) Receive(p *common.Packet) error {
	if !p.IsReliable() {
		return fmt.Errorf("%w: %s", ErrNotReliable, p.Type)
	}

	t.ackDue = true
	if err := t.window.Check(p.Sequence); err != nil {
		e := t.event(common.EvtDropped, p)
		switch {
		case errors.Is(err, window.ErrDuplicate):
			e.Kind = common.EvtDuplicate
		case errors.Is(err, window.ErrTooOld):
			e.Kind = common.EvtTooOld
		default:
			e.Reason = err.Error()
		}
		e.Err = err
		t.sink.Emit(e)
		return err
	}

	switch p.Type {
	case common.PktTDataReliable:
		t.accept(p, entry{packet: p})
		return nil
	case common.PktTFragmentInitial:
		return t.receiveInitial(p)
	default:
		return t.receiveSegment(p)
	}
}

// accept marks the sequence as received and stores the entry
func (t *ReliableTracker) accept(p *common.Packet, e entry) {
	// Check passed, so Receive cannot fail
	_ = t.window.Receive(p.Sequence)
	t.stored[p.Sequence] = e
	t.sink.Emit(t.event(common.EvtArrived, p))
}

func (t *ReliableTracker) receiveInitial(p *common.Packet) error {
	id := fragment.ID(p.FragmentID)
	a, err := t.fragments.ReceiveInitial(p.Sequence, id, int(p.FragmentCount), p.MessageID, p.MessageType, int(p.TotalSize), p.Chunk)
	if err != nil {
		switch fragment.CodeOf(err) {
		case fragment.CodeSizeMismatch, fragment.CodeInvalidSegment:
			// the message can never be assembled: take its sequences out of the way.
			// A valid sender never uses more than maxCount sequences for one fragment.
			pieces := min(max(int(p.FragmentCount), 1), t.fragments.MaxCount())
			t.retire(p, id, p.Sequence, pieces, err)
			return t.problem(p, err)
		default:
			return t.problem(p, err)
		}
	}

	t.accept(p, entry{fragmented: true, fragmentID: id})
	t.sink.Emit(t.event(common.EvtFragmentStarted, p))
	if a.Completed() {
		t.sink.Emit(t.event(common.EvtFragmentReady, p))
	}
	return nil
}

func (t *ReliableTracker) receiveSegment(p *common.Packet) error {
	id := fragment.ID(p.FragmentID)
	if _, ok := t.retired[id]; ok {
		// piece of a discarded fragment, only its sequence matters
		t.accept(p, entry{fragmented: true, fragmentID: id})
		return nil
	}

	prior, _ := t.fragments.Get(id)
	a, err := t.fragments.ReceiveSegment(p.Sequence, id, int(p.FragmentIndex), p.Chunk)
	if err != nil {
		if fragment.CodeOf(err) == fragment.CodeSizeMismatch && prior != nil {
			t.retire(p, id, prior.Sequence, prior.Count, err)
			return t.problem(p, err)
		}
		return t.problem(p, err)
	}

	t.accept(p, entry{fragmented: true, fragmentID: id})
	t.sink.Emit(t.event(common.EvtFragmentSegment, p))
	if a.Completed() {
		t.sink.Emit(t.event(common.EvtFragmentReady, p))
	}
	return nil
}

// retire accepts the sequence of p and marks the fragment as undeliverable.
// first is the sequence of its initial piece.
func (t *ReliableTracker) retire(p *common.Packet, id fragment.ID, first serial.Number, pieces int, cause error) {
	t.fragments.Remove(id)
	t.retired[id] = retiredFragment{left: pieces, last: first.Add(pieces - 1)}
	t.accept(p, entry{fragmented: true, fragmentID: id})

	e := t.event(common.EvtFragmentDiscarded, p)
	e.Err = cause
	t.sink.Emit(e)
}

// problem reports a rejected piece. Unless the fragment was retired the
// sequence stays unmarked, so the sender retransmits it.
func (t *ReliableTracker) problem(p *common.Packet, cause error) error {
	err := fmt.Errorf("%w: %w", ErrFragmentProblem, cause)
	e := t.event(common.EvtFragmentProblem, p)
	e.Reason = fragment.CodeOf(cause).String()
	e.Err = err
	t.sink.Emit(e)
	return err
}

// --------------------------------------------------------------------------
// Poll
// --------------------------------------------------------------------------

// Poll reports the missing ranges and the incomplete fragments, then hands
// every message of the contiguous prefix to deliver. It returns the number of
// delivered messages.
func (t *ReliableTracker) Poll(deliver DeliverFunc) int {
	for _, r := range t.window.Missed() {
		e := t.event(common.EvtMissing, nil)
		e.Range = r
		t.sink.Emit(e)
	}
	t.fragments.Poll(func(*fragment.Assembly) fragment.Decision {
		return fragment.Keep
	}, func(id fragment.ID) {
		e := t.event(common.EvtFragmentNotReady, nil)
		e.FragmentID = uint32(id)
		t.sink.Emit(e)
	})

	defer t.expireRetired()

	n := 0
	for {
		seq := t.delivered.Next()
		e, ok := t.stored[seq]
		if !ok {
			break
		}

		switch {
		case !e.fragmented:
			for _, m := range e.packet.Messages {
				t.deliver(seq, m, deliver)
				n++
			}
		default:
			if r, ok := t.retired[e.fragmentID]; ok {
				if r.left <= 1 {
					delete(t.retired, e.fragmentID)
				} else {
					r.left--
					t.retired[e.fragmentID] = r
				}
				break
			}
			var (
				m     common.Message
				first serial.Number
				count int
			)
			pulled := t.fragments.Pull(e.fragmentID, func(a *fragment.Assembly) fragment.Decision {
				m = common.Message{ID: a.MessageID, Type: a.MessageType, Payload: a.Payload()}
				first, count = a.Sequence, a.Count
				return fragment.Discard
			})
			if !pulled {
				// an incomplete fragment blocks everything behind it
				return n
			}
			if count > 1 {
				t.retired[e.fragmentID] = retiredFragment{left: count - 1, last: first.Add(count - 1)}
			}
			t.deliver(seq, m, deliver)
			n++
		}

		delete(t.stored, seq)
		t.delivered = seq
	}
	return n
}

// expireRetired forgets retired fragments whose last sequence was delivered.
// Their remaining pieces never arrived or were never sent.
func (t *ReliableTracker) expireRetired() {
	for id, r := range t.retired {
		if serial.LessOrEqual(r.last, t.delivered) {
			delete(t.retired, id)
		}
	}
}

func (t *ReliableTracker) deliver(seq serial.Number, m common.Message, deliver DeliverFunc) {
	e := t.event(common.EvtDelivered, nil)
	e.Sequence = seq
	e.Message = &m
	t.sink.Emit(e)
	if deliver != nil {
		deliver(seq, m)
	}
}

// Reset collapses the reliable window at the end of a tick
func (t *ReliableTracker) Reset() {
	t.window.Reset()
}

// --------------------------------------------------------------------------
// Ack state
// --------------------------------------------------------------------------

// TakeAckDue reports whether a reliable packet arrived since the last call.
// Duplicates count, they mean an earlier ack was lost.
func (t *ReliableTracker) TakeAckDue() bool {
	a := t.ackDue
	t.ackDue = false
	return a
}

// AckState returns the contiguous mark, the highest received sequence and the
// missing ranges between them
func (t *ReliableTracker) AckState() (through, highest serial.Number, missing []serial.Range) {
	return t.window.LowWaterMark(), t.window.Highest(), t.window.Missed()
}

// Pending returns the number of stored packets not yet delivered
func (t *ReliableTracker) Pending() int {
	return len(t.stored)
}
