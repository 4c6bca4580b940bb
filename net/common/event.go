package common

import (
	"encoding/json"
	"fmt"
	"iter"
	"net"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// --------------------------------------------------------------------------
// Event Structure
// --------------------------------------------------------------------------

// Event is the single upward notification type of the transport.
// Which fields are set depends on Kind.
type Event struct {
	Kind         EventKind     `json:"kind"`
	ConnectionID uint32        `json:"connection_id,omitempty"`
	Channel      uint8         `json:"channel,omitempty"`
	Class        PacketType    `json:"class,omitempty"`    // packet type the event refers to
	Sequence     serial.Number `json:"sequence,omitempty"` // sequence the event refers to
	Range        serial.Range  `json:"range,omitempty"`    // Used for: Missing
	Message      *Message      `json:"message,omitempty"`  // Used for: Delivered
	Reliability  Reliability   `json:"reliability,omitempty"`
	FragmentID   uint32        `json:"fragment_id,omitempty"`
	Addr         net.Addr      `json:"-"`
	Reason       string        `json:"reason,omitempty"` // refusal message, close reason, drop reason
	Err          error         `json:"-"`
}

func (e Event) String() string {
	s := fmt.Sprintf("%s conn=%d ch=%d", e.Kind, e.ConnectionID, e.Channel)
	if e.Class != PktTUnknown {
		s += fmt.Sprintf(" class=%s seq=%d", e.Class, e.Sequence)
	}
	if e.Reason != "" {
		s += " reason=" + e.Reason
	}
	if e.Err != nil {
		s += " err=" + e.Err.Error()
	}
	return s
}

// EventSink receives events as they happen
type EventSink func(e Event)

// Emit calls the sink if it is set
func (s EventSink) Emit(e Event) {
	if s != nil {
		s(e)
	}
}

// --------------------------------------------------------------------------
// Event Queue
// --------------------------------------------------------------------------

// EventQueue buffers events between ticks. It is not thread-safe: it is
// filled and drained on the tick path.
type EventQueue struct {
	events []Event
	hook   EventSink
}

// NewEventQueue creates a queue. The optional hook sees every event as it is pushed.
func NewEventQueue(hook EventSink) *EventQueue {
	return &EventQueue{hook: hook}
}

// Push appends an event
func (q *EventQueue) Push(e Event) {
	q.hook.Emit(e)
	q.events = append(q.events, e)
}

// Sink returns Push as an EventSink
func (q *EventQueue) Sink() EventSink {
	return q.Push
}

// Len returns the number of buffered events
func (q *EventQueue) Len() int {
	return len(q.events)
}

// Drain iterates over the buffered events and empties the queue.
// Events pushed while draining are delivered in the same iteration.
func (q *EventQueue) Drain() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for len(q.events) > 0 {
			e := q.events[0]
			q.events[0] = Event{}
			q.events = q.events[1:]
			if !yield(e) {
				return
			}
		}
		q.events = nil
	}
}

// --------------------------------------------------------------------------
// Event Kinds
// --------------------------------------------------------------------------

// EventKind represents the type of event
type EventKind uint8

const (
	EvtUnknown            EventKind = iota // 0: Unknown event
	EvtArrived                             // 1: packet accepted by a receiver window
	EvtDelivered                           // 2: message handed to the application
	EvtDropped                             // 3: packet dropped (unknown connection, wrong address, closed)
	EvtDuplicate                           // 4: RECEIVER_DUPLICATE
	EvtTooOld                              // 5: RECEIVER_TOO_OLD
	EvtFragmentProblem                     // 6: RECEIVER_FRAGMENT_PROBLEM
	EvtFragmentStarted                     // 7: initial piece accepted
	EvtFragmentSegment                     // 8: segment accepted
	EvtFragmentReady                       // 9: fragment completed
	EvtFragmentDiscarded                   // 10: fragment removed without delivery
	EvtFragmentNotReady                    // 11: fragment still incomplete at poll
	EvtMissing                             // 12: missing range in the reliable window
	EvtEnqueued                            // 13: message accepted by a packet builder
	EvtSent                                // 14: packet written to the socket
	EvtReceived                            // 15: packet read from the socket
	EvtRetransmit                          // 16: reliable packet sent again
	EvtMalformed                           // 17: datagram could not be parsed
	EvtUnexpected                          // 18: packet not valid in the current state
	EvtConnectionCreated                   // 19: handshake completed
	EvtConnectionClosed                    // 20: local or peer close
	EvtConnectionTimedOut                  // 21: handshake or idle timeout
	EvtConnectionRefused                   // 22: server refused the handshake
)

var eventKindNames = [...]string{
	EvtUnknown:            "Unknown",
	EvtArrived:            "Arrived",
	EvtDelivered:          "Delivered",
	EvtDropped:            "Dropped",
	EvtDuplicate:          "Duplicate",
	EvtTooOld:             "TooOld",
	EvtFragmentProblem:    "FragmentProblem",
	EvtFragmentStarted:    "FragmentStarted",
	EvtFragmentSegment:    "FragmentSegment",
	EvtFragmentReady:      "FragmentReady",
	EvtFragmentDiscarded:  "FragmentDiscarded",
	EvtFragmentNotReady:   "FragmentNotReady",
	EvtMissing:            "Missing",
	EvtEnqueued:           "Enqueued",
	EvtSent:               "Sent",
	EvtReceived:           "Received",
	EvtRetransmit:         "Retransmit",
	EvtMalformed:          "Malformed",
	EvtUnexpected:         "Unexpected",
	EvtConnectionCreated:  "ConnectionCreated",
	EvtConnectionClosed:   "ConnectionClosed",
	EvtConnectionTimedOut: "ConnectionTimedOut",
	EvtConnectionRefused:  "ConnectionRefused",
}

// String returns the string representation of the event kind
func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "Unknown"
}

// EventKinds returns every known kind, used to pre-register metrics
func EventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(eventKindNames)-1)
	for k := EvtArrived; int(k) < len(eventKindNames); k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// MarshalJSON marshals the event kind to JSON
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}
