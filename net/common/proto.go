package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// ProtocolVersion is sent in every Hello
const ProtocolVersion uint8 = 1

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is one application message carried inside a data packet
type Message struct {
	ID      uint32 `json:"id"`
	Type    uint16 `json:"type"`
	Payload []byte `json:"payload,omitempty"`
}

// Reliability selects the delivery class of a message
type Reliability uint8

const (
	Unreliable Reliability = iota // delivered at most once, unordered
	Reliable                      // delivered exactly once, in order
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// --------------------------------------------------------------------------
// Packet Structure
// --------------------------------------------------------------------------

// Packet is the tagged union of everything that travels over the socket.
// Which fields are used depends on Type.
type Packet struct {
	// Type of packet
	Type PacketType `json:"type"`

	// Handshake fields
	Version     uint8  `json:"version,omitempty"`     // Used for: Hello
	Credentials []byte `json:"credentials,omitempty"` // Used for: Hello
	Ok          bool   `json:"ok,omitempty"`          // Used for: HelloResponse
	Reason      string `json:"reason,omitempty"`      // Used for: HelloResponse (refusal)

	// Connection-class header (every packet except Hello)
	ConnectionID uint32        `json:"connection_id,omitempty"`
	Channel      uint8         `json:"channel,omitempty"`
	Sequence     serial.Number `json:"sequence,omitempty"`

	// Used for: DataReliable, DataUnreliable
	Messages []Message `json:"messages,omitempty"`

	// Used for: FragmentInitial, FragmentSegment
	FragmentID    uint32 `json:"fragment_id,omitempty"`
	FragmentCount uint16 `json:"fragment_count,omitempty"` // initial only
	FragmentIndex uint16 `json:"fragment_index,omitempty"` // segment only
	TotalSize     uint32 `json:"total_size,omitempty"`     // initial only
	MessageID     uint32 `json:"message_id,omitempty"`     // initial only
	MessageType   uint16 `json:"message_type,omitempty"`   // initial only
	Chunk         []byte `json:"chunk,omitempty"`

	// Used for: DataAck
	AckThrough serial.Number  `json:"ack_through,omitempty"`
	AckHighest serial.Number  `json:"ack_highest,omitempty"`
	Missing    []serial.Range `json:"missing,omitempty"`
}

// IsConnectionClass reports whether the packet belongs to an established connection
func (p *Packet) IsConnectionClass() bool {
	return p.Type >= PktTDataReliable && p.Type <= PktTDisconnect
}

// IsReliable reports whether the packet occupies a reliable sequence
func (p *Packet) IsReliable() bool {
	return p.Type == PktTDataReliable || p.Type == PktTFragmentInitial || p.Type == PktTFragmentSegment
}

func (p *Packet) String() string {
	switch p.Type {
	case PktTHello, PktTHelloResponse:
		return fmt.Sprintf("%s{ok=%t reason=%q conn=%d}", p.Type, p.Ok, p.Reason, p.ConnectionID)
	default:
		return fmt.Sprintf("%s{conn=%d ch=%d seq=%d}", p.Type, p.ConnectionID, p.Channel, p.Sequence)
	}
}

// --------------------------------------------------------------------------
// Packet Factory Functions
// --------------------------------------------------------------------------

// NewHello creates the first packet of a handshake
func NewHello(credentials []byte) *Packet {
	return &Packet{
		Type:        PktTHello,
		Version:     ProtocolVersion,
		Credentials: credentials,
	}
}

// NewHelloOk creates an accepting HelloResponse
func NewHelloOk(connectionID uint32) *Packet {
	return &Packet{
		Type:         PktTHelloResponse,
		Ok:           true,
		ConnectionID: connectionID,
	}
}

// NewHelloError creates a refusing HelloResponse
func NewHelloError(reason string) *Packet {
	return &Packet{
		Type:   PktTHelloResponse,
		Reason: reason,
	}
}

// NewPing creates a keepalive carrying the sender's tick stamp
func NewPing(connectionID uint32, stamp serial.Number) *Packet {
	return &Packet{Type: PktTPing, ConnectionID: connectionID, Sequence: stamp}
}

// NewPong answers a ping with the same stamp
func NewPong(connectionID uint32, stamp serial.Number) *Packet {
	return &Packet{Type: PktTPong, ConnectionID: connectionID, Sequence: stamp}
}

// NewDisconnect creates a best-effort close notification
func NewDisconnect(connectionID uint32) *Packet {
	return &Packet{Type: PktTDisconnect, ConnectionID: connectionID}
}

// NewAck creates an acknowledgement for one channel
func NewAck(connectionID uint32, channel uint8, seq, through, highest serial.Number, missing []serial.Range) *Packet {
	return &Packet{
		Type:         PktTDataAck,
		ConnectionID: connectionID,
		Channel:      channel,
		Sequence:     seq,
		AckThrough:   through,
		AckHighest:   highest,
		Missing:      missing,
	}
}

// --------------------------------------------------------------------------
// Packet Types
// --------------------------------------------------------------------------

// PacketType represents the type of packet
type PacketType uint8

const (
	PktTUnknown         PacketType = iota // 0: Unknown packet type
	PktTHello                             // 1: Handshake request
	PktTHelloResponse                     // 2: Handshake answer (ok or error)
	PktTDataReliable                      // 3: Reliable messages
	PktTDataUnreliable                    // 4: Unreliable messages
	PktTFragmentInitial                   // 5: First piece of a fragmented reliable message
	PktTFragmentSegment                   // 6: Further piece of a fragmented reliable message
	PktTDataAck                           // 7: Acknowledgement with missing ranges
	PktTPing                              // 8: Keepalive
	PktTPong                              // 9: Keepalive answer
	PktTDisconnect                        // 10: Close notification
)

// String returns the string representation of the packet type
func (t PacketType) String() string {
	switch t {
	case PktTHello:
		return "Hello"
	case PktTHelloResponse:
		return "HelloResponse"
	case PktTDataReliable:
		return "DataReliable"
	case PktTDataUnreliable:
		return "DataUnreliable"
	case PktTFragmentInitial:
		return "DataReliableFragmentInitial"
	case PktTFragmentSegment:
		return "DataReliableFragmentSegment"
	case PktTDataAck:
		return "DataAck"
	case PktTPing:
		return "Ping"
	case PktTPong:
		return "Pong"
	case PktTDisconnect:
		return "Disconnect"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is a known packet type
func (t PacketType) Valid() bool {
	return t >= PktTHello && t <= PktTDisconnect
}

// MarshalJSON marshals the packet type to JSON
func (t PacketType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON unmarshals the packet type from JSON
func (t *PacketType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for candidate := PktTHello; candidate <= PktTDisconnect; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown packet type: %s", s)
}
