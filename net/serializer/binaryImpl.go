package serializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/net/common"
)

// NewBinarySerializer creates a new serializer using the compact wire format.
// This is the format peers use on the network.
func NewBinarySerializer() IPacketSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IPacketSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Field sizes of the wire format
const (
	typeLen     = 1
	headerLen   = 4 + 1 + 3 // connection id, channel, sequence
	seqLen      = 3
	messageHead = 4 + 2 + 2 // id, type, payload length
	fragInitLen = 4 + 2 + 4 + 4 + 2 + 2
	fragSegLen  = 4 + 2 + 2
	ackLen      = 3 + 3 + 2
	rangeLen    = 3 + 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IPacketSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Size(p common.Packet) int {
	size := typeLen
	switch p.Type {
	case common.PktTHello:
		size += 1 + 2 + len(p.Credentials)
	case common.PktTHelloResponse:
		size += 1 + 4 + 2 + len(p.Reason)
	case common.PktTDataReliable, common.PktTDataUnreliable:
		size += headerLen + 2
		for _, m := range p.Messages {
			size += messageHead + len(m.Payload)
		}
	case common.PktTFragmentInitial:
		size += headerLen + fragInitLen + len(p.Chunk)
	case common.PktTFragmentSegment:
		size += headerLen + fragSegLen + len(p.Chunk)
	case common.PktTDataAck:
		size += headerLen + ackLen + rangeLen*len(p.Missing)
	case common.PktTPing, common.PktTPong, common.PktTDisconnect:
		size += headerLen
	}
	return size
}

func (b binarySerializerImpl) Serialize(p common.Packet) ([]byte, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("cannot serialize packet type %d", p.Type)
	}

	w := writer{buf: make([]byte, b.Size(p))}
	w.u8(uint8(p.Type))

	switch p.Type {
	case common.PktTHello:
		w.u8(p.Version)
		if err := w.bytes16(p.Credentials, "credentials"); err != nil {
			return nil, err
		}

	case common.PktTHelloResponse:
		if p.Ok {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.u32(p.ConnectionID)
		if err := w.bytes16([]byte(p.Reason), "reason"); err != nil {
			return nil, err
		}

	default:
		w.header(p)
		switch p.Type {
		case common.PktTDataReliable, common.PktTDataUnreliable:
			if len(p.Messages) > math.MaxUint16 {
				return nil, fmt.Errorf("too many messages: %d", len(p.Messages))
			}
			w.u16(uint16(len(p.Messages)))
			for _, m := range p.Messages {
				w.u32(m.ID)
				w.u16(m.Type)
				if err := w.bytes16(m.Payload, "message payload"); err != nil {
					return nil, err
				}
			}

		case common.PktTFragmentInitial:
			w.u32(p.FragmentID)
			w.u16(p.FragmentCount)
			w.u32(p.TotalSize)
			w.u32(p.MessageID)
			w.u16(p.MessageType)
			if err := w.bytes16(p.Chunk, "chunk"); err != nil {
				return nil, err
			}

		case common.PktTFragmentSegment:
			w.u32(p.FragmentID)
			w.u16(p.FragmentIndex)
			if err := w.bytes16(p.Chunk, "chunk"); err != nil {
				return nil, err
			}

		case common.PktTDataAck:
			w.seq(p.AckThrough)
			w.seq(p.AckHighest)
			if len(p.Missing) > math.MaxUint16 {
				return nil, fmt.Errorf("too many missing ranges: %d", len(p.Missing))
			}
			w.u16(uint16(len(p.Missing)))
			for _, r := range p.Missing {
				w.seq(r.From)
				w.seq(r.To)
			}
		}
	}

	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, p *common.Packet) error {
	*p = common.Packet{}

	// Check minimum size (packet type)
	if len(data) < typeLen {
		return fmt.Errorf("data too short for packet type")
	}

	r := reader{buf: data}
	p.Type = common.PacketType(r.u8())
	if !p.Type.Valid() {
		return fmt.Errorf("unknown packet type %d", p.Type)
	}

	switch p.Type {
	case common.PktTHello:
		if !r.has(3) {
			return fmt.Errorf("data too short for hello")
		}
		p.Version = r.u8()
		creds, err := r.bytes16("credentials")
		if err != nil {
			return err
		}
		p.Credentials = creds

	case common.PktTHelloResponse:
		if !r.has(7) {
			return fmt.Errorf("data too short for hello response")
		}
		p.Ok = r.u8() == 1
		p.ConnectionID = r.u32()
		reason, err := r.bytes16("reason")
		if err != nil {
			return err
		}
		p.Reason = string(reason)

	default:
		if !r.has(headerLen) {
			return fmt.Errorf("data too short for %s header", p.Type)
		}
		p.ConnectionID = r.u32()
		p.Channel = r.u8()
		p.Sequence = r.seq()

		switch p.Type {
		case common.PktTDataReliable, common.PktTDataUnreliable:
			if !r.has(2) {
				return fmt.Errorf("data too short for message count")
			}
			n := int(r.u16())
			if !r.has(n * messageHead) {
				return fmt.Errorf("data too short for %d messages", n)
			}
			if n > 0 {
				p.Messages = make([]common.Message, 0, n)
			}
			for i := 0; i < n; i++ {
				if !r.has(messageHead) {
					return fmt.Errorf("data too short for message %d", i)
				}
				m := common.Message{ID: r.u32(), Type: r.u16()}
				payload, err := r.bytes16("message payload")
				if err != nil {
					return err
				}
				m.Payload = payload
				p.Messages = append(p.Messages, m)
			}

		case common.PktTFragmentInitial:
			if !r.has(fragInitLen) {
				return fmt.Errorf("data too short for fragment initial")
			}
			p.FragmentID = r.u32()
			p.FragmentCount = r.u16()
			p.TotalSize = r.u32()
			p.MessageID = r.u32()
			p.MessageType = r.u16()
			chunk, err := r.bytes16("chunk")
			if err != nil {
				return err
			}
			p.Chunk = chunk

		case common.PktTFragmentSegment:
			if !r.has(fragSegLen) {
				return fmt.Errorf("data too short for fragment segment")
			}
			p.FragmentID = r.u32()
			p.FragmentIndex = r.u16()
			chunk, err := r.bytes16("chunk")
			if err != nil {
				return err
			}
			p.Chunk = chunk

		case common.PktTDataAck:
			if !r.has(ackLen) {
				return fmt.Errorf("data too short for ack")
			}
			p.AckThrough = r.seq()
			p.AckHighest = r.seq()
			n := int(r.u16())
			if !r.has(n * rangeLen) {
				return fmt.Errorf("data too short for %d missing ranges", n)
			}
			if n > 0 {
				p.Missing = make([]serial.Range, n)
			}
			for i := 0; i < n; i++ {
				p.Missing[i] = serial.Range{From: r.seq(), To: r.seq()}
			}
		}
	}

	if r.pos != len(data) {
		return fmt.Errorf("unexpected %d trailing bytes after %s", len(data)-r.pos, p.Type)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// writer writes big endian fields into a buffer sized by Size
type writer struct {
	buf []byte
	pos int
}

func (w *writer) u8(v uint8) {
	w.buf[w.pos] = v
	w.pos++
}

func (w *writer) u16(v uint16) {
	binary.BigEndian.PutUint16(w.buf[w.pos:w.pos+2], v)
	w.pos += 2
}

func (w *writer) u32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:w.pos+4], v)
	w.pos += 4
}

func (w *writer) seq(s serial.Number) {
	v := s.Uint32()
	w.buf[w.pos] = byte(v >> 16)
	w.buf[w.pos+1] = byte(v >> 8)
	w.buf[w.pos+2] = byte(v)
	w.pos += seqLen
}

func (w *writer) header(p common.Packet) {
	w.u32(p.ConnectionID)
	w.u8(p.Channel)
	w.seq(p.Sequence)
}

func (w *writer) bytes16(b []byte, what string) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("%s too long: %d bytes", what, len(b))
	}
	w.u16(uint16(len(b)))
	copy(w.buf[w.pos:], b)
	w.pos += len(b)
	return nil
}

// reader reads big endian fields; callers check has() before reading
type reader struct {
	buf []byte
	pos int
}

func (r *reader) has(n int) bool {
	return n >= 0 && r.pos+n <= len(r.buf)
}

func (r *reader) u8() uint8 {
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) seq() serial.Number {
	v := uint32(r.buf[r.pos])<<16 | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])
	r.pos += seqLen
	return serial.New(v)
}

// bytes16 reads a length-prefixed byte slice. Empty slices come back as nil.
func (r *reader) bytes16(what string) ([]byte, error) {
	if !r.has(2) {
		return nil, fmt.Errorf("data too short for %s length", what)
	}
	n := int(r.u16())
	if !r.has(n) {
		return nil, fmt.Errorf("data too short for %s data", what)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}
