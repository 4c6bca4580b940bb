package builder

import (
	"errors"
	"fmt"
	"math"

	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/sequence"
	"github.com/ValentinKolb/dNet/net/serializer"
)

var (
	// ErrMessageTooLarge is returned for messages that cannot be sent at all
	ErrMessageTooLarge = errors.New("message too large")
	// ErrLimitTooSmall is returned when not even a packet header fits the limit
	ErrLimitTooSmall = errors.New("packet limit too small")
)

// EmitFunc receives every finished packet and its serialized form
type EmitFunc func(p *common.Packet, raw []byte)

// Options configures a Builder
type Options struct {
	ConnectionID uint32
	Channel      uint8

	// Limit is the maximum serialized size of one packet
	Limit int
	// MaxMessageSize bounds the payload of one message
	MaxMessageSize int
	// MaxFragmentCount bounds the number of pieces of one fragmented message
	MaxFragmentCount int

	Serializer serializer.IPacketSerializer
	Sequences  *sequence.Tracker
	Emit       EmitFunc
	Sink       common.EventSink
}

// Builder is the packet builder of one channel. It is not thread-safe.
type Builder struct {
	opts Options

	reliable   *common.Packet
	unreliable *common.Packet

	// chunk capacities of fragment packets, computed on first use
	initialCap int
	segmentCap int
}

// New creates a builder
func New(opts Options) (*Builder, error) {
	if opts.Serializer == nil || opts.Sequences == nil || opts.Emit == nil {
		return nil, fmt.Errorf("builder needs a serializer, a sequence tracker and an emit callback")
	}
	if opts.MaxFragmentCount <= 0 || opts.MaxFragmentCount > math.MaxUint16 {
		opts.MaxFragmentCount = math.MaxUint16
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = math.MaxInt
	}

	b := &Builder{opts: opts, initialCap: -1, segmentCap: -1}
	if empty := b.newPacket(common.PktTDataReliable); b.opts.Serializer.Size(*empty) > opts.Limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrLimitTooSmall, opts.Limit)
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Interface Methods
// --------------------------------------------------------------------------

// Add enqueues a message and returns its message id. Full packets are emitted
// before the message is added.
func (b *Builder) Add(rel common.Reliability, typ uint16, payload []byte) (uint32, error) {
	if len(payload) > b.opts.MaxMessageSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLarge, len(payload), b.opts.MaxMessageSize)
	}

	// the id is only drawn once the message is accepted
	m := common.Message{ID: b.opts.Sequences.PeekMessageID(), Type: typ, Payload: payload}

	active := &b.unreliable
	pt := common.PktTDataUnreliable
	if rel == common.Reliable {
		active = &b.reliable
		pt = common.PktTDataReliable
	}
	if *active == nil {
		*active = b.newPacket(pt)
	}

	if !b.tryAppend(*active, m) {
		if len((*active).Messages) > 0 {
			if err := b.flush(active); err != nil {
				return 0, err
			}
			*active = b.newPacket(pt)
		}
		if !b.tryAppend(*active, m) {
			if rel != common.Reliable {
				return 0, fmt.Errorf("%w: unreliable message of %d bytes does not fit a packet", ErrMessageTooLarge, len(payload))
			}
			if err := b.fragment(m); err != nil {
				return 0, err
			}
			return b.accepted(rel, m), nil
		}
	}
	b.opts.Sequences.NextMessageID()
	return b.accepted(rel, m), nil
}

// accepted reports an enqueued message and returns its id
func (b *Builder) accepted(rel common.Reliability, m common.Message) uint32 {
	b.opts.Sink.Emit(common.Event{
		Kind:         common.EvtEnqueued,
		ConnectionID: b.opts.ConnectionID,
		Channel:      b.opts.Channel,
		Reliability:  rel,
		Message:      &m,
	})
	return m.ID
}

// Flush emits the active packets, if they hold any message
func (b *Builder) Flush() error {
	return errors.Join(b.flush(&b.reliable), b.flush(&b.unreliable))
}

// Pending returns the number of messages waiting in the active packets
func (b *Builder) Pending() int {
	n := 0
	if b.reliable != nil {
		n += len(b.reliable.Messages)
	}
	if b.unreliable != nil {
		n += len(b.unreliable.Messages)
	}
	return n
}

// Limit returns the packet size limit
func (b *Builder) Limit() int {
	return b.opts.Limit
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b *Builder) newPacket(pt common.PacketType) *common.Packet {
	return &common.Packet{
		Type:         pt,
		ConnectionID: b.opts.ConnectionID,
		Channel:      b.opts.Channel,
		Sequence:     serial.Max,
	}
}

// tryAppend adds m to p if the result stays within the limit
func (b *Builder) tryAppend(p *common.Packet, m common.Message) bool {
	p.Messages = append(p.Messages, m)
	if b.opts.Serializer.Size(*p) <= b.opts.Limit {
		return true
	}
	p.Messages = p.Messages[:len(p.Messages)-1]
	return false
}

// flush stamps, serializes and emits the packet in slot and clears the slot
func (b *Builder) flush(slot **common.Packet) error {
	p := *slot
	if p == nil || len(p.Messages) == 0 {
		return nil
	}
	*slot = nil

	if p.Type == common.PktTDataReliable {
		p.Sequence = b.opts.Sequences.NextReliable()
	} else {
		p.Sequence = b.opts.Sequences.NextUnreliable()
	}
	return b.emit(p)
}

func (b *Builder) emit(p *common.Packet) error {
	raw, err := b.opts.Serializer.Serialize(*p)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", p.Type, err)
	}
	b.opts.Emit(p, raw)
	return nil
}

// --------------------------------------------------------------------------
// Fragmentation
// --------------------------------------------------------------------------

// fragment splits m into an initial piece and segments, each emitted with its own reliable sequence
func (b *Builder) fragment(m common.Message) error {
	if err := b.capacities(); err != nil {
		return err
	}

	size := len(m.Payload)
	count := 1
	if size > b.initialCap {
		count += (size - b.initialCap + b.segmentCap - 1) / b.segmentCap
	}
	if count > b.opts.MaxFragmentCount {
		return fmt.Errorf("%w: %d bytes need %d fragments, at most %d allowed", ErrMessageTooLarge, size, count, b.opts.MaxFragmentCount)
	}

	b.opts.Sequences.NextMessageID()

	// everything enqueued before m must take lower sequences
	if err := b.flush(&b.reliable); err != nil {
		return err
	}

	id := b.opts.Sequences.NextFragmentID()
	first := min(size, b.initialCap)

	init := b.fragmentTemplate(common.PktTFragmentInitial)
	init.Sequence = b.opts.Sequences.NextReliable()
	init.FragmentID = id
	init.FragmentCount = uint16(count)
	init.TotalSize = uint32(size)
	init.MessageID = m.ID
	init.MessageType = m.Type
	init.Chunk = m.Payload[:first]
	if err := b.emit(init); err != nil {
		return err
	}

	for i, off := 1, first; off < size; i++ {
		end := min(off+b.segmentCap, size)
		seg := b.fragmentTemplate(common.PktTFragmentSegment)
		seg.Sequence = b.opts.Sequences.NextReliable()
		seg.FragmentID = id
		seg.FragmentIndex = uint16(i)
		seg.Chunk = m.Payload[off:end]
		if err := b.emit(seg); err != nil {
			return err
		}
		off = end
	}
	return nil
}

// fragmentTemplate returns a fragment packet whose variable width fields hold their largest value
func (b *Builder) fragmentTemplate(pt common.PacketType) *common.Packet {
	p := &common.Packet{
		Type:         pt,
		ConnectionID: b.opts.ConnectionID,
		Channel:      b.opts.Channel,
		Sequence:     serial.Max,
		FragmentID:   math.MaxUint32,
	}
	if pt == common.PktTFragmentInitial {
		p.FragmentCount = math.MaxUint16
		p.TotalSize = math.MaxUint32
		p.MessageID = math.MaxUint32
		p.MessageType = math.MaxUint16
	} else {
		p.FragmentIndex = math.MaxUint16
	}
	return p
}

// capacities computes how many payload bytes fit into each kind of fragment packet
func (b *Builder) capacities() error {
	if b.initialCap >= 0 {
		return nil
	}
	b.initialCap = b.chunkCapacity(common.PktTFragmentInitial)
	b.segmentCap = b.chunkCapacity(common.PktTFragmentSegment)
	if b.initialCap < 1 || b.segmentCap < 1 {
		return fmt.Errorf("%w: no room for fragment data in %d bytes", ErrLimitTooSmall, b.opts.Limit)
	}
	return nil
}

// chunkCapacity finds the largest chunk that keeps the packet within the limit.
// Encoded size grows monotonically with chunk length for every serializer.
func (b *Builder) chunkCapacity(pt common.PacketType) int {
	p := b.fragmentTemplate(pt)
	buf := make([]byte, b.opts.Limit)
	fits := func(n int) bool {
		p.Chunk = buf[:n]
		return b.opts.Serializer.Size(*p) <= b.opts.Limit
	}

	if !fits(0) {
		return 0
	}
	lo, hi := 0, b.opts.Limit // fits(lo) holds, fits(hi+1) does not matter
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
