package conn

import (
	"fmt"

	"github.com/ValentinKolb/dNet/lib/fragment"
	"github.com/ValentinKolb/dNet/lib/sent"
	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/net/builder"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/sequence"
)

// sentPacket is a reliable packet waiting for its ack
type sentPacket struct {
	class common.PacketType
	raw   []byte
}

// channel is one multiplexing unit of a connection
type channel struct {
	id   uint8
	conn *Connection

	seq      *sequence.Tracker
	builder  *builder.Builder
	reliable *sequence.ReliableTracker
	sent     *sent.Tracker[sentPacket]

	ackCountdown int
}

func newChannel(c *Connection, id uint8) (*channel, error) {
	ch := &channel{
		id:           id,
		conn:         c,
		seq:          sequence.NewTracker(c.cfg.MaxWindowHorizon),
		sent:         sent.NewTracker[sentPacket](),
		ackCountdown: c.cfg.AckRateTicks(),
	}

	b, err := builder.New(builder.Options{
		ConnectionID:     c.id,
		Channel:          id,
		Limit:            c.limit,
		MaxMessageSize:   c.cfg.MaxMessageSize,
		MaxFragmentCount: c.cfg.MaxFragmentCount,
		Serializer:       c.serializer,
		Sequences:        ch.seq,
		Emit:             ch.emit,
		Sink:             c.sink,
	})
	if err != nil {
		return nil, fmt.Errorf("channel %d: %w", id, err)
	}
	ch.builder = b

	ch.reliable = sequence.NewReliableTracker(c.id, id,
		ch.seq.Reliable(),
		fragment.NewTracker(c.cfg.MaxFragmentCount, c.cfg.MaxMessageSize),
		c.sink)
	return ch, nil
}

// emit is the builder callback: reliable packets are kept until acknowledged
func (ch *channel) emit(p *common.Packet, raw []byte) {
	if p.IsReliable() {
		ch.sent.Add(p.Sequence, sentPacket{class: p.Type, raw: raw}, ch.conn.cfg.PacketTTLTicks())
	}
	ch.conn.queue(p.Type, ch.id, p.Sequence, raw)
}

// ackDue counts down the ack interval and reports whether an ack should go out now
func (ch *channel) ackDue() bool {
	ch.ackCountdown--
	if ch.ackCountdown > 0 {
		return false
	}
	ch.ackCountdown = ch.conn.cfg.AckRateTicks()
	return ch.reliable.TakeAckDue()
}

// buildAck creates the acknowledgement for everything received so far.
// Missing ranges that do not fit the limit are dropped from the end and the
// highest sequence is lowered accordingly, so nothing unreceived is claimed.
func (ch *channel) buildAck() *common.Packet {
	through, highest, missing := ch.reliable.AckState()
	p := common.NewAck(ch.conn.id, ch.id, ch.seq.NextAck(), through, highest, missing)

	for len(p.Missing) > 0 && ch.conn.serializer.Size(*p) > ch.conn.limit {
		last := p.Missing[len(p.Missing)-1]
		p.Missing = p.Missing[:len(p.Missing)-1]
		p.AckHighest = last.From.Prev()
	}
	return p
}

// acknowledge applies a peer's ack to the sent packets. It returns the
// sequences that are reported missing and due for an early retransmission.
func (ch *channel) acknowledge(p *common.Packet) (retransmit []serial.Number) {
	ttl := ch.conn.cfg.PacketTTLTicks()
	minAge := ch.conn.cfg.AckRateTicks()

	for _, s := range ch.sent.Sequences() {
		switch {
		case serial.LessOrEqual(s, p.AckThrough):
			ch.sent.Remove(s)
		case serial.LessOrEqual(s, p.AckHighest):
			if !missing(p.Missing, s) {
				ch.sent.Remove(s)
				continue
			}
			// give a fresh packet one ack interval before resending it
			if left, ok := ch.sent.TicksToLive(s); ok && ttl-left >= minAge {
				retransmit = append(retransmit, s)
			}
		}
	}
	return retransmit
}

func missing(ranges []serial.Range, s serial.Number) bool {
	for _, r := range ranges {
		if r.Contains(s) {
			return true
		}
	}
	return false
}
