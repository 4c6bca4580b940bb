package conn

import (
	"errors"
	"fmt"
	"net"

	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/lib/window"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/serializer"
	"github.com/ValentinKolb/dNet/net/stats"
	"github.com/ValentinKolb/dNet/net/transport"
	dragonboatLogger "github.com/lni/dragonboat/v4/logger"
)

var logger = dragonboatLogger.GetLogger("conn")

var (
	// ErrClosed is returned by Send on a closed connection
	ErrClosed = errors.New("connection closed")
	// ErrInvalidChannel is returned for channel ids at or above Config.MaxChannels
	ErrInvalidChannel = errors.New("invalid channel")
)

// Close reasons reported in the terminal event
const (
	ReasonLocal   = "local"
	ReasonPeer    = "peer"
	ReasonTimeout = "idle timeout"
)

// Options configures a Connection
type Options struct {
	ID         uint32
	Remote     net.Addr
	Socket     transport.ISocket
	Config     common.Config
	Serializer serializer.IPacketSerializer
	Sink       common.EventSink
}

// outgoing is one serialized packet in the send queue
type outgoing struct {
	class   common.PacketType
	channel uint8
	seq     serial.Number
	raw     []byte
}

// Connection is an established connection to one remote address
type Connection struct {
	id         uint32
	remote     net.Addr
	socket     transport.ISocket
	cfg        common.Config
	serializer serializer.IPacketSerializer
	sink       common.EventSink
	limit      int

	channels []*channel // indexed by channel id, created on first use
	inbox    []*common.Packet
	outbox   []outgoing

	now       uint64
	lastHeard uint64
	lastPing  uint64
	rtt       int

	stats       *stats.ConnectionStats
	closed      bool
	closeReason string
}

// New creates a connection. The config must be valid.
func New(opts Options) (*Connection, error) {
	if opts.Socket == nil || opts.Remote == nil || opts.Serializer == nil {
		return nil, fmt.Errorf("connection needs a socket, a remote address and a serializer")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Connection{
		id:         opts.ID,
		remote:     opts.Remote,
		socket:     opts.Socket,
		cfg:        opts.Config,
		serializer: opts.Serializer,
		sink:       opts.Sink,
		limit:      opts.Config.PacketLimit(opts.Socket.MaximumTransferUnit()),
		channels:   make([]*channel, opts.Config.MaxChannels),
		stats:      stats.NewConnectionStats(),
		rtt:        -1,
	}

	// fail early if the limit cannot hold a data packet
	if _, err := c.channel(0); err != nil {
		c.stats.Stop()
		return nil, err
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Interface Methods
// --------------------------------------------------------------------------

// Send enqueues a message on a channel and returns its message id.
// The message leaves with the next Tick.
func (c *Connection) Send(rel common.Reliability, channel uint8, typ uint16, payload []byte) (uint32, error) {
	if c.closed {
		return 0, ErrClosed
	}
	ch, err := c.channel(channel)
	if err != nil {
		return 0, err
	}
	return ch.builder.Add(rel, typ, payload)
}

// Receive queues a decoded packet of size bytes for the next Tick
func (c *Connection) Receive(p *common.Packet, size int) {
	if c.closed {
		return
	}
	c.stats.RecordIn(size)
	c.inbox = append(c.inbox, p)
}

// Tick runs one protocol step
func (c *Connection) Tick() {
	if c.closed {
		return
	}
	c.now++

	for _, ch := range c.channels {
		if ch == nil {
			continue
		}
		ch.sent.Tick(func(seq serial.Number, sp sentPacket) {
			c.retransmit(ch, seq, sp)
		})
		if ch.ackDue() {
			c.control(ch.buildAck())
		}
		if err := ch.builder.Flush(); err != nil {
			logger.Errorf("Connection %d: flush of channel %d failed: %v", c.id, ch.id, err)
		}
	}
	if c.now-c.lastPing >= uint64(c.cfg.PingRateTicks()) {
		c.lastPing = c.now
		c.control(common.NewPing(c.id, serial.New(uint32(c.now))))
	}

	c.transmit()
	c.process()
	if c.closed {
		return
	}

	for _, ch := range c.channels {
		if ch == nil {
			continue
		}
		ch.reliable.Poll(nil)
		ch.reliable.Reset()
		ch.seq.ResetTick()
	}

	if c.now-c.lastHeard >= uint64(c.cfg.TimeoutTicks()) {
		c.terminate(common.EvtConnectionTimedOut, ReasonTimeout, true)
	}
}

// Close sends a best-effort Disconnect and closes the connection
func (c *Connection) Close() {
	c.terminate(common.EvtConnectionClosed, ReasonLocal, true)
}

// ID returns the connection id
func (c *Connection) ID() uint32 { return c.id }

// Remote returns the address of the peer
func (c *Connection) Remote() net.Addr { return c.remote }

// Closed reports whether the connection is closed
func (c *Connection) Closed() bool { return c.closed }

// CloseReason returns why the connection was closed, empty while open
func (c *Connection) CloseReason() string { return c.closeReason }

// RTT returns the last measured round trip time in ticks, -1 before the first pong
func (c *Connection) RTT() int { return c.rtt }

// Now returns the number of ticks run so far
func (c *Connection) Now() uint64 { return c.now }

// Stats returns the meters of the connection
func (c *Connection) Stats() *stats.ConnectionStats { return c.stats }

// Unacknowledged returns the number of reliable packets waiting for an ack
func (c *Connection) Unacknowledged() int {
	n := 0
	for _, ch := range c.channels {
		if ch != nil {
			n += ch.sent.Len()
		}
	}
	return n
}

// Pending returns the number of received reliable packets held back by a gap
func (c *Connection) Pending() int {
	n := 0
	for _, ch := range c.channels {
		if ch != nil {
			n += ch.reliable.Pending()
		}
	}
	return n
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Connection) channel(id uint8) (*channel, error) {
	if int(id) >= len(c.channels) {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidChannel, id, len(c.channels)-1)
	}
	if ch := c.channels[id]; ch != nil {
		return ch, nil
	}
	ch, err := newChannel(c, id)
	if err != nil {
		return nil, err
	}
	c.channels[id] = ch
	return ch, nil
}

func (c *Connection) event(kind common.EventKind, p *common.Packet) common.Event {
	e := common.Event{Kind: kind, ConnectionID: c.id, Addr: c.remote}
	if p != nil {
		e.Channel = p.Channel
		e.Class = p.Type
		e.Sequence = p.Sequence
	}
	return e
}

// queue appends a serialized packet to the send queue
func (c *Connection) queue(class common.PacketType, channel uint8, seq serial.Number, raw []byte) {
	c.outbox = append(c.outbox, outgoing{class: class, channel: channel, seq: seq, raw: raw})
}

// control serializes and queues a packet that bypasses the builders
func (c *Connection) control(p *common.Packet) {
	raw, err := c.serializer.Serialize(*p)
	if err != nil {
		logger.Errorf("Connection %d: failed to serialize %s: %v", c.id, p.Type, err)
		return
	}
	c.queue(p.Type, p.Channel, p.Sequence, raw)
}

// retransmit queues a reliable packet again and restarts its countdown
func (c *Connection) retransmit(ch *channel, seq serial.Number, sp sentPacket) {
	ch.sent.Add(seq, sp, c.cfg.PacketTTLTicks())
	c.queue(sp.class, ch.id, seq, sp.raw)
	c.stats.RecordRetransmit()

	e := c.event(common.EvtRetransmit, nil)
	e.Channel = ch.id
	e.Class = sp.class
	e.Sequence = seq
	e.Reliability = common.Reliable
	c.sink.Emit(e)
}

// transmit writes the send queue to the socket
func (c *Connection) transmit() {
	for _, o := range c.outbox {
		if err := c.socket.Send(c.remote, o.raw); err != nil {
			logger.Debugf("Connection %d: send to %s failed: %v", c.id, c.remote, err)
			continue
		}
		c.stats.RecordOut(len(o.raw))

		e := c.event(common.EvtSent, nil)
		e.Channel = o.channel
		e.Class = o.class
		e.Sequence = o.seq
		c.sink.Emit(e)
	}
	c.outbox = nil
}

// process drains the receive queue
func (c *Connection) process() {
	inbox := c.inbox
	c.inbox = nil
	for _, p := range inbox {
		if c.closed {
			return
		}
		c.handle(p)
	}
}

func (c *Connection) handle(p *common.Packet) {
	c.lastHeard = c.now
	c.sink.Emit(c.event(common.EvtReceived, p))

	switch p.Type {
	case common.PktTPing:
		c.control(common.NewPong(c.id, p.Sequence))
		return
	case common.PktTPong:
		c.rtt = int(serial.Distance(p.Sequence, serial.New(uint32(c.now))))
		c.stats.RecordRTT(c.rtt)
		return
	case common.PktTDisconnect:
		c.terminate(common.EvtConnectionClosed, ReasonPeer, false)
		return
	}

	ch, err := c.channel(p.Channel)
	if err != nil {
		e := c.event(common.EvtDropped, p)
		e.Reason = err.Error()
		c.sink.Emit(e)
		return
	}

	switch p.Type {
	case common.PktTDataReliable, common.PktTFragmentInitial, common.PktTFragmentSegment:
		if err := ch.reliable.Receive(p); err != nil {
			logger.Debugf("Connection %d: %s rejected: %v", c.id, p, err)
		}
	case common.PktTDataUnreliable:
		c.receiveUnreliable(ch, p)
	case common.PktTDataAck:
		c.receiveAck(ch, p)
	default:
		c.sink.Emit(c.event(common.EvtUnexpected, p))
	}
}

func (c *Connection) receiveUnreliable(ch *channel, p *common.Packet) {
	if err := ch.seq.ReceiveUnreliable(p.Sequence); err != nil {
		c.sink.Emit(c.rejection(p, err, common.Unreliable))
		return
	}

	e := c.event(common.EvtArrived, p)
	e.Reliability = common.Unreliable
	c.sink.Emit(e)
	for _, m := range p.Messages {
		d := c.event(common.EvtDelivered, p)
		d.Reliability = common.Unreliable
		d.Message = &m
		c.sink.Emit(d)
	}
}

func (c *Connection) receiveAck(ch *channel, p *common.Packet) {
	if err := ch.seq.ReceiveAck(p.Sequence); err != nil {
		c.sink.Emit(c.rejection(p, err, common.Reliable))
		return
	}
	for _, s := range ch.acknowledge(p) {
		if sp, ok := ch.sent.Get(s); ok {
			c.retransmit(ch, s, sp)
		}
	}
}

// rejection turns a window error into a Duplicate or TooOld event
func (c *Connection) rejection(p *common.Packet, err error, rel common.Reliability) common.Event {
	kind := common.EvtTooOld
	if errors.Is(err, window.ErrDuplicate) {
		kind = common.EvtDuplicate
	}
	e := c.event(kind, p)
	e.Reliability = rel
	e.Err = err
	return e
}

// terminate closes the connection once and reports the terminal event
func (c *Connection) terminate(kind common.EventKind, reason string, notify bool) {
	if c.closed {
		return
	}
	if notify {
		if raw, err := c.serializer.Serialize(*common.NewDisconnect(c.id)); err == nil {
			_ = c.socket.Send(c.remote, raw)
		}
	}

	c.closed = true
	c.closeReason = reason
	c.inbox = nil
	c.outbox = nil
	c.stats.Stop()

	e := c.event(kind, nil)
	e.Reason = reason
	c.sink.Emit(e)
	logger.Infof("Connection %d to %s closed: %s", c.id, c.remote, reason)
}
