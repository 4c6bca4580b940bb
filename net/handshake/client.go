package handshake

import (
	"fmt"
	"iter"
	"net"

	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/conn"
	"github.com/ValentinKolb/dNet/net/serializer"
	"github.com/ValentinKolb/dNet/net/transport"
)

// ClientOptions configures a Client
type ClientOptions struct {
	Config     common.Config
	Password   string
	Socket     transport.ISocket // a dialed socket, Remote is the server
	Serializer serializer.IPacketSerializer
	// OnEvent sees every event as it happens, e.g. a stats recorder
	OnEvent common.EventSink
}

// Client is the client side handshake machine. It owns the connection it creates.
type Client struct {
	fsm
	cfg        common.Config
	hello      []byte
	socket     transport.ISocket
	remote     net.Addr
	serializer serializer.IPacketSerializer
	events     *common.EventQueue

	conn      *conn.Connection
	attempts  int
	countdown int
	reason    string
}

// NewClient creates a client in state INITIAL
func NewClient(opts ClientOptions) (*Client, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Socket == nil || opts.Socket.Remote() == nil {
		return nil, fmt.Errorf("client needs a socket with a remote address")
	}
	if opts.Serializer == nil {
		opts.Serializer = serializer.NewBinarySerializer()
	}

	hello, err := opts.Serializer.Serialize(*common.NewHello([]byte(opts.Password)))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize hello: %w", err)
	}

	return &Client{
		cfg:        opts.Config,
		hello:      hello,
		socket:     opts.Socket,
		remote:     opts.Socket.Remote(),
		serializer: opts.Serializer,
		events:     common.NewEventQueue(opts.OnEvent),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods
// --------------------------------------------------------------------------

// Start sends the first Hello
func (c *Client) Start() {
	c.transition(StateWaitingForHello)
	c.attempts = 0
	c.sendHello()
}

// Tick runs one protocol step: it reads the socket, resends the Hello when due
// and drives the connection once established
func (c *Client) Tick() {
	switch c.state {
	case StateInitial, StateDisconnected:
		return
	case StateWaitingForHello:
		c.poll()
		if c.state != StateWaitingForHello {
			if c.state == StateConnected {
				c.conn.Tick()
			}
			return
		}
		c.countdown--
		if c.countdown > 0 {
			return
		}
		if c.attempts >= c.cfg.MaxHelloAttempts {
			c.reason = fmt.Sprintf("no answer after %d hellos", c.attempts)
			c.transition(StateDisconnected)
			c.events.Push(common.Event{Kind: common.EvtConnectionTimedOut, Addr: c.remote, Reason: c.reason})
			logger.Infof("Handshake with %s timed out after %d attempts", c.remote, c.attempts)
			return
		}
		c.sendHello()
	case StateConnected:
		c.poll()
		c.conn.Tick()
		if c.conn.Closed() {
			c.reason = c.conn.CloseReason()
			c.transition(StateDisconnected)
		}
	}
}

// Send enqueues a message on the established connection
func (c *Client) Send(rel common.Reliability, channel uint8, typ uint16, payload []byte) (uint32, error) {
	if c.state != StateConnected {
		return 0, fmt.Errorf("%w: client is %s", ErrNotConnected, c.state)
	}
	return c.conn.Send(rel, channel, typ, payload)
}

// Close ends the handshake or closes the connection. The socket stays open.
func (c *Client) Close() {
	switch c.state {
	case StateInitial:
		c.transition(StateWaitingForHello)
		fallthrough
	case StateWaitingForHello:
		c.reason = conn.ReasonLocal
		c.transition(StateDisconnected)
		c.events.Push(common.Event{Kind: common.EvtConnectionClosed, Addr: c.remote, Reason: c.reason})
	case StateConnected:
		c.conn.Close()
		c.reason = c.conn.CloseReason()
		c.transition(StateDisconnected)
	}
}

// State returns the current state
func (c *Client) State() State { return c.state }

// Connection returns the established connection, nil before CONNECTED
func (c *Client) Connection() *conn.Connection { return c.conn }

// Reason returns why the client is DISCONNECTED: the refusal message of the
// server, a timeout or a close reason
func (c *Client) Reason() string { return c.reason }

// Attempts returns the number of Hellos sent
func (c *Client) Attempts() int { return c.attempts }

// Events drains the events produced since the last call
func (c *Client) Events() iter.Seq[common.Event] { return c.events.Drain() }

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Client) sendHello() {
	c.attempts++
	c.countdown = c.cfg.HelloRetryTicks()
	if err := c.socket.Send(c.remote, c.hello); err != nil {
		logger.Warningf("Failed to send hello to %s: %v", c.remote, err)
		return
	}
	c.events.Push(common.Event{Kind: common.EvtSent, Class: common.PktTHello, Addr: c.remote})
	logger.Debugf("Hello %d/%d sent to %s", c.attempts, c.cfg.MaxHelloAttempts, c.remote)
}

// poll reads every pending datagram
func (c *Client) poll() {
	err := c.socket.Poll(func(addr net.Addr, data []byte) {
		c.handle(addr, data)
	})
	if err != nil {
		logger.Errorf("Poll failed: %v", err)
	}
}

func (c *Client) handle(addr net.Addr, data []byte) {
	if addr.String() != c.remote.String() {
		c.events.Push(common.Event{Kind: common.EvtDropped, Addr: addr, Reason: "not the server"})
		return
	}

	var p common.Packet
	if err := c.serializer.Deserialize(data, &p); err != nil {
		c.events.Push(common.Event{Kind: common.EvtMalformed, Addr: addr, Err: err})
		logger.Debugf("Malformed datagram from %s: %v", addr, err)
		return
	}

	switch c.state {
	case StateWaitingForHello:
		c.handleWaiting(addr, &p)
	case StateConnected:
		c.handleConnected(addr, &p, len(data))
	}
}

func (c *Client) handleWaiting(addr net.Addr, p *common.Packet) {
	if p.Type != common.PktTHelloResponse {
		c.events.Push(common.Event{Kind: common.EvtUnexpected, Class: p.Type, ConnectionID: p.ConnectionID, Addr: addr})
		return
	}

	if !p.Ok {
		c.reason = p.Reason
		c.transition(StateDisconnected)
		c.events.Push(common.Event{Kind: common.EvtConnectionRefused, Addr: addr, Reason: p.Reason})
		logger.Infof("Server %s refused the connection: %s", addr, p.Reason)
		return
	}

	cn, err := conn.New(conn.Options{
		ID:         p.ConnectionID,
		Remote:     c.remote,
		Socket:     c.socket,
		Config:     c.cfg,
		Serializer: c.serializer,
		Sink:       c.events.Sink(),
	})
	if err != nil {
		c.reason = err.Error()
		c.transition(StateDisconnected)
		c.events.Push(common.Event{Kind: common.EvtConnectionClosed, Addr: addr, Reason: c.reason, Err: err})
		logger.Errorf("Failed to create connection: %v", err)
		return
	}

	c.conn = cn
	c.transition(StateConnected)
	c.events.Push(common.Event{Kind: common.EvtConnectionCreated, ConnectionID: cn.ID(), Addr: addr})
	logger.Infof("Connected to %s as %d after %d hello(s)", addr, cn.ID(), c.attempts)
}

func (c *Client) handleConnected(addr net.Addr, p *common.Packet, size int) {
	switch {
	case p.Type == common.PktTHelloResponse:
		// answer to a resent hello
		c.events.Push(common.Event{Kind: common.EvtDuplicate, Class: p.Type, ConnectionID: p.ConnectionID, Addr: addr})
	case !p.IsConnectionClass():
		c.events.Push(common.Event{Kind: common.EvtUnexpected, Class: p.Type, Addr: addr})
	case p.ConnectionID != c.conn.ID():
		c.events.Push(common.Event{Kind: common.EvtDropped, Class: p.Type, ConnectionID: p.ConnectionID, Addr: addr, Reason: "wrong connection id"})
	default:
		c.conn.Receive(p, size)
	}
}
