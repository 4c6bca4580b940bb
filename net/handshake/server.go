package handshake

import (
	"crypto/subtle"
	"fmt"
	"iter"
	"net"

	"github.com/ValentinKolb/dNet/lib/idpool"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/conn"
	"github.com/ValentinKolb/dNet/net/serializer"
	"github.com/ValentinKolb/dNet/net/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// ServerOptions configures a Server
type ServerOptions struct {
	Config     common.Config
	Password   string
	Socket     transport.ISocket // a listening socket
	Serializer serializer.IPacketSerializer
	// Pool hands out connection ids, a crypto random pool if nil
	Pool idpool.IPool
	// OnEvent sees every event as it happens, e.g. a stats recorder
	OnEvent common.EventSink
}

// session is the handshake state of one remote address
type session struct {
	fsm
	conn *conn.Connection
}

// Server is the server side handshake machine. It owns every connection it creates.
type Server struct {
	cfg        common.Config
	password   []byte
	socket     transport.ISocket
	serializer serializer.IPacketSerializer
	pool       idpool.IPool
	events     *common.EventQueue

	sessions *xsync.MapOf[uint32, *session]
	byAddr   map[string]uint32
	closed   bool
}

// NewServer creates a server on a listening socket
func NewServer(opts ServerOptions) (*Server, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Socket == nil {
		return nil, fmt.Errorf("server needs a socket")
	}
	if opts.Serializer == nil {
		opts.Serializer = serializer.NewBinarySerializer()
	}
	if opts.Pool == nil {
		opts.Pool = idpool.NewRandomPool()
	}

	return &Server{
		cfg:        opts.Config,
		password:   []byte(opts.Password),
		socket:     opts.Socket,
		serializer: opts.Serializer,
		pool:       opts.Pool,
		events:     common.NewEventQueue(opts.OnEvent),
		sessions:   xsync.NewMapOf[uint32, *session](),
		byAddr:     make(map[string]uint32),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods
// --------------------------------------------------------------------------

// Tick reads the socket, routes packets and drives every connection once
func (s *Server) Tick() {
	if s.closed {
		return
	}
	err := s.socket.Poll(func(addr net.Addr, data []byte) {
		s.handle(addr, data)
	})
	if err != nil {
		logger.Errorf("Poll failed: %v", err)
	}

	var gone []uint32
	s.sessions.Range(func(id uint32, sess *session) bool {
		sess.conn.Tick()
		if sess.conn.Closed() {
			gone = append(gone, id)
		}
		return true
	})
	for _, id := range gone {
		s.remove(id)
	}
}

// Send enqueues a message on a connection
func (s *Server) Send(id uint32, rel common.Reliability, channel uint8, typ uint16, payload []byte) (uint32, error) {
	sess, ok := s.sessions.Load(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}
	return sess.conn.Send(rel, channel, typ, payload)
}

// Disconnect closes one connection and releases its id
func (s *Server) Disconnect(id uint32) error {
	sess, ok := s.sessions.Load(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}
	sess.conn.Close()
	s.remove(id)
	return nil
}

// Close closes every connection. The socket stays open.
func (s *Server) Close() {
	if s.closed {
		return
	}
	var ids []uint32
	s.sessions.Range(func(id uint32, _ *session) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		_ = s.Disconnect(id)
	}
	s.closed = true
}

// Connection returns the connection with the given id
func (s *Server) Connection(id uint32) (*conn.Connection, bool) {
	sess, ok := s.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return sess.conn, true
}

// Connections iterates the established connections.
// Safe to call from another goroutine, the connections themselves are not.
func (s *Server) Connections() iter.Seq2[uint32, *conn.Connection] {
	return func(yield func(uint32, *conn.Connection) bool) {
		s.sessions.Range(func(id uint32, sess *session) bool {
			return yield(id, sess.conn)
		})
	}
}

// Len returns the number of established connections. Safe for concurrent use.
func (s *Server) Len() int {
	return s.sessions.Size()
}

// Events drains the events produced since the last call
func (s *Server) Events() iter.Seq[common.Event] { return s.events.Drain() }

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Server) handle(addr net.Addr, data []byte) {
	var p common.Packet
	if err := s.serializer.Deserialize(data, &p); err != nil {
		s.events.Push(common.Event{Kind: common.EvtMalformed, Addr: addr, Err: err})
		logger.Debugf("Malformed datagram from %s: %v", addr, err)
		return
	}

	switch {
	case p.Type == common.PktTHello:
		s.hello(addr, &p)
	case !p.IsConnectionClass():
		s.events.Push(common.Event{Kind: common.EvtUnexpected, Class: p.Type, Addr: addr})
	default:
		s.route(addr, &p, len(data))
	}
}

// route hands a connection packet to its connection
func (s *Server) route(addr net.Addr, p *common.Packet, size int) {
	drop := func(reason string) {
		s.events.Push(common.Event{Kind: common.EvtDropped, Class: p.Type, ConnectionID: p.ConnectionID, Channel: p.Channel, Sequence: p.Sequence, Addr: addr, Reason: reason})
	}

	sess, ok := s.sessions.Load(p.ConnectionID)
	if !ok {
		drop("unknown connection")
		return
	}
	if sess.conn.Remote().String() != addr.String() {
		drop("address mismatch")
		return
	}
	sess.conn.Receive(p, size)
}

// hello validates a Hello and creates the connection
func (s *Server) hello(addr net.Addr, p *common.Packet) {
	if id, ok := s.byAddr[addr.String()]; ok {
		// the client did not get our answer yet
		s.reply(addr, common.NewHelloOk(id))
		return
	}

	sess := &session{}
	sess.transition(StateWaitingForHello)

	switch {
	case p.Version != common.ProtocolVersion:
		s.refuse(sess, addr, ReasonUnsupportedVersion)
		return
	case subtle.ConstantTimeCompare(p.Credentials, s.password) != 1:
		s.refuse(sess, addr, ReasonInvalidCredentials)
		return
	}

	id, err := s.pool.Fresh()
	if err != nil {
		logger.Warningf("No connection id for %s: %v", addr, err)
		s.refuse(sess, addr, ReasonServerFull)
		return
	}

	cn, err := conn.New(conn.Options{
		ID:         id,
		Remote:     addr,
		Socket:     s.socket,
		Config:     s.cfg,
		Serializer: s.serializer,
		Sink:       s.events.Sink(),
	})
	if err != nil {
		s.pool.Release(id)
		logger.Errorf("Failed to create connection for %s: %v", addr, err)
		s.refuse(sess, addr, ReasonServerFull)
		return
	}

	sess.conn = cn
	sess.transition(StateConnected)
	s.sessions.Store(id, sess)
	s.byAddr[addr.String()] = id

	s.reply(addr, common.NewHelloOk(id))
	s.events.Push(common.Event{Kind: common.EvtConnectionCreated, ConnectionID: id, Addr: addr})
	logger.Infof("Connection %d established with %s", id, addr)
}

// refuse answers with a reason and forgets the session
func (s *Server) refuse(sess *session, addr net.Addr, reason string) {
	sess.transition(StateDisconnected)
	s.reply(addr, common.NewHelloError(reason))
	s.events.Push(common.Event{Kind: common.EvtConnectionRefused, Addr: addr, Reason: reason})
	logger.Infof("Refused %s: %s", addr, reason)
}

func (s *Server) reply(addr net.Addr, p *common.Packet) {
	raw, err := s.serializer.Serialize(*p)
	if err != nil {
		logger.Errorf("Failed to serialize %s: %v", p.Type, err)
		return
	}
	if err := s.socket.Send(addr, raw); err != nil {
		logger.Debugf("Failed to answer %s: %v", addr, err)
		return
	}
	s.events.Push(common.Event{Kind: common.EvtSent, Class: p.Type, ConnectionID: p.ConnectionID, Addr: addr})
}

// remove forgets a closed connection and releases its id
func (s *Server) remove(id uint32) {
	sess, ok := s.sessions.LoadAndDelete(id)
	if !ok {
		return
	}
	sess.transition(StateDisconnected)
	delete(s.byAddr, sess.conn.Remote().String())
	s.pool.Release(id)
	logger.Debugf("Connection %d removed (%s)", id, sess.conn.CloseReason())
}
