package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dNet/lib/queue"
	"github.com/ValentinKolb/dNet/net/transport"
	dragonboatLogger "github.com/lni/dragonboat/v4/logger"
)

var logger = dragonboatLogger.GetLogger("transport/udp")

const (
	// DefaultMTU is the datagram size limit unless WithMTU is given
	DefaultMTU = 1200
	// MaxMTU is the largest payload of a UDP datagram over IPv4
	MaxMTU = 65507
)

// Option configures a socket
type Option func(*socket)

// WithMTU sets the maximum datagram size
func WithMTU(mtu int) Option {
	return func(s *socket) {
		s.mtu = max(1, min(mtu, MaxMTU))
	}
}

type datagram struct {
	addr net.Addr
	data []byte
}

// socket implements transport.ISocket
type socket struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	mtu    int

	inbox  *queue.MPSC[datagram]
	closed atomic.Bool
	reader sync.WaitGroup
}

// Listen creates a server socket bound to endpoint (e.g. ":7000")
func Listen(endpoint string, opts ...Option) (transport.ISocket, error) {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", endpoint, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}
	logger.Infof("Listening on %s", conn.LocalAddr())
	return newSocket(conn, nil, opts), nil
}

// Dial creates a client socket on an ephemeral port whose Remote is endpoint
func Dial(endpoint string, opts ...Option) (transport.ISocket, error) {
	remote, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", endpoint, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to bind client socket: %w", err)
	}
	logger.Debugf("Client socket %s for %s", conn.LocalAddr(), remote)
	return newSocket(conn, remote, opts), nil
}

func newSocket(conn *net.UDPConn, remote *net.UDPAddr, opts []Option) *socket {
	s := &socket{
		conn:   conn,
		remote: remote,
		mtu:    DefaultMTU,
		inbox:  queue.NewMPSC[datagram](),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.reader.Add(1)
	go s.read()
	return s
}

// read runs until the connection is closed and queues every datagram
func (s *socket) read() {
	defer s.reader.Done()
	buf := make([]byte, MaxMTU+1)

	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// e.g. ICMP port unreachable surfaced on the next read
			logger.Debugf("Read error on %s: %v", s.conn.LocalAddr(), err)
			continue
		}
		if n > s.mtu {
			logger.Debugf("Dropping %d byte datagram from %s (mtu %d)", n, addr, s.mtu)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if !s.inbox.Push(datagram{addr: addr, data: data}) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods
// --------------------------------------------------------------------------

func (s *socket) Send(addr net.Addr, data []byte) error {
	if s.closed.Load() {
		return transport.ErrClosed
	}
	if len(data) > s.mtu {
		return fmt.Errorf("%w: %d > %d", transport.ErrDatagramTooLarge, len(data), s.mtu)
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		var err error
		if udpAddr, err = net.ResolveUDPAddr("udp", addr.String()); err != nil {
			return fmt.Errorf("invalid address %s: %w", addr, err)
		}
	}
	_, err := s.conn.WriteToUDP(data, udpAddr)
	return err
}

func (s *socket) Poll(fn transport.PollFunc) error {
	if s.closed.Load() {
		return transport.ErrClosed
	}
	s.inbox.Drain(func(d datagram) bool {
		fn(d.addr, d.data)
		return true
	})
	return nil
}

func (s *socket) Remote() net.Addr {
	if s.remote == nil {
		return nil
	}
	return s.remote
}

func (s *socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *socket) MaximumTransferUnit() int {
	return s.mtu
}

func (s *socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.conn.Close()
	s.reader.Wait()
	s.inbox.Close()
	return err
}
