package mem

import (
	"fmt"
	"math/rand/v2"
	"net"
	"sync"

	"github.com/ValentinKolb/dNet/net/transport"
)

// DefaultMTU is the datagram size limit unless WithMTU is given
const DefaultMTU = 1200

// Addr is the address of an in-memory socket
type Addr string

// Network returns "mem"
func (a Addr) Network() string { return "mem" }

func (a Addr) String() string { return string(a) }

// Option configures a Network
type Option func(*Network)

// WithSeed sets the seed of the impairment source
func WithSeed(seed uint64) Option {
	return func(n *Network) { n.seed = seed }
}

// WithLoss drops each datagram with probability p
func WithLoss(p float64) Option {
	return func(n *Network) { n.loss = p }
}

// WithDuplication delivers each datagram twice with probability p
func WithDuplication(p float64) Option {
	return func(n *Network) { n.duplicate = p }
}

// WithReorder inserts each datagram at a random inbox position with probability p
func WithReorder(p float64) Option {
	return func(n *Network) { n.reorder = p }
}

// WithMTU sets the maximum datagram size of every socket
func WithMTU(mtu int) Option {
	return func(n *Network) { n.mtu = mtu }
}

// Stats counts what the network did to the datagrams
type Stats struct {
	Sent       int
	Lost       int
	Duplicated int
	Reordered  int
}

// Network is a set of connected in-memory sockets
type Network struct {
	mu      sync.Mutex
	sockets map[Addr]*socket
	clients int
	stats   Stats

	seed      uint64
	rng       *rand.Rand
	loss      float64
	duplicate float64
	reorder   float64
	mtu       int
}

// NewNetwork creates an empty network
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		sockets: make(map[Addr]*socket),
		mtu:     DefaultMTU,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.rng = rand.New(rand.NewPCG(n.seed, n.seed^0x9e3779b97f4a7c15))
	return n
}

// Listen creates a socket reachable under name
func (n *Network) Listen(name string) (transport.ISocket, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bind(Addr(name), nil)
}

// Dial creates a socket with a generated address whose Remote is name
func (n *Network) Dial(name string) (transport.ISocket, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clients++
	remote := Addr(name)
	return n.bind(Addr(fmt.Sprintf("client-%d", n.clients)), &remote)
}

// Stats returns a copy of the impairment counters
func (n *Network) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// bind registers a socket, the caller holds the lock
func (n *Network) bind(addr Addr, remote *Addr) (*socket, error) {
	if _, ok := n.sockets[addr]; ok {
		return nil, fmt.Errorf("address %s already in use", addr)
	}
	s := &socket{network: n, addr: addr}
	if remote != nil {
		s.remote = *remote
		s.hasRemote = true
	}
	n.sockets[addr] = s
	return s, nil
}

// deliver routes one datagram through the impairments
func (n *Network) deliver(from Addr, to net.Addr, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stats.Sent++
	dst, ok := n.sockets[Addr(to.String())]
	if !ok {
		// like UDP, nobody listening means the datagram is gone
		return
	}
	if n.loss > 0 && n.rng.Float64() < n.loss {
		n.stats.Lost++
		return
	}

	copies := 1
	if n.duplicate > 0 && n.rng.Float64() < n.duplicate {
		n.stats.Duplicated++
		copies = 2
	}
	for range copies {
		d := datagram{addr: from, data: clone(data)}
		if n.reorder > 0 && len(dst.inbox) > 0 && n.rng.Float64() < n.reorder {
			n.stats.Reordered++
			i := n.rng.IntN(len(dst.inbox))
			dst.inbox = append(dst.inbox, datagram{})
			copy(dst.inbox[i+1:], dst.inbox[i:])
			dst.inbox[i] = d
			continue
		}
		dst.inbox = append(dst.inbox, d)
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// --------------------------------------------------------------------------
// Socket
// --------------------------------------------------------------------------

type datagram struct {
	addr Addr
	data []byte
}

// socket implements transport.ISocket. Its inbox is guarded by the network lock.
type socket struct {
	network   *Network
	addr      Addr
	remote    Addr
	hasRemote bool
	inbox     []datagram
	closed    bool
}

func (s *socket) Send(addr net.Addr, data []byte) error {
	if s.isClosed() {
		return transport.ErrClosed
	}
	if len(data) > s.network.mtu {
		return fmt.Errorf("%w: %d > %d", transport.ErrDatagramTooLarge, len(data), s.network.mtu)
	}
	s.network.deliver(s.addr, addr, data)
	return nil
}

func (s *socket) Poll(fn transport.PollFunc) error {
	s.network.mu.Lock()
	if s.closed {
		s.network.mu.Unlock()
		return transport.ErrClosed
	}
	inbox := s.inbox
	s.inbox = nil
	s.network.mu.Unlock()

	// fn may send, which takes the lock again
	for _, d := range inbox {
		fn(d.addr, d.data)
	}
	return nil
}

func (s *socket) Remote() net.Addr {
	if !s.hasRemote {
		return nil
	}
	return s.remote
}

func (s *socket) LocalAddr() net.Addr {
	return s.addr
}

func (s *socket) MaximumTransferUnit() int {
	return s.network.mtu
}

func (s *socket) Close() error {
	s.network.mu.Lock()
	defer s.network.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.inbox = nil
	delete(s.network.sockets, s.addr)
	return nil
}

func (s *socket) isClosed() bool {
	s.network.mu.Lock()
	defer s.network.mu.Unlock()
	return s.closed
}
