package transport

import (
	"errors"
	"net"
)

var (
	// ErrClosed is returned by every operation on a closed socket
	ErrClosed = errors.New("socket closed")
	// ErrDatagramTooLarge is returned by Send for data above the MTU
	ErrDatagramTooLarge = errors.New("datagram exceeds maximum transfer unit")
)

// PollFunc receives one datagram. The data slice is owned by the callee.
type PollFunc func(addr net.Addr, data []byte)

// ISocket is the interface for all datagram sockets
type ISocket interface {
	// Send writes one datagram to addr. It does not wait for delivery.
	Send(addr net.Addr, data []byte) error
	// Poll calls fn for every datagram received since the last call and
	// returns without blocking
	Poll(fn PollFunc) error
	// Remote returns the peer of a client socket, nil for a listening socket
	Remote() net.Addr
	// LocalAddr returns the address the socket is bound to
	LocalAddr() net.Addr
	// MaximumTransferUnit returns the largest datagram Send accepts
	MaximumTransferUnit() int
	// Close releases the socket. Pending datagrams are dropped.
	Close() error
}
