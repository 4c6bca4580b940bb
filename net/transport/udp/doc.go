/*
Package udp implements transport.ISocket on top of a UDP socket.

Listen binds a server socket, Dial binds an ephemeral local port and fixes the
remote address. In both cases a reader goroutine blocks on the socket and
pushes every datagram into a lock-free MPSC queue. Poll drains that queue on
the tick goroutine, so the tick never waits on the network.

The default MTU of 1200 bytes keeps datagrams below the path MTU of common
networks including IPv6 tunnels. WithMTU raises it up to the UDP maximum.
*/
package udp
