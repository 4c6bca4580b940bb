/*
Package transport defines the datagram socket consumed by connections and handshakes.

An ISocket is packet oriented and never blocks the tick loop: Send writes one
datagram, Poll hands over everything that arrived since the last call and
returns at once when nothing did. Delivery is unreliable and unordered, the
layers above deal with loss, reordering and duplication.

Implementations:
  - udp: a real UDP socket. A reader goroutine pushes datagrams into a lock-free
    queue that Poll drains.
  - mem: an in-process network with seeded loss, reordering and duplication for
    deterministic tests.

The testing subpackage holds a conformance suite every implementation runs.
*/
package transport
